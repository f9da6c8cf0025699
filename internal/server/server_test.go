package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
	"github.com/smallbiznis/sygmef/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeService struct {
	domain.Service

	submit   func(domain.SubmitInvoiceRequest) (domain.SubmitResult, error)
	finalize func(domain.FinalizeRequest) (domain.FinalizeResult, error)
	retry    func(domain.FinalizeRequest) (domain.FinalizeResult, error)
	getByID  func(string) (domain.Invoice, error)
	list     func(domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error)
	stats    func(domain.StatsRequest) (domain.Stats, error)
	resolve  func(string) error
}

func (f *fakeService) Submit(_ context.Context, req domain.SubmitInvoiceRequest) (domain.SubmitResult, error) {
	return f.submit(req)
}

func (f *fakeService) Finalize(_ context.Context, req domain.FinalizeRequest) (domain.FinalizeResult, error) {
	return f.finalize(req)
}

func (f *fakeService) RetryFinalize(_ context.Context, req domain.FinalizeRequest) (domain.FinalizeResult, error) {
	return f.retry(req)
}

func (f *fakeService) GetByID(_ context.Context, id string) (domain.Invoice, error) {
	return f.getByID(id)
}

func (f *fakeService) List(_ context.Context, req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
	return f.list(req)
}

func (f *fakeService) Stats(_ context.Context, req domain.StatsRequest) (domain.Stats, error) {
	return f.stats(req)
}

func (f *fakeService) ResolveReconciliationTask(_ context.Context, id string) error {
	return f.resolve(id)
}

type fakeRefData struct {
	info func(domain.InfoKind) (domain.ReferenceData, error)
}

func (f *fakeRefData) Info(_ context.Context, kind domain.InfoKind) (domain.ReferenceData, error) {
	return f.info(kind)
}

func (f *fakeRefData) Taxpayer(context.Context) (domain.ReferenceData, error) {
	return domain.ReferenceData{"ifu": "0202112345678"}, nil
}

type fakeRenderer struct{}

func (fakeRenderer) RenderReceipt(inv domain.Invoice) ([]byte, error) {
	if inv.Status != domain.StatusConfirmed {
		return nil, domain.ErrNotConfirmed
	}
	return []byte("%PDF-1.3"), nil
}

func newTestServer(t *testing.T, svc *fakeService, ref *fakeRefData) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	if ref == nil {
		ref = &fakeRefData{}
	}
	s := &Server{
		engine:     NewEngine(observability.Config{}, nil),
		log:        zaptest.NewLogger(t),
		invoiceSvc: svc,
		refData:    ref,
		renderer:   fakeRenderer{},
	}
	s.registerAPIRoutes()
	s.registerFallback()
	return s
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestSubmitInvoiceStatusFollowsLocalTracking(t *testing.T) {
	tests := []struct {
		name     string
		tracking domain.LocalTracking
		persist  error
		status   int
		warning  bool
	}{
		{name: "persisted", tracking: domain.LocalTrackingPersisted, status: http.StatusCreated},
		{name: "disabled", tracking: domain.LocalTrackingDisabled, status: http.StatusAccepted},
		{
			name:     "degraded",
			tracking: domain.LocalTrackingDegraded,
			persist:  fmt.Errorf("%w: disk full", domain.ErrPersistence),
			status:   http.StatusAccepted,
			warning:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{
				submit: func(req domain.SubmitInvoiceRequest) (domain.SubmitResult, error) {
					assert.Equal(t, "0202112345678", req.IFU)
					return domain.SubmitResult{
						Remote:         domain.RemoteInvoice{UID: "c6b0a6b3-7bb5-4a53-a1f4-8a8a1f9e8a11"},
						LocalTracking:  tt.tracking,
						PersistenceErr: tt.persist,
					}, nil
				},
			}
			s := newTestServer(t, svc, nil)

			rec := do(t, s, http.MethodPost, "/api/invoices", map[string]any{"ifu": "0202112345678", "type": "FV"})
			require.Equal(t, tt.status, rec.Code)

			var resp struct {
				Data    domain.SubmitResult `json:"data"`
				Warning string              `json:"warning"`
			}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.tracking, resp.Data.LocalTracking)
			assert.Equal(t, tt.warning, resp.Warning != "")
		})
	}
}

func TestSubmitInvoiceMalformedBody(t *testing.T) {
	s := newTestServer(t, &fakeService{}, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/invoices", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "validation_error", payload.Type)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "request", payload.Errors[0].Field)
}

func TestSubmitInvoiceValidationFailure(t *testing.T) {
	svc := &fakeService{
		submit: func(domain.SubmitInvoiceRequest) (domain.SubmitResult, error) {
			errs := &domain.ValidationErrors{}
			errs.Add("ifu", "invalid_ifu", "IFU must have 13 digits")
			errs.Add("items", "required", "at least one item")
			return domain.SubmitResult{}, errs
		},
	}
	s := newTestServer(t, svc, nil)

	rec := do(t, s, http.MethodPost, "/api/invoices", map[string]any{"ifu": "12"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	payload := decodeError(t, rec)
	assert.Len(t, payload.Errors, 2)
}

func TestRemoteErrorsMapToStatus(t *testing.T) {
	tests := []struct {
		name   string
		err    *domain.RemoteError
		status int
	}{
		{name: "unauthorized", err: &domain.RemoteError{Kind: domain.RemoteUnauthorized, Message: "jeton invalide"}, status: http.StatusUnauthorized},
		{name: "remote validation", err: &domain.RemoteError{Kind: domain.RemoteValidation, Code: 20, Message: "refused"}, status: http.StatusUnprocessableEntity},
		{name: "transport", err: &domain.RemoteError{Kind: domain.RemoteTransport, Indeterminate: true, Message: "timeout"}, status: http.StatusServiceUnavailable},
		{name: "unknown", err: &domain.RemoteError{Kind: domain.RemoteUnknown, HTTPStatus: 500, Message: "boom"}, status: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{
				finalize: func(domain.FinalizeRequest) (domain.FinalizeResult, error) {
					return domain.FinalizeResult{}, tt.err
				},
			}
			s := newTestServer(t, svc, nil)

			rec := do(t, s, http.MethodPut, "/api/invoices/uid/abc/confirm", nil)
			assert.Equal(t, tt.status, rec.Code)
			payload := decodeError(t, rec)
			assert.Equal(t, string(tt.err.Kind), payload.Type)
			assert.Equal(t, tt.err.Code, payload.Code)
			assert.Equal(t, tt.err.Indeterminate, payload.Indeterminate)
		})
	}
}

func TestFinalizeInvoicePassesRouteParams(t *testing.T) {
	svc := &fakeService{
		finalize: func(req domain.FinalizeRequest) (domain.FinalizeResult, error) {
			assert.Equal(t, "c6b0a6b3", req.UID)
			assert.Equal(t, domain.ActionCancel, req.Action)
			return domain.FinalizeResult{LocalTracking: domain.LocalTrackingPersisted}, nil
		},
		retry: func(req domain.FinalizeRequest) (domain.FinalizeResult, error) {
			return domain.FinalizeResult{}, fmt.Errorf("%w: invoice is confirmed", domain.ErrTerminalState)
		},
	}
	s := newTestServer(t, svc, nil)

	rec := do(t, s, http.MethodPut, "/api/invoices/uid/c6b0a6b3/cancel", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/invoices/uid/c6b0a6b3/confirm/retry", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "terminal_state", decodeError(t, rec).Type)
}

func TestInvalidActionIsBadRequest(t *testing.T) {
	svc := &fakeService{
		finalize: func(domain.FinalizeRequest) (domain.FinalizeResult, error) {
			return domain.FinalizeResult{}, domain.ErrInvalidAction
		},
	}
	s := newTestServer(t, svc, nil)

	rec := do(t, s, http.MethodPut, "/api/invoices/uid/abc/approve", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	payload := decodeError(t, rec)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "action", payload.Errors[0].Field)
}

func TestListInvoicesParsesFilters(t *testing.T) {
	svc := &fakeService{
		list: func(req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
			require.NotNil(t, req.Status)
			assert.Equal(t, domain.StatusConfirmed, *req.Status)
			require.NotNil(t, req.Kind)
			assert.Equal(t, domain.InvoiceKindCreditNote, *req.Kind)
			assert.Equal(t, "acme", req.Search)
			assert.Equal(t, 20, req.PageSize)
			require.NotNil(t, req.CreatedTo)
			assert.Equal(t, 23, req.CreatedTo.Hour())
			return domain.ListInvoiceResponse{Invoices: []domain.Invoice{}}, nil
		},
	}
	s := newTestServer(t, svc, nil)

	rec := do(t, s, http.MethodGet, "/api/invoices?status=confirmed&type=credit_note&q=acme&page_size=20&date_to=2026-03-10", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListInvoicesRejectsBadFilters(t *testing.T) {
	s := newTestServer(t, &fakeService{}, nil)

	for _, query := range []string{"status=done", "type=XX", "date_from=yesterday", "page_size=-1"} {
		rec := do(t, s, http.MethodGet, "/api/invoices?"+query, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, query)
	}

	rec := do(t, s, http.MethodGet, "/api/invoices?date_from=hier&date_to=31/02/2026&page_size=x", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	fields := []string{}
	for _, violation := range decodeError(t, rec).Errors {
		fields = append(fields, violation.Field)
	}
	assert.ElementsMatch(t, []string{"date_from", "date_to", "page_size"}, fields)
}

func TestListInvoicesAcceptsDayFirstDates(t *testing.T) {
	svc := &fakeService{
		list: func(req domain.ListInvoiceRequest) (domain.ListInvoiceResponse, error) {
			require.NotNil(t, req.CreatedFrom)
			require.NotNil(t, req.CreatedTo)
			assert.Equal(t, time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC), *req.CreatedFrom)
			assert.Equal(t, time.Date(2026, 3, 6, 0, 0, 0, 0, time.UTC), req.CreatedTo.Add(time.Nanosecond))
			return domain.ListInvoiceResponse{}, nil
		},
	}
	s := newTestServer(t, svc, nil)

	rec := do(t, s, http.MethodGet, "/api/invoices?date_from=05/03/2026&date_to=05/03/2026", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetInvoiceByIDNotFound(t *testing.T) {
	svc := &fakeService{
		getByID: func(string) (domain.Invoice, error) {
			return domain.Invoice{}, domain.ErrInvoiceNotFound
		},
	}
	s := newTestServer(t, svc, nil)

	rec := do(t, s, http.MethodGet, "/api/invoices/42", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", decodeError(t, rec).Type)
}

func TestGetInvoiceReceipt(t *testing.T) {
	status := domain.StatusConfirmed
	svc := &fakeService{
		getByID: func(string) (domain.Invoice, error) {
			return domain.Invoice{UID: "abc", Status: status}, nil
		},
	}
	s := newTestServer(t, svc, nil)

	rec := do(t, s, http.MethodGet, "/api/invoices/42/receipt.pdf", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "facture-abc.pdf")

	status = domain.StatusPending
	rec = do(t, s, http.MethodGet, "/api/invoices/42/receipt.pdf", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetReferenceData(t *testing.T) {
	ref := &fakeRefData{
		info: func(kind domain.InfoKind) (domain.ReferenceData, error) {
			assert.Equal(t, domain.InfoTaxGroups, kind)
			return domain.ReferenceData{"a": 0}, nil
		},
	}
	s := newTestServer(t, &fakeService{}, ref)

	rec := do(t, s, http.MethodGet, "/api/info/tax-groups", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/info/weather", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/taxpayer", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListErrorCodes(t *testing.T) {
	s := newTestServer(t, &fakeService{}, nil)

	rec := do(t, s, http.MethodGet, "/api/error-codes", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []errorCodeResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data)
	for _, item := range resp.Data {
		assert.NotEmpty(t, item.Message)
	}
}

func TestGetDashboardStats(t *testing.T) {
	svc := &fakeService{
		stats: func(req domain.StatsRequest) (domain.Stats, error) {
			assert.Equal(t, 3, req.Months)
			assert.Equal(t, 0, req.RecentLimit)
			return domain.Stats{Total: 4}, nil
		},
	}
	s := newTestServer(t, svc, nil)

	rec := do(t, s, http.MethodGet, "/api/dashboard/stats?months=3", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestResolveReconciliationTask(t *testing.T) {
	svc := &fakeService{
		resolve: func(id string) error {
			if id == "1" {
				return nil
			}
			return domain.ErrReconciliationTask
		},
	}
	s := newTestServer(t, svc, nil)

	rec := do(t, s, http.MethodPost, "/api/reconciliation-tasks/1/resolve", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/reconciliation-tasks/2/resolve", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRouteAndInternalError(t *testing.T) {
	svc := &fakeService{
		getByID: func(string) (domain.Invoice, error) {
			return domain.Invoice{}, errors.New("connection reset")
		},
	}
	s := newTestServer(t, svc, nil)

	rec := do(t, s, http.MethodGet, "/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/invoices/1", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	payload := decodeError(t, rec)
	assert.Equal(t, "internal_error", payload.Type)
	assert.NotContains(t, payload.Message, "connection reset")
}
