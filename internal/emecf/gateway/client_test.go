package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/sygmef/internal/config"
	"github.com/smallbiznis/sygmef/internal/emecf/catalog"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"
)

func testSettings(baseURL string) config.EMECF {
	cfg := config.DefaultEMECF()
	cfg.URLs.Test = baseURL
	cfg.Token = "test-token"
	cfg.Retry = config.EMECFRetry{MaxAttempts: 3, DelayMS: 1, Multiplier: 2}
	cfg.RateLimit = config.EMECFRateLimit{}
	return cfg
}

func newTestClient(t *testing.T, cfg config.EMECF, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithLogger(zaptest.NewLogger(t))}, opts...)
	client, err := New(config.NewStaticEMECFHolder(cfg), opts...)
	require.NoError(t, err)
	return client
}

func sampleInvoice() domain.NormalizedInvoice {
	return domain.NormalizedInvoice{
		IFU:  "0202376693109",
		Kind: domain.InvoiceKindSale,
		Items: []domain.NormalizedItem{
			{Name: "Jus", Price: 1800, Quantity: decimal.RequireFromString("1.5"), TaxGroup: domain.TaxGroupB},
		},
		Operator: domain.Operator{Name: "Caisse 1"},
		Payments: []domain.NormalizedPayment{{Method: domain.PaymentCash, Amount: 2700}},
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestSubmitSendsWirePayload(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/invoice", r.URL.Path)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "FV", payload["type"])
		items := payload["items"].([]any)
		item := items[0].(map[string]any)
		assert.Equal(t, 1.5, item["quantity"])
		assert.Equal(t, "B", item["taxGroup"])
		payment := payload["payment"].([]any)[0].(map[string]any)
		assert.Equal(t, "ESPECES", payment["name"])
		assert.NotContains(t, payload, "client")

		_, _ = io.WriteString(w, `{"uid":"7d3f1c2a-uid","ta":0,"tb":18,"taa":0,"tab":2288,"hab":2288,"vab":412,"total":2700}`)
	}))
	defer srv.Close()

	client := newTestClient(t, testSettings(srv.URL))
	remote, err := client.Submit(context.Background(), sampleInvoice())
	require.NoError(t, err)

	assert.Equal(t, "7d3f1c2a-uid", remote.UID)
	assert.True(t, remote.Total.Equal(decimal.NewFromInt(2700)))
	assert.True(t, remote.VAB.Equal(decimal.NewFromInt(412)))
	assert.NotEmpty(t, remote.Raw)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestErrorResponsesAreNeverRetried(t *testing.T) {
	cases := []struct {
		name     string
		status   int
		body     string
		sentinel error
		code     int
	}{
		{name: "validation_string_code", status: http.StatusBadRequest, body: `{"errorCode":"3","errorDesc":"type invalide"}`, sentinel: domain.ErrRemoteValidation, code: 3},
		{name: "validation_numeric_code", status: http.StatusUnprocessableEntity, body: `{"errorCode":11,"errorDesc":"taxe"}`, sentinel: domain.ErrRemoteValidation, code: 11},
		{name: "unauthorized", status: http.StatusUnauthorized, body: ``, sentinel: domain.ErrUnauthorized},
		{name: "server_error", status: http.StatusInternalServerError, body: `oops`, sentinel: domain.ErrRemoteUnknown},
		{name: "bad_gateway", status: http.StatusBadGateway, body: ``, sentinel: domain.ErrRemoteUnknown},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var hits int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&hits, 1)
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))
			defer srv.Close()

			client := newTestClient(t, testSettings(srv.URL))
			_, err := client.Submit(context.Background(), sampleInvoice())
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.sentinel)
			assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

			remoteErr, ok := domain.AsRemoteError(err)
			require.True(t, ok)
			assert.Equal(t, tc.status, remoteErr.HTTPStatus)
			assert.Equal(t, tc.code, remoteErr.Code)
			if tc.code != 0 {
				assert.Equal(t, catalog.Message(tc.code), remoteErr.Message)
			}
		})
	}
}

func TestSuccessStatusWithErrorCodeIsRemoteValidation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"uid":null,"errorCode":"9","errorDesc":"IFU inconnu"}`)
	}))
	defer srv.Close()

	client := newTestClient(t, testSettings(srv.URL))
	_, err := client.Submit(context.Background(), sampleInvoice())
	require.ErrorIs(t, err, domain.ErrRemoteValidation)

	remoteErr, _ := domain.AsRemoteError(err)
	assert.Equal(t, 9, remoteErr.Code)
	assert.Equal(t, "IFU inconnu", remoteErr.Description)
}

func TestExpiredTokenFailsWithoutNetworkCall(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	cfg := testSettings(srv.URL)
	cfg.Token = token
	client := newTestClient(t, cfg)

	_, err = client.QueryInfo(context.Background(), domain.InfoTaxGroups)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Zero(t, atomic.LoadInt32(&hits))
}

func TestMissingTokenIsNotConfigured(t *testing.T) {
	cfg := testSettings("http://127.0.0.1:1")
	cfg.Token = "  "
	client := newTestClient(t, cfg)

	_, err := client.TaxpayerInfo(context.Background())
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.ErrorIs(t, err, domain.ErrGatewayNotConfigured)
}

func TestConnectFailureIsRetriedForSubmit(t *testing.T) {
	var calls int32
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	})

	client := newTestClient(t, testSettings("http://emecf.invalid"), WithTransport(rt))
	_, err := client.Submit(context.Background(), sampleInvoice())
	require.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	remoteErr, _ := domain.AsRemoteError(err)
	assert.False(t, remoteErr.Indeterminate)
}

func TestDNSFailureIsRetried(t *testing.T) {
	var calls int32
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &net.DNSError{Err: "no such host", Name: "emecf.invalid"}
	})

	client := newTestClient(t, testSettings("http://emecf.invalid"), WithTransport(rt))
	_, err := client.Finalize(context.Background(), "uid-1", domain.ActionConfirm)
	require.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestResetAfterWriteIsIndeterminateForSubmit(t *testing.T) {
	var calls int32
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return nil, errors.New("read: connection reset by peer")
	})

	client := newTestClient(t, testSettings("http://emecf.invalid"), WithTransport(rt))
	_, err := client.Submit(context.Background(), sampleInvoice())
	require.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	remoteErr, _ := domain.AsRemoteError(err)
	assert.True(t, remoteErr.Indeterminate)
}

func TestResetIsRetriedForQueries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/info/taxGroups", r.URL.Path)
		_, _ = io.WriteString(w, `[{"grp":"A","value":0},{"grp":"B","value":18}]`)
	}))
	defer srv.Close()

	var calls int32
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("read: connection reset by peer")
		}
		return http.DefaultTransport.RoundTrip(r)
	})

	client := newTestClient(t, testSettings(srv.URL), WithTransport(rt))
	data, err := client.QueryInfo(context.Background(), domain.InfoTaxGroups)
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	items, ok := data["items"].([]any)
	require.True(t, ok)
	assert.Len(t, items, 2)
}

func TestCallerTimeoutOnFinalizeIsIndeterminate(t *testing.T) {
	var calls int32
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		<-r.Context().Done()
		return nil, r.Context().Err()
	})

	client := newTestClient(t, testSettings("http://emecf.invalid"), WithTransport(rt))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Finalize(ctx, "uid-1", domain.ActionConfirm)
	require.ErrorIs(t, err, domain.ErrTransport)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	remoteErr, _ := domain.AsRemoteError(err)
	assert.True(t, remoteErr.Indeterminate)
}

func TestFinalize(t *testing.T) {
	t.Run("confirm returns security artifacts", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			assert.Equal(t, "/invoice/uid-1/confirm", r.URL.Path)
			_, _ = io.WriteString(w, `{"codeMECeFDGI":"TEST-ABCD-EFGH","qrCode":"F;TS01;TEST;0202376693109;20260115","dateTime":"15/01/2026 10:00:00","counters":"12/40 FV","nim":"TS01000001"}`)
		}))
		defer srv.Close()

		client := newTestClient(t, testSettings(srv.URL))
		fin, err := client.Finalize(context.Background(), "uid-1", domain.ActionConfirm)
		require.NoError(t, err)
		assert.Equal(t, "TEST-ABCD-EFGH", fin.CodeMECeFDGI)
		assert.Equal(t, "TS01000001", fin.NIM)
		assert.NotEmpty(t, fin.Raw)
	})

	t.Run("confirm without security elements is malformed", func(t *testing.T) {
		for _, body := range []string{``, `{"dateTime":"15/01/2026 10:00:00","nim":"TS01000001"}`, `{"codeMECeFDGI":"TEST-ABCD-EFGH","qrCode":" "}`} {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, body)
			}))

			client := newTestClient(t, testSettings(srv.URL))
			fin, err := client.Finalize(context.Background(), "uid-1", domain.ActionConfirm)
			srv.Close()

			require.Error(t, err, body)
			assert.ErrorIs(t, err, domain.ErrMissingSecurityElements, body)
			assert.ErrorIs(t, err, domain.ErrRemoteUnknown, body)
			remoteErr, ok := domain.AsRemoteError(err)
			require.True(t, ok, body)
			assert.False(t, remoteErr.Indeterminate, body)
			assert.Equal(t, len(body) > 0, len(fin.Raw) > 0, body)
		}
	})

	t.Run("cancel with empty body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/invoice/uid-2/cancel", r.URL.Path)
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		client := newTestClient(t, testSettings(srv.URL))
		fin, err := client.Finalize(context.Background(), "uid-2", domain.ActionCancel)
		require.NoError(t, err)
		assert.Empty(t, fin.CodeMECeFDGI)
	})

	t.Run("rejects bad input locally", func(t *testing.T) {
		client := newTestClient(t, testSettings("http://emecf.invalid"))
		_, err := client.Finalize(context.Background(), "", domain.ActionConfirm)
		assert.ErrorIs(t, err, domain.ErrInvalidUID)
		_, err = client.Finalize(context.Background(), "uid", domain.FinalizeAction("approve"))
		assert.ErrorIs(t, err, domain.ErrInvalidAction)
	})
}

func TestQueryPendingAndTaxpayer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/invoice/uid-9":
			_, _ = io.WriteString(w, `{"ifu":"0202376693109","total":2700}`)
		case "/user-info":
			_, _ = io.WriteString(w, `{"ifu":"0202376693109","name":"SARL DEMO"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client := newTestClient(t, testSettings(srv.URL))

	details, err := client.QueryPending(context.Background(), "uid-9")
	require.NoError(t, err)
	assert.Equal(t, float64(2700), details["total"])

	info, err := client.TaxpayerInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "SARL DEMO", info["name"])

	_, err = client.QueryInfo(context.Background(), domain.InfoKind("prices"))
	assert.ErrorIs(t, err, domain.ErrInvalidInfoKind)
}

func TestMalformedSuccessIsUnknown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"total":10}`)
	}))
	defer srv.Close()

	client := newTestClient(t, testSettings(srv.URL))
	_, err := client.Submit(context.Background(), sampleInvoice())
	assert.ErrorIs(t, err, domain.ErrRemoteUnknown)
}

func TestThrottledCallIsNotSent(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		_, _ = io.WriteString(w, `{"status":true}`)
	}))
	defer srv.Close()

	client := newTestClient(t, testSettings(srv.URL), WithLimiter(rate.NewLimiter(rate.Every(time.Hour), 1)))

	_, err := client.QueryInfo(context.Background(), domain.InfoStatus)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = client.QueryInfo(ctx, domain.InfoStatus)
	require.ErrorIs(t, err, domain.ErrTransport)

	remoteErr, ok := domain.AsRemoteError(err)
	require.True(t, ok)
	assert.False(t, remoteErr.Indeterminate)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
