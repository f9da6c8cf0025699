package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/sygmef/internal/invoice/domain"
	obslogger "github.com/smallbiznis/sygmef/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/sygmef/internal/observability/metrics"
	"github.com/smallbiznis/sygmef/pkg/telemetry/correlation"
	"go.uber.org/zap"
)

// Submit validates the request, registers it remotely and stores the pending
// invoice. Once the remote side accepted the invoice the result is always
// returned; local failures are reported through LocalTracking.
func (s *Service) Submit(ctx context.Context, req domain.SubmitInvoiceRequest) (domain.SubmitResult, error) {
	ctx, _ = correlation.Ensure(ctx)
	log := obslogger.WithContext(ctx, s.log)

	normalized, err := s.validator.Validate(req)
	if err != nil {
		s.metrics.RecordValidationFailure(ctx, firstViolationCode(err))
		s.metrics.RecordSubmission(ctx, req.Type, outcomeRejected)
		log.Debug("invoice rejected by validation", zap.Error(err))
		return domain.SubmitResult{}, err
	}

	remote, err := s.gateway.Submit(ctx, normalized)
	if err != nil {
		s.metrics.RecordSubmission(ctx, string(normalized.Kind), outcomeRemoteError)
		log.Warn("invoice submission failed",
			zap.String("invoice_kind", string(normalized.Kind)),
			zap.Error(err),
		)
		return domain.SubmitResult{}, err
	}

	log = obslogger.WithInvoice(log, remote.UID)
	result := domain.SubmitResult{Remote: remote}

	if !s.saveInvoices() {
		result.LocalTracking = domain.LocalTrackingDisabled
		s.metrics.RecordSubmission(ctx, string(normalized.Kind), outcomeDisabled)
		log.Info("invoice submitted without local record")
		return result, nil
	}

	// The remote side already holds the invoice; the local write must not be
	// cut short by the caller going away.
	persistCtx := context.WithoutCancel(ctx)
	now := s.clock.Now()
	invoice := s.newInvoice(normalized, remote, now)

	if err := s.repo.Create(persistCtx, s.db, invoice); err != nil {
		s.fiscal.IncPersistenceFailure("submit", err)
		s.metrics.RecordSubmission(ctx, string(normalized.Kind), outcomeDegraded)

		result.LocalTracking = domain.LocalTrackingDegraded
		result.PersistenceErr = fmt.Errorf("%w: %w", domain.ErrPersistence, err)
		result.ReconciliationID = s.recordReconciliation(persistCtx, log, reconciliationInput{
			kind:    domain.ReconcileSubmitUnpersisted,
			uid:     remote.UID,
			payload: submitPayload{Invoice: invoice, Remote: remote.Raw},
			cause:   err,
		})
		return result, nil
	}

	s.fiscal.IncStatusTransition("", string(domain.StatusPending))
	s.metrics.RecordSubmission(ctx, string(normalized.Kind), outcomePersisted)
	log.Info("invoice submitted",
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("invoice_kind", string(invoice.Kind)),
	)

	result.Invoice = invoice
	result.LocalTracking = domain.LocalTrackingPersisted
	return result, nil
}

// Finalize confirms or cancels a pending invoice.
func (s *Service) Finalize(ctx context.Context, req domain.FinalizeRequest) (domain.FinalizeResult, error) {
	return s.finalize(ctx, req, domain.StatusPending)
}

// RetryFinalize re-sends the finalization of an invoice left in error.
func (s *Service) RetryFinalize(ctx context.Context, req domain.FinalizeRequest) (domain.FinalizeResult, error) {
	return s.finalize(ctx, req, domain.StatusError)
}

func (s *Service) finalize(ctx context.Context, req domain.FinalizeRequest, from domain.Status) (domain.FinalizeResult, error) {
	ctx, _ = correlation.Ensure(ctx)

	uid, err := normalizeUID(req.UID)
	if err != nil {
		return domain.FinalizeResult{}, err
	}
	action, ok := domain.ParseFinalizeAction(string(req.Action))
	if !ok {
		return domain.FinalizeResult{}, domain.ErrInvalidAction
	}
	log := obslogger.WithInvoice(obslogger.WithContext(ctx, s.log), uid).
		With(zap.String("action", string(action)))

	current, err := s.repo.FindByUID(ctx, s.db, uid)
	if err != nil {
		return domain.FinalizeResult{}, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	if current == nil {
		if s.saveInvoices() {
			return domain.FinalizeResult{}, domain.ErrInvoiceNotFound
		}
		return s.finalizeRemoteOnly(ctx, log, uid, action)
	}
	if current.Status != from {
		s.metrics.RecordFinalization(ctx, string(action), outcomeRejected)
		return domain.FinalizeResult{Invoice: current}, fmt.Errorf("%w: invoice is %s", domain.ErrTerminalState, current.Status)
	}

	remote, remoteErr := s.callFinalize(ctx, uid, action)
	persistCtx := context.WithoutCancel(ctx)
	now := s.clock.Now()
	expected := []domain.Status{from}

	if errors.Is(remoteErr, domain.ErrMissingSecurityElements) {
		// The remote side may hold a confirmed invoice; the local row keeps
		// its status and an operator reconciles it.
		s.metrics.RecordFinalization(ctx, string(action), outcomeRemoteError)
		log.Error("confirmation without security elements", zap.Error(remoteErr))
		taskID := s.recordReconciliation(persistCtx, log, reconciliationInput{
			kind:    domain.ReconcileFinalizeUnpersisted,
			uid:     uid,
			action:  string(action),
			payload: finalizePayload{From: from, Target: action.TargetStatus(), Remote: remote.Raw},
			cause:   remoteErr,
		})
		return domain.FinalizeResult{
			Remote:           remote,
			LocalTracking:    domain.LocalTrackingDegraded,
			ReconciliationID: taskID,
		}, remoteErr
	}
	if remoteErr != nil {
		s.markErrored(persistCtx, log, uid, expected, remoteErr, now)
		s.metrics.RecordFinalization(ctx, string(action), outcomeRemoteError)
		return domain.FinalizeResult{}, remoteErr
	}

	change := domain.StatusChange{
		Status:      action.TargetStatus(),
		FinalizedAt: &now,
		UpdatedAt:   now,
	}
	if action == domain.ActionConfirm {
		change.CodeMECeFDGI = nilIfEmpty(remote.CodeMECeFDGI)
		change.QRCode = nilIfEmpty(remote.QRCode)
		change.DateTime = nilIfEmpty(remote.DateTime)
		change.Counters = nilIfEmpty(remote.Counters)
		change.NIM = nilIfEmpty(remote.NIM)
	}

	result := domain.FinalizeResult{Remote: remote}
	updated, writeErr := s.repo.Transition(persistCtx, s.db, uid, expected, change)
	if writeErr != nil || !updated {
		cause := writeErr
		if cause == nil {
			cause = obsmetrics.ErrStateConflict
		}
		s.fiscal.IncPersistenceFailure("finalize", cause)
		s.metrics.RecordFinalization(ctx, string(action), outcomeDegraded)

		result.LocalTracking = domain.LocalTrackingDegraded
		result.PersistenceErr = fmt.Errorf("%w: %w", domain.ErrPersistence, cause)
		result.ReconciliationID = s.recordReconciliation(persistCtx, log, reconciliationInput{
			kind:    domain.ReconcileFinalizeUnpersisted,
			uid:     uid,
			action:  string(action),
			payload: finalizePayload{From: from, Target: change.Status, Remote: remote.Raw},
			cause:   cause,
		})
		return result, nil
	}

	s.fiscal.IncStatusTransition(string(from), string(change.Status))
	s.metrics.RecordFinalization(ctx, string(action), outcomePersisted)
	log.Info("invoice finalized", zap.String("status", string(change.Status)))

	result.LocalTracking = domain.LocalTrackingPersisted
	if reloaded, err := s.repo.FindByUID(persistCtx, s.db, uid); err == nil && reloaded != nil {
		result.Invoice = reloaded
	} else if err != nil {
		log.Warn("reload after finalize failed", zap.Error(err))
	}
	return result, nil
}

// callFinalize calls the gateway and rejects a confirm answer that lacks the
// fiscal code or QR payload, whichever gateway produced it.
func (s *Service) callFinalize(ctx context.Context, uid string, action domain.FinalizeAction) (domain.RemoteFinalization, error) {
	remote, err := s.gateway.Finalize(ctx, uid, action)
	if err == nil && action == domain.ActionConfirm && !remote.HasSecurityElements() {
		err = &domain.RemoteError{
			Kind:      domain.RemoteUnknown,
			Operation: "finalize",
			Message:   "confirmation e-MECeF sans code MECeF/DGI ou QR code",
			Err:       domain.ErrMissingSecurityElements,
		}
	}
	return remote, err
}

func (s *Service) finalizeRemoteOnly(ctx context.Context, log *zap.Logger, uid string, action domain.FinalizeAction) (domain.FinalizeResult, error) {
	remote, err := s.callFinalize(ctx, uid, action)
	if err != nil {
		s.metrics.RecordFinalization(ctx, string(action), outcomeRemoteError)
		log.Warn("remote finalize failed", zap.Error(err))
		return domain.FinalizeResult{}, err
	}
	s.metrics.RecordFinalization(ctx, string(action), outcomeDisabled)
	log.Info("invoice finalized without local record")
	return domain.FinalizeResult{
		Remote:        remote,
		LocalTracking: domain.LocalTrackingDisabled,
	}, nil
}

// markErrored records a failed remote finalization. finalized_at stays unset
// so the invoice can be retried.
func (s *Service) markErrored(ctx context.Context, log *zap.Logger, uid string, from []domain.Status, cause error, now time.Time) {
	code, desc := storedError(cause)
	updated, err := s.repo.Transition(ctx, s.db, uid, from, domain.StatusChange{
		Status:    domain.StatusError,
		ErrorCode: &code,
		ErrorDesc: &desc,
		UpdatedAt: now,
	})
	fields := []zap.Field{zap.String("error_code", code), zap.NamedError("remote_error", cause)}
	switch {
	case err != nil:
		s.fiscal.IncPersistenceFailure("mark_error", err)
		log.Error("failed to record finalize error", append(fields, zap.Error(err))...)
	case !updated:
		s.fiscal.IncPersistenceFailure("mark_error", obsmetrics.ErrStateConflict)
		log.Warn("invoice changed state during finalize", fields...)
	default:
		for _, status := range from {
			s.fiscal.IncStatusTransition(string(status), string(domain.StatusError))
		}
		log.Warn("invoice finalize failed", fields...)
	}
}

func storedError(err error) (string, string) {
	if remoteErr, ok := domain.AsRemoteError(err); ok {
		return remoteErr.StoredCode(), remoteErr.StoredDescription()
	}
	return string(domain.RemoteUnknown), err.Error()
}

func firstViolationCode(err error) string {
	var verrs *domain.ValidationErrors
	if errors.As(err, &verrs) && len(verrs.Violations) > 0 {
		return verrs.Violations[0].Code
	}
	return "invalid"
}

func (s *Service) newInvoice(n domain.NormalizedInvoice, remote domain.RemoteInvoice, now time.Time) *domain.Invoice {
	id := s.genID.Generate()
	invoice := &domain.Invoice{
		ID:           id,
		UID:          remote.UID,
		IFU:          n.IFU,
		AIB:          n.AIB,
		Kind:         n.Kind,
		Reference:    n.Reference,
		OperatorID:   n.Operator.ID,
		OperatorName: n.Operator.Name,

		TA:        remote.TA,
		TB:        remote.TB,
		TC:        remote.TC,
		TD:        remote.TD,
		TAA:       remote.TAA,
		TAB:       remote.TAB,
		TAC:       remote.TAC,
		TAD:       remote.TAD,
		TAE:       remote.TAE,
		TAF:       remote.TAF,
		HAB:       remote.HAB,
		HAD:       remote.HAD,
		VAB:       remote.VAB,
		VAD:       remote.VAD,
		AIBAmount: remote.AIB,
		TS:        remote.TS,
		Total:     remote.Total,

		Status:      domain.StatusPending,
		SubmittedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if n.Client != nil {
		invoice.ClientIFU = n.Client.IFU
		invoice.ClientName = n.Client.Name
		invoice.ClientContact = n.Client.Contact
		invoice.ClientAddress = n.Client.Address
	}

	invoice.Items = make([]domain.InvoiceItem, 0, len(n.Items))
	for _, item := range n.Items {
		invoice.Items = append(invoice.Items, domain.InvoiceItem{
			ID:                s.genID.Generate(),
			InvoiceID:         id,
			Code:              item.Code,
			Name:              item.Name,
			Price:             item.Price,
			Quantity:          item.Quantity,
			TaxGroup:          item.TaxGroup,
			TaxSpecific:       item.TaxSpecific,
			OriginalPrice:     item.OriginalPrice,
			PriceModification: item.PriceModification,
			CreatedAt:         now,
		})
	}

	invoice.Payments = make([]domain.InvoicePayment, 0, len(n.Payments))
	for _, payment := range n.Payments {
		invoice.Payments = append(invoice.Payments, domain.InvoicePayment{
			ID:        s.genID.Generate(),
			InvoiceID: id,
			Method:    payment.Method,
			Amount:    payment.Amount,
			CreatedAt: now,
		})
	}
	return invoice
}
