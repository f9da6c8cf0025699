package domain

import (
	"context"
)

// Service is the invoice lifecycle manager: it owns the
// pending -> confirmed|cancelled|error state machine.
type Service interface {
	Submit(ctx context.Context, req SubmitInvoiceRequest) (SubmitResult, error)
	Finalize(ctx context.Context, req FinalizeRequest) (FinalizeResult, error)
	RetryFinalize(ctx context.Context, req FinalizeRequest) (FinalizeResult, error)

	List(ctx context.Context, req ListInvoiceRequest) (ListInvoiceResponse, error)
	GetByID(ctx context.Context, id string) (Invoice, error)
	GetByUID(ctx context.Context, uid string) (Invoice, error)
	PendingDetails(ctx context.Context, uid string) (RemoteInvoiceDetails, error)
	Stats(ctx context.Context, req StatsRequest) (Stats, error)

	ListReconciliationTasks(ctx context.Context, req ListReconciliationRequest) ([]ReconciliationTask, error)
	ResolveReconciliationTask(ctx context.Context, id string) error
}

// Gateway is the stateless adapter to the remote fiscal API.
type Gateway interface {
	Submit(ctx context.Context, invoice NormalizedInvoice) (RemoteInvoice, error)
	// Finalize fails with ErrMissingSecurityElements when a confirm answer
	// lacks the fiscal code or QR payload; the decoded answer is returned too.
	Finalize(ctx context.Context, uid string, action FinalizeAction) (RemoteFinalization, error)
	QueryPending(ctx context.Context, uid string) (RemoteInvoiceDetails, error)
	QueryInfo(ctx context.Context, kind InfoKind) (ReferenceData, error)
	TaxpayerInfo(ctx context.Context) (ReferenceData, error)
}

// Validator checks a raw request against the fiscal business rules.
type Validator interface {
	Validate(req SubmitInvoiceRequest) (NormalizedInvoice, error)
}
