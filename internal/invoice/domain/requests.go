package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/sygmef/pkg/db/pagination"
)

// SubmitInvoiceRequest is the caller-supplied invoice before validation.
// Enumerated fields stay raw strings until the validator parses them.
type SubmitInvoiceRequest struct {
	IFU       string           `json:"ifu"`
	AIB       string           `json:"aib,omitempty"`
	Type      string           `json:"type"`
	Reference string           `json:"reference,omitempty"`
	Items     []ItemRequest    `json:"items"`
	Client    *ClientRequest   `json:"client,omitempty"`
	Operator  OperatorRequest  `json:"operator"`
	Payment   []PaymentRequest `json:"payment,omitempty"`
}

type ItemRequest struct {
	Code              string           `json:"code,omitempty"`
	Name              string           `json:"name"`
	Price             *decimal.Decimal `json:"price"`
	Quantity          *decimal.Decimal `json:"quantity"`
	TaxGroup          string           `json:"taxGroup"`
	TaxSpecific       *decimal.Decimal `json:"taxSpecific,omitempty"`
	OriginalPrice     *decimal.Decimal `json:"originalPrice,omitempty"`
	PriceModification string           `json:"priceModification,omitempty"`
}

type ClientRequest struct {
	IFU     string `json:"ifu,omitempty"`
	Name    string `json:"name,omitempty"`
	Contact string `json:"contact,omitempty"`
	Address string `json:"address,omitempty"`
}

type OperatorRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

type PaymentRequest struct {
	Name   string           `json:"name"`
	Amount *decimal.Decimal `json:"amount"`
}

// NormalizedInvoice is a validated invoice; every enumerated field is typed.
type NormalizedInvoice struct {
	IFU       string
	AIB       AIB
	Kind      InvoiceKind
	Reference string
	Items     []NormalizedItem
	Client    *Client
	Operator  Operator
	Payments  []NormalizedPayment
}

type NormalizedItem struct {
	Code              string
	Name              string
	Price             int64
	Quantity          decimal.Decimal
	TaxGroup          TaxGroup
	TaxSpecific       *int64
	OriginalPrice     *int64
	PriceModification string
}

type Client struct {
	IFU     string
	Name    string
	Contact string
	Address string
}

type Operator struct {
	ID   string
	Name string
}

type NormalizedPayment struct {
	Method PaymentMethod
	Amount int64
}

// ItemsTotal is the sum of price × quantity over every item.
func (n NormalizedInvoice) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range n.Items {
		total = total.Add(decimal.NewFromInt(item.Price).Mul(item.Quantity))
	}
	return total
}

// RemoteInvoice is the successful submission answer: the remote uid and the
// tax breakdown computed by the authority.
type RemoteInvoice struct {
	UID   string          `json:"uid"`
	TA    decimal.Decimal `json:"ta"`
	TB    decimal.Decimal `json:"tb"`
	TC    decimal.Decimal `json:"tc"`
	TD    decimal.Decimal `json:"td"`
	TAA   decimal.Decimal `json:"taa"`
	TAB   decimal.Decimal `json:"tab"`
	TAC   decimal.Decimal `json:"tac"`
	TAD   decimal.Decimal `json:"tad"`
	TAE   decimal.Decimal `json:"tae"`
	TAF   decimal.Decimal `json:"taf"`
	HAB   decimal.Decimal `json:"hab"`
	HAD   decimal.Decimal `json:"had"`
	VAB   decimal.Decimal `json:"vab"`
	VAD   decimal.Decimal `json:"vad"`
	AIB   decimal.Decimal `json:"aib"`
	TS    decimal.Decimal `json:"ts"`
	Total decimal.Decimal `json:"total"`

	Raw json.RawMessage `json:"-"`
}

// RemoteFinalization carries the security artifacts of a confirmation.
// A cancellation leaves every field empty.
type RemoteFinalization struct {
	CodeMECeFDGI string `json:"codeMECeFDGI"`
	QRCode       string `json:"qrCode"`
	DateTime     string `json:"dateTime"`
	Counters     string `json:"counters"`
	NIM          string `json:"nim"`

	Raw json.RawMessage `json:"-"`
}

// HasSecurityElements reports whether a confirm answer carries the fiscal
// code and QR payload.
func (f RemoteFinalization) HasSecurityElements() bool {
	return strings.TrimSpace(f.CodeMECeFDGI) != "" && strings.TrimSpace(f.QRCode) != ""
}

// RemoteInvoiceDetails is the remote view of a not-yet-finalized invoice.
type RemoteInvoiceDetails map[string]any

// ReferenceData is a reference-data document as returned by the remote API.
// Array payloads are exposed under the "items" key.
type ReferenceData map[string]any

// LocalTracking describes what happened to the local record.
type LocalTracking string

const (
	LocalTrackingPersisted LocalTracking = "persisted"
	LocalTrackingDegraded  LocalTracking = "degraded"
	LocalTrackingDisabled  LocalTracking = "disabled"
)

// SubmitResult is returned for every remote-accepted submission, including
// the ones whose local persistence failed.
type SubmitResult struct {
	Invoice          *Invoice      `json:"invoice,omitempty"`
	Remote           RemoteInvoice `json:"remote"`
	LocalTracking    LocalTracking `json:"local_tracking"`
	ReconciliationID string        `json:"reconciliation_task_id,omitempty"`

	// PersistenceErr wraps ErrPersistence when LocalTracking is degraded.
	PersistenceErr error `json:"-"`
}

type FinalizeRequest struct {
	UID    string
	Action FinalizeAction
}

type FinalizeResult struct {
	Invoice          *Invoice           `json:"invoice,omitempty"`
	Remote           RemoteFinalization `json:"remote"`
	LocalTracking    LocalTracking      `json:"local_tracking"`
	ReconciliationID string             `json:"reconciliation_task_id,omitempty"`

	PersistenceErr error `json:"-"`
}

type ListInvoiceRequest struct {
	Status      *Status
	IFU         string
	Kind        *InvoiceKind
	Search      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	PageToken   string
	PageSize    int
}

type ListInvoiceResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type StatsRequest struct {
	Months      int
	RecentLimit int
}

type MonthlyStat struct {
	Month string          `json:"month"`
	Count int64           `json:"count"`
	Total decimal.Decimal `json:"total"`
}

type Stats struct {
	Total          int64           `json:"total"`
	Pending        int64           `json:"pending"`
	Confirmed      int64           `json:"confirmed"`
	Cancelled      int64           `json:"cancelled"`
	Errored        int64           `json:"error"`
	ConfirmedTotal decimal.Decimal `json:"confirmed_total"`
	CreatedToday   int64           `json:"created_today"`
	Monthly        []MonthlyStat   `json:"monthly"`
	Recent         []Invoice       `json:"recent"`
}

type ListReconciliationRequest struct {
	IncludeResolved bool
	Limit           int
}
