// Package domain contains the fiscal invoice models, vocabularies and
// contracts shared by the clearance components.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Invoice is one fiscal transaction cleared (or being cleared) by e-MECeF.
// Fiscal amounts are copied from the remote submission response and never
// computed locally.
type Invoice struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	UID       string       `gorm:"column:uid;type:varchar(36);not null;uniqueIndex" json:"uid"`
	IFU       string       `gorm:"column:ifu;type:varchar(13);not null;index" json:"ifu"`
	AIB       AIB          `gorm:"column:aib;type:varchar(1)" json:"aib,omitempty"`
	Kind      InvoiceKind  `gorm:"column:type;type:varchar(2);not null" json:"type"`
	Reference string       `gorm:"type:varchar(24)" json:"reference,omitempty"`

	OperatorID    string `gorm:"type:varchar(50)" json:"operator_id,omitempty"`
	OperatorName  string `gorm:"type:varchar(255);not null" json:"operator_name"`
	ClientIFU     string `gorm:"column:client_ifu;type:varchar(13)" json:"client_ifu,omitempty"`
	ClientName    string `gorm:"type:varchar(255)" json:"client_name,omitempty"`
	ClientContact string `gorm:"type:varchar(255)" json:"client_contact,omitempty"`
	ClientAddress string `gorm:"type:varchar(500)" json:"client_address,omitempty"`

	TA        decimal.Decimal `gorm:"column:ta;type:decimal(15,2);not null;default:0" json:"ta"`
	TB        decimal.Decimal `gorm:"column:tb;type:decimal(15,2);not null;default:0" json:"tb"`
	TC        decimal.Decimal `gorm:"column:tc;type:decimal(15,2);not null;default:0" json:"tc"`
	TD        decimal.Decimal `gorm:"column:td;type:decimal(15,2);not null;default:0" json:"td"`
	TAA       decimal.Decimal `gorm:"column:taa;type:decimal(15,2);not null;default:0" json:"taa"`
	TAB       decimal.Decimal `gorm:"column:tab;type:decimal(15,2);not null;default:0" json:"tab"`
	TAC       decimal.Decimal `gorm:"column:tac;type:decimal(15,2);not null;default:0" json:"tac"`
	TAD       decimal.Decimal `gorm:"column:tad;type:decimal(15,2);not null;default:0" json:"tad"`
	TAE       decimal.Decimal `gorm:"column:tae;type:decimal(15,2);not null;default:0" json:"tae"`
	TAF       decimal.Decimal `gorm:"column:taf;type:decimal(15,2);not null;default:0" json:"taf"`
	HAB       decimal.Decimal `gorm:"column:hab;type:decimal(15,2);not null;default:0" json:"hab"`
	HAD       decimal.Decimal `gorm:"column:had;type:decimal(15,2);not null;default:0" json:"had"`
	VAB       decimal.Decimal `gorm:"column:vab;type:decimal(15,2);not null;default:0" json:"vab"`
	VAD       decimal.Decimal `gorm:"column:vad;type:decimal(15,2);not null;default:0" json:"vad"`
	AIBAmount decimal.Decimal `gorm:"column:aib_amount;type:decimal(15,2);not null;default:0" json:"aib_amount"`
	TS        decimal.Decimal `gorm:"column:ts;type:decimal(15,2);not null;default:0" json:"ts"`
	Total     decimal.Decimal `gorm:"column:total;type:decimal(15,2);not null;default:0" json:"total"`

	Status       Status  `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	CodeMECeFDGI *string `gorm:"column:code_mec_ef_dgi;type:varchar(29)" json:"code_mec_ef_dgi"`
	QRCode       *string `gorm:"column:qr_code;type:text" json:"qr_code"`
	DateTime     *string `gorm:"column:date_time;type:varchar(19)" json:"date_time"`
	Counters     *string `gorm:"column:counters;type:varchar(64)" json:"counters"`
	NIM          *string `gorm:"column:nim;type:varchar(10)" json:"nim"`
	ErrorCode    *string `gorm:"column:error_code;type:varchar(32)" json:"error_code,omitempty"`
	ErrorDesc    *string `gorm:"column:error_desc;type:text" json:"error_desc,omitempty"`

	SubmittedAt time.Time  `gorm:"not null;index" json:"submitted_at"`
	FinalizedAt *time.Time `gorm:"index" json:"finalized_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null" json:"updated_at"`

	Items    []InvoiceItem    `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"items,omitempty"`
	Payments []InvoicePayment `gorm:"foreignKey:InvoiceID;constraint:OnDelete:CASCADE" json:"payments,omitempty"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "emecf_invoices" }

// HasSecurityArtifacts reports whether the fiscal code and QR payload are set.
func (i Invoice) HasSecurityArtifacts() bool {
	return i.CodeMECeFDGI != nil && *i.CodeMECeFDGI != "" && i.QRCode != nil && *i.QRCode != ""
}

// InvoiceItem is a line of an invoice. Items are immutable after creation.
type InvoiceItem struct {
	ID                snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID         snowflake.ID    `gorm:"column:emecf_invoice_id;not null;index" json:"invoice_id"`
	Code              string          `gorm:"type:varchar(50)" json:"code,omitempty"`
	Name              string          `gorm:"type:varchar(255);not null" json:"name"`
	Price             int64           `gorm:"not null" json:"price"`
	Quantity          decimal.Decimal `gorm:"type:decimal(10,3);not null" json:"quantity"`
	TaxGroup          TaxGroup        `gorm:"column:tax_group;type:varchar(1);not null;index" json:"tax_group"`
	TaxSpecific       *int64          `gorm:"column:tax_specific" json:"tax_specific,omitempty"`
	OriginalPrice     *int64          `gorm:"column:original_price" json:"original_price,omitempty"`
	PriceModification string          `gorm:"column:price_modification;type:varchar(255)" json:"price_modification,omitempty"`
	CreatedAt         time.Time       `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "emecf_invoice_items" }

// Total is price × quantity, not rounded.
func (i InvoiceItem) Total() decimal.Decimal {
	return decimal.NewFromInt(i.Price).Mul(i.Quantity)
}

// HasPriceModification reports whether the price was overridden from the
// original catalog price.
func (i InvoiceItem) HasPriceModification() bool {
	return i.OriginalPrice != nil && *i.OriginalPrice != i.Price
}

// DiscountPercent derives the discount from the original price, rounded to
// two decimals. Zero when no modification applies.
func (i InvoiceItem) DiscountPercent() decimal.Decimal {
	if !i.HasPriceModification() || *i.OriginalPrice == 0 {
		return decimal.Zero
	}
	original := decimal.NewFromInt(*i.OriginalPrice)
	return original.Sub(decimal.NewFromInt(i.Price)).
		Div(original).
		Mul(decimal.NewFromInt(100)).
		Round(2)
}

// InvoicePayment is a settlement line of an invoice.
type InvoicePayment struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	InvoiceID snowflake.ID  `gorm:"column:emecf_invoice_id;not null;index" json:"invoice_id"`
	Method    PaymentMethod `gorm:"column:name;type:varchar(20);not null" json:"name"`
	Amount    int64         `gorm:"not null" json:"amount"`
	CreatedAt time.Time     `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (InvoicePayment) TableName() string { return "emecf_invoice_payments" }

// ReconciliationKind tells which side is ahead of the local record.
type ReconciliationKind string

const (
	ReconcileSubmitUnpersisted   ReconciliationKind = "submit_unpersisted"
	ReconcileFinalizeUnpersisted ReconciliationKind = "finalize_unpersisted"
)

// ReconciliationTask records a remote success that local storage failed to
// reflect.
type ReconciliationTask struct {
	ID         snowflake.ID       `gorm:"primaryKey" json:"id"`
	Kind       ReconciliationKind `gorm:"type:varchar(32);not null;index" json:"kind"`
	UID        string             `gorm:"column:uid;type:varchar(36);not null;index" json:"uid"`
	Action     string             `gorm:"type:varchar(16)" json:"action,omitempty"`
	Payload    datatypes.JSON     `gorm:"type:text" json:"payload"`
	LastError  string             `gorm:"type:text" json:"last_error,omitempty"`
	ResolvedAt *time.Time         `gorm:"index" json:"resolved_at,omitempty"`
	CreatedAt  time.Time          `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (ReconciliationTask) TableName() string { return "emecf_reconciliation_tasks" }
