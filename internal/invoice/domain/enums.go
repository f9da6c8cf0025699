package domain

import "strings"

// InvoiceKind is the fiscal invoice type accepted by e-MECeF.
type InvoiceKind string

const (
	InvoiceKindSale             InvoiceKind = "FV"
	InvoiceKindExportSale       InvoiceKind = "EV"
	InvoiceKindCreditNote       InvoiceKind = "FA"
	InvoiceKindExportCreditNote InvoiceKind = "EA"
)

var invoiceKindAliases = map[string]InvoiceKind{
	"FV":                 InvoiceKindSale,
	"EV":                 InvoiceKindExportSale,
	"FA":                 InvoiceKindCreditNote,
	"EA":                 InvoiceKindExportCreditNote,
	"SALE":               InvoiceKindSale,
	"EXPORT-SALE":        InvoiceKindExportSale,
	"CREDIT-NOTE":        InvoiceKindCreditNote,
	"EXPORT-CREDIT-NOTE": InvoiceKindExportCreditNote,
}

// ParseInvoiceKind accepts the wire code or its descriptive alias.
func ParseInvoiceKind(raw string) (InvoiceKind, bool) {
	kind, ok := invoiceKindAliases[normalizeToken(raw)]
	return kind, ok
}

// IsCreditNote reports whether the kind reverses a previously cleared invoice.
func (k InvoiceKind) IsCreditNote() bool {
	return k == InvoiceKindCreditNote || k == InvoiceKindExportCreditNote
}

func (k InvoiceKind) Label() string {
	switch k {
	case InvoiceKindSale:
		return "Facture de vente"
	case InvoiceKindExportSale:
		return "Facture de vente à l'exportation"
	case InvoiceKindCreditNote:
		return "Facture d'avoir"
	case InvoiceKindExportCreditNote:
		return "Facture d'avoir à l'exportation"
	default:
		return ""
	}
}

// TaxGroup is one of the six fiscal tax categories.
type TaxGroup string

const (
	TaxGroupA TaxGroup = "A"
	TaxGroupB TaxGroup = "B"
	TaxGroupC TaxGroup = "C"
	TaxGroupD TaxGroup = "D"
	TaxGroupE TaxGroup = "E"
	TaxGroupF TaxGroup = "F"
)

var defaultTaxRates = map[TaxGroup]int{
	TaxGroupA: 0,
	TaxGroupB: 18,
	TaxGroupC: 0,
	TaxGroupD: 18,
	TaxGroupE: 0,
	TaxGroupF: 0,
}

func ParseTaxGroup(raw string) (TaxGroup, bool) {
	group := TaxGroup(normalizeToken(raw))
	_, ok := defaultTaxRates[group]
	return group, ok
}

// AllowsSpecificTax reports whether a specific-tax amount may be declared on
// items of this group.
func (g TaxGroup) AllowsSpecificTax() bool {
	return g == TaxGroupA || g == TaxGroupE || g == TaxGroupF
}

// DefaultRate returns the statutory rate in percent.
func (g TaxGroup) DefaultRate() int {
	return defaultTaxRates[g]
}

// TaxGroups lists every group in declaration order.
func TaxGroups() []TaxGroup {
	return []TaxGroup{TaxGroupA, TaxGroupB, TaxGroupC, TaxGroupD, TaxGroupE, TaxGroupF}
}

// AIB is the withholding category applied to an invoice.
type AIB string

const (
	AIBNone AIB = ""
	AIBA    AIB = "A"
	AIBB    AIB = "B"
)

func ParseAIB(raw string) (AIB, bool) {
	switch AIB(normalizeToken(raw)) {
	case AIBA:
		return AIBA, true
	case AIBB:
		return AIBB, true
	default:
		return AIBNone, false
	}
}

// Rate returns the withholding rate in percent.
func (a AIB) Rate() int {
	switch a {
	case AIBA:
		return 1
	case AIBB:
		return 5
	default:
		return 0
	}
}

// PaymentMethod is the settlement type declared on an invoice.
type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "ESPECES"
	PaymentTransfer    PaymentMethod = "VIREMENT"
	PaymentCard        PaymentMethod = "CARTEBANCAIRE"
	PaymentMobileMoney PaymentMethod = "MOBILEMONEY"
	PaymentCheque      PaymentMethod = "CHEQUES"
	PaymentCredit      PaymentMethod = "CREDIT"
	PaymentOther       PaymentMethod = "AUTRE"
)

var paymentMethodAliases = map[string]PaymentMethod{
	"ESPECES":       PaymentCash,
	"VIREMENT":      PaymentTransfer,
	"CARTEBANCAIRE": PaymentCard,
	"MOBILEMONEY":   PaymentMobileMoney,
	"CHEQUES":       PaymentCheque,
	"CREDIT":        PaymentCredit,
	"AUTRE":         PaymentOther,
	"CASH":          PaymentCash,
	"TRANSFER":      PaymentTransfer,
	"CARD":          PaymentCard,
	"MOBILE-MONEY":  PaymentMobileMoney,
	"CHEQUE":        PaymentCheque,
	"OTHER":         PaymentOther,
}

func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	method, ok := paymentMethodAliases[normalizeToken(raw)]
	return method, ok
}

// Status is the local lifecycle state of an invoice.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusError     Status = "error"
)

func ParseStatus(raw string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch status {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusError:
		return status, true
	default:
		return "", false
	}
}

// CanTransition reports whether the state machine allows from -> to.
// Nothing moves back to pending; error may only be left by an explicit
// finalize retry.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusConfirmed || to == StatusCancelled || to == StatusError
	case StatusError:
		return to == StatusConfirmed || to == StatusCancelled || to == StatusError
	default:
		return false
	}
}

// FinalizeAction is the terminal decision sent for a pending invoice.
type FinalizeAction string

const (
	ActionConfirm FinalizeAction = "confirm"
	ActionCancel  FinalizeAction = "cancel"
)

func ParseFinalizeAction(raw string) (FinalizeAction, bool) {
	switch FinalizeAction(strings.ToLower(strings.TrimSpace(raw))) {
	case ActionConfirm:
		return ActionConfirm, true
	case ActionCancel:
		return ActionCancel, true
	default:
		return "", false
	}
}

// TargetStatus is the local status reached when the action succeeds remotely.
func (a FinalizeAction) TargetStatus() Status {
	if a == ActionCancel {
		return StatusCancelled
	}
	return StatusConfirmed
}

// InfoKind selects a reference-data endpoint.
type InfoKind string

const (
	InfoStatus       InfoKind = "status"
	InfoTaxGroups    InfoKind = "taxGroups"
	InfoInvoiceTypes InfoKind = "invoiceTypes"
	InfoPaymentTypes InfoKind = "paymentTypes"
)

func ParseInfoKind(raw string) (InfoKind, bool) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), "-", "")) {
	case "status":
		return InfoStatus, true
	case "taxgroups":
		return InfoTaxGroups, true
	case "invoicetypes":
		return InfoInvoiceTypes, true
	case "paymenttypes":
		return InfoPaymentTypes, true
	default:
		return "", false
	}
}

// InfoKinds lists every reference-data kind.
func InfoKinds() []InfoKind {
	return []InfoKind{InfoStatus, InfoTaxGroups, InfoInvoiceTypes, InfoPaymentTypes}
}

func normalizeToken(raw string) string {
	token := strings.ToUpper(strings.TrimSpace(raw))
	return strings.ReplaceAll(token, "_", "-")
}
