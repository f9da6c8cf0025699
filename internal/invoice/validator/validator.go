// Package validator enforces the e-MECeF structural and business rules on an
// invoice request before any network call is made.
package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/sygmef/internal/config"
	invoicedomain "github.com/smallbiznis/sygmef/internal/invoice/domain"
)

const (
	ifuLength       = 13
	referenceLength = 24
	maxItems        = 100
	maxPayments     = 10
	maxNameLength   = 255
	maxOperatorID   = 50
	maxAddress      = 500
	maxAmount       = 999_999_999
)

var maxQuantity = decimal.RequireFromString("999999.999")

// CreditNoteSign is the quantity sign policy applied to credit-note items.
type CreditNoteSign string

const (
	CreditNoteNegative CreditNoteSign = "negative"
	CreditNotePositive CreditNoteSign = "positive"
	CreditNoteAnySign  CreditNoteSign = "any"
)

// ParseCreditNoteSign falls back to CreditNoteNegative for unknown values.
func ParseCreditNoteSign(raw string) CreditNoteSign {
	switch CreditNoteSign(strings.ToLower(strings.TrimSpace(raw))) {
	case CreditNotePositive:
		return CreditNotePositive
	case CreditNoteAnySign:
		return CreditNoteAnySign
	default:
		return CreditNoteNegative
	}
}

type Options struct {
	CreditNoteSign CreditNoteSign
	SanitizeText   bool
}

// OptionsFrom maps the fiscal settings to validator options.
func OptionsFrom(cfg config.EMECF) Options {
	return Options{
		CreditNoteSign: ParseCreditNoteSign(cfg.CreditNoteSign),
		SanitizeText:   cfg.SanitizeText,
	}
}

type Validator struct {
	sign     CreditNoteSign
	sanitize bool
	// source, when set, supplies the options for each Validate call.
	source func() Options
}

func New(opts Options) *Validator {
	sign := opts.CreditNoteSign
	if sign == "" {
		sign = CreditNoteNegative
	}
	return &Validator{sign: sign, sanitize: opts.SanitizeText}
}

// NewFromHolder reads the options from holder on every Validate, so a
// settings reload applies to the next invoice.
func NewFromHolder(holder *config.EMECFHolder) *Validator {
	return &Validator{source: func() Options {
		return OptionsFrom(holder.Get())
	}}
}

var _ invoicedomain.Validator = (*Validator)(nil)

// Validate returns the normalized invoice or a *domain.ValidationErrors
// listing every violation found.
func (v *Validator) Validate(req invoicedomain.SubmitInvoiceRequest) (invoicedomain.NormalizedInvoice, error) {
	if v.source != nil {
		v = New(v.source())
	}
	errs := &invoicedomain.ValidationErrors{}
	out := invoicedomain.NormalizedInvoice{}

	out.IFU = strings.TrimSpace(req.IFU)
	switch {
	case out.IFU == "":
		errs.Add("ifu", "required", "seller tax identifier is required")
	case !isDigits(out.IFU, ifuLength):
		errs.Add("ifu", "invalid_format", fmt.Sprintf("seller tax identifier must be %d digits", ifuLength))
	}

	if raw := strings.TrimSpace(req.AIB); raw != "" {
		aib, ok := invoicedomain.ParseAIB(raw)
		if !ok {
			errs.Add("aib", "invalid_value", "aib must be A or B")
		}
		out.AIB = aib
	}

	kindValid := false
	if strings.TrimSpace(req.Type) == "" {
		errs.Add("type", "required", "invoice type is required")
	} else if kind, ok := invoicedomain.ParseInvoiceKind(req.Type); ok {
		out.Kind = kind
		kindValid = true
	} else {
		errs.Add("type", "invalid_value", "invoice type must be one of FV, EV, FA, EA")
	}

	if kindValid && out.Kind.IsCreditNote() {
		reference := strings.TrimSpace(req.Reference)
		switch {
		case reference == "":
			errs.Add("reference", "required", "original invoice reference is required for credit notes")
		case utf8.RuneCountInString(reference) != referenceLength:
			errs.Add("reference", "invalid_length", fmt.Sprintf("original invoice reference must be %d characters", referenceLength))
		case !isAlphanumeric(reference):
			errs.Add("reference", "invalid_format", "original invoice reference must be alphanumeric")
		}
		out.Reference = reference
	}

	itemsValid := v.validateItems(req.Items, out.Kind, kindValid, errs, &out)

	out.Operator = invoicedomain.Operator{
		ID:   v.text(req.Operator.ID),
		Name: v.text(req.Operator.Name),
	}
	switch {
	case out.Operator.Name == "":
		errs.Add("operator.name", "required", "operator name is required")
	case utf8.RuneCountInString(out.Operator.Name) > maxNameLength:
		errs.Add("operator.name", "too_long", tooLong(maxNameLength))
	}
	if utf8.RuneCountInString(out.Operator.ID) > maxOperatorID {
		errs.Add("operator.id", "too_long", tooLong(maxOperatorID))
	}

	if req.Client != nil {
		out.Client = v.validateClient(*req.Client, errs)
	}

	paymentsValid := v.validatePayments(req.Payment, errs, &out)

	if itemsValid && paymentsValid && len(out.Payments) > 0 {
		paid := decimal.Zero
		for _, payment := range out.Payments {
			paid = paid.Add(decimal.NewFromInt(payment.Amount))
		}
		due := out.ItemsTotal().Abs().Round(0)
		if !paid.Equal(due) {
			errs.Add("payment", "sum_mismatch",
				fmt.Sprintf("payments total %s does not match items total %s", paid.String(), due.String()))
		}
	}

	if err := errs.ErrOrNil(); err != nil {
		return invoicedomain.NormalizedInvoice{}, err
	}
	return out, nil
}

func (v *Validator) validateItems(
	items []invoicedomain.ItemRequest,
	kind invoicedomain.InvoiceKind,
	kindValid bool,
	errs *invoicedomain.ValidationErrors,
	out *invoicedomain.NormalizedInvoice,
) bool {
	switch {
	case len(items) == 0:
		errs.Add("items", "required", "at least one item is required")
		return false
	case len(items) > maxItems:
		errs.Add("items", "too_many", fmt.Sprintf("at most %d items are allowed", maxItems))
		return false
	}

	before := len(errs.Violations)
	out.Items = make([]invoicedomain.NormalizedItem, 0, len(items))
	for idx, item := range items {
		field := func(name string) string { return fmt.Sprintf("items[%d].%s", idx, name) }
		normalized := invoicedomain.NormalizedItem{
			Code:              v.text(item.Code),
			Name:              v.text(item.Name),
			PriceModification: v.text(item.PriceModification),
		}

		switch {
		case normalized.Name == "":
			errs.Add(field("name"), "required", "item name is required")
		case utf8.RuneCountInString(normalized.Name) > maxNameLength:
			errs.Add(field("name"), "too_long", tooLong(maxNameLength))
		}

		if price, ok := amount(item.Price, field("price"), true, errs); ok {
			normalized.Price = price
		}

		if item.Quantity == nil {
			errs.Add(field("quantity"), "required", "item quantity is required")
		} else {
			qty := *item.Quantity
			switch {
			case qty.IsZero():
				errs.Add(field("quantity"), "invalid_value", "item quantity must not be zero")
			case qty.Abs().GreaterThan(maxQuantity):
				errs.Add(field("quantity"), "out_of_range", "item quantity exceeds 999999.999")
			case !qty.Equal(qty.Truncate(3)):
				errs.Add(field("quantity"), "too_precise", "item quantity allows at most 3 decimals")
			case kindValid:
				v.checkSign(qty, kind, field("quantity"), errs)
			}
			normalized.Quantity = qty
		}

		group, groupOK := invoicedomain.ParseTaxGroup(item.TaxGroup)
		switch {
		case strings.TrimSpace(item.TaxGroup) == "":
			errs.Add(field("taxGroup"), "required", "item tax group is required")
		case !groupOK:
			errs.Add(field("taxGroup"), "invalid_value", "item tax group must be one of A, B, C, D, E, F")
		default:
			normalized.TaxGroup = group
		}

		if item.TaxSpecific != nil {
			if groupOK && !group.AllowsSpecificTax() {
				errs.Add(field("taxSpecific"), "not_allowed", "specific tax is only allowed for tax groups A, E and F")
			} else if value, ok := amount(item.TaxSpecific, field("taxSpecific"), false, errs); ok {
				normalized.TaxSpecific = &value
			}
		}

		if item.OriginalPrice != nil {
			if value, ok := amount(item.OriginalPrice, field("originalPrice"), false, errs); ok {
				normalized.OriginalPrice = &value
			}
		}
		if utf8.RuneCountInString(normalized.PriceModification) > maxNameLength {
			errs.Add(field("priceModification"), "too_long", tooLong(maxNameLength))
		}

		out.Items = append(out.Items, normalized)
	}
	return len(errs.Violations) == before
}

func (v *Validator) checkSign(qty decimal.Decimal, kind invoicedomain.InvoiceKind, field string, errs *invoicedomain.ValidationErrors) {
	policy := CreditNotePositive
	if kind.IsCreditNote() {
		policy = v.sign
	}
	switch policy {
	case CreditNoteNegative:
		if qty.IsPositive() {
			errs.Add(field, "must_be_negative", "credit note quantities must be negative")
		}
	case CreditNotePositive:
		if qty.IsNegative() {
			errs.Add(field, "must_be_positive", "item quantity must be positive")
		}
	}
}

func (v *Validator) validateClient(client invoicedomain.ClientRequest, errs *invoicedomain.ValidationErrors) *invoicedomain.Client {
	out := &invoicedomain.Client{
		IFU:     strings.TrimSpace(client.IFU),
		Name:    v.text(client.Name),
		Contact: v.text(client.Contact),
		Address: v.text(client.Address),
	}
	if out.IFU != "" && !isDigits(out.IFU, ifuLength) {
		errs.Add("client.ifu", "invalid_format", fmt.Sprintf("client tax identifier must be %d digits", ifuLength))
	}
	if utf8.RuneCountInString(out.Name) > maxNameLength {
		errs.Add("client.name", "too_long", tooLong(maxNameLength))
	}
	if utf8.RuneCountInString(out.Contact) > maxNameLength {
		errs.Add("client.contact", "too_long", tooLong(maxNameLength))
	}
	if utf8.RuneCountInString(out.Address) > maxAddress {
		errs.Add("client.address", "too_long", tooLong(maxAddress))
	}
	if *out == (invoicedomain.Client{}) {
		return nil
	}
	return out
}

func (v *Validator) validatePayments(
	payments []invoicedomain.PaymentRequest,
	errs *invoicedomain.ValidationErrors,
	out *invoicedomain.NormalizedInvoice,
) bool {
	if len(payments) == 0 {
		return true
	}
	if len(payments) > maxPayments {
		errs.Add("payment", "too_many", fmt.Sprintf("at most %d payments are allowed", maxPayments))
		return false
	}

	before := len(errs.Violations)
	out.Payments = make([]invoicedomain.NormalizedPayment, 0, len(payments))
	for idx, payment := range payments {
		field := func(name string) string { return fmt.Sprintf("payment[%d].%s", idx, name) }
		normalized := invoicedomain.NormalizedPayment{}

		if strings.TrimSpace(payment.Name) == "" {
			errs.Add(field("name"), "required", "payment type is required")
		} else if method, ok := invoicedomain.ParsePaymentMethod(payment.Name); ok {
			normalized.Method = method
		} else {
			errs.Add(field("name"), "invalid_value", "payment type is not supported")
		}

		if value, ok := amount(payment.Amount, field("amount"), true, errs); ok {
			normalized.Amount = value
		}
		out.Payments = append(out.Payments, normalized)
	}
	return len(errs.Violations) == before
}

func (v *Validator) text(s string) string {
	if v.sanitize {
		return sanitizeText(s)
	}
	return strings.TrimSpace(s)
}

// amount checks a non-negative integer amount in the smallest currency unit.
func amount(value *decimal.Decimal, field string, required bool, errs *invoicedomain.ValidationErrors) (int64, bool) {
	if value == nil {
		if required {
			errs.Add(field, "required", "amount is required")
		}
		return 0, false
	}
	switch {
	case !value.IsInteger():
		errs.Add(field, "not_integer", "amount must be an integer")
		return 0, false
	case value.IsNegative():
		errs.Add(field, "out_of_range", "amount must not be negative")
		return 0, false
	case value.GreaterThan(decimal.NewFromInt(maxAmount)):
		errs.Add(field, "out_of_range", fmt.Sprintf("amount must not exceed %d", maxAmount))
		return 0, false
	}
	return value.IntPart(), true
}

func isDigits(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isAlphanumeric(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		default:
			return false
		}
	}
	return true
}

func tooLong(max int) string {
	return fmt.Sprintf("must be at most %d characters", max)
}
