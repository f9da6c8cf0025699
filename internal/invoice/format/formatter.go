// Package format renders fiscal amounts and codes the way they are printed
// on a normalized receipt.
package format

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
)

// CurrencySuffix is appended to printed amounts.
const CurrencySuffix = "FCFA"

// Amount groups thousands with a space and drops decimals, e.g. "-12 500".
func Amount(value decimal.Decimal) string {
	rounded := value.Round(0)
	digits := rounded.Abs().StringFixed(0)

	var b strings.Builder
	if rounded.IsNegative() {
		b.WriteByte('-')
	}
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Money is Amount followed by the currency suffix.
func Money(value decimal.Decimal) string {
	return Amount(value) + " " + CurrencySuffix
}

// Quantity prints up to three decimals without trailing zeros.
func Quantity(value decimal.Decimal) string {
	return value.Round(3).String()
}

// TaxGroup prints the group with its statutory rate, e.g. "B (18%)".
func TaxGroup(group domain.TaxGroup) string {
	return fmt.Sprintf("%s (%d%%)", group, group.DefaultRate())
}

// SecurityCode returns the code or a dash when it is not set.
func SecurityCode(code *string) string {
	if code == nil || strings.TrimSpace(*code) == "" {
		return "-"
	}
	return *code
}
