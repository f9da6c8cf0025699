package validator

import (
	"html"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var strictPolicy = bluemonday.StrictPolicy()

// sanitizeText strips markup and unprintable runes from free text. Entities
// produced by the policy are decoded back so "A & B" survives unchanged.
func sanitizeText(s string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
	return strings.TrimSpace(html.UnescapeString(strictPolicy.Sanitize(cleaned)))
}
