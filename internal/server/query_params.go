package server

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/sygmef/internal/invoice/domain"
)

// dayLayouts are the date-only forms accepted besides RFC 3339. The second is
// the day-first form printed on DGI receipts.
var dayLayouts = []string{"2006-01-02", "02/01/2006"}

// queryReader parses optional query parameters and collects every bad value
// so the caller gets them all in one 400.
type queryReader struct {
	c    *gin.Context
	errs domain.ValidationErrors
}

func newQueryReader(c *gin.Context) *queryReader {
	return &queryReader{c: c}
}

func (q *queryReader) raw(name string) string {
	return strings.TrimSpace(q.c.Query(name))
}

func (q *queryReader) fail(name, code, message string) {
	q.errs.Add(name, code, message)
}

// Int sets *dst when the parameter is a non-negative integer.
func (q *queryReader) Int(name string, dst *int) {
	value := q.raw(name)
	if value == "" {
		return
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		q.fail(name, "invalid_"+name, "must be a non-negative integer")
		return
	}
	*dst = parsed
}

func (q *queryReader) Bool(name string, dst *bool) {
	value := q.raw(name)
	if value == "" {
		return
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		q.fail(name, "invalid_bool", "must be true or false")
		return
	}
	*dst = parsed
}

// Date returns nil when the parameter is absent. Date-only values cover the
// whole UTC day: endOfDay selects its last instant.
func (q *queryReader) Date(name string, endOfDay bool) *time.Time {
	value := q.raw(name)
	if value == "" {
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return &parsed
	}
	for _, layout := range dayLayouts {
		day, err := time.ParseInLocation(layout, value, time.UTC)
		if err != nil {
			continue
		}
		if endOfDay {
			day = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		return &day
	}
	q.fail(name, "invalid_date", "must be RFC 3339, YYYY-MM-DD or DD/MM/YYYY")
	return nil
}

// Err returns the collected violations as a request error.
func (q *queryReader) Err() error {
	if len(q.errs.Violations) == 0 {
		return nil
	}
	errs := q.errs
	return requestError{&errs}
}
