package tracing

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
)

var safeAttributeKeys = map[attribute.Key]struct{}{
	"http.method":              {},
	"http.route":               {},
	"http.status_code":         {},
	"http.server_duration_ms":  {},
	"request_id":               {},
	"emecf.operation":          {},
	"emecf.attempts":           {},
	"emecf.error_kind":         {},
	"emecf.error_code":         {},
	"emecf.indeterminate":      {},
	"invoice.kind":             {},
	"invoice.action":           {},
	"invoice.status":           {},
	"invoice.local_tracking":   {},
	"reference_data.kind":      {},
	"reference_data.cache_hit": {},
}

// SafeAttributes drops attributes that could carry taxpayer data. Invoice
// uids, IFUs and tokens never reach span attributes.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := safeAttributeKeys[attr.Key]; ok {
			out = append(out, attr)
		}
	}
	return out
}

// SafeError returns an error safe to record on a span: bearer tokens are
// redacted from the message.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if idx := strings.Index(strings.ToLower(msg), "bearer "); idx >= 0 {
		msg = msg[:idx] + "bearer [redacted]"
	}
	return errors.New(msg)
}

// ExtractContext pulls the remote span context from inbound headers.
func ExtractContext(ctx context.Context, carrier propagation.TextMapCarrier) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
