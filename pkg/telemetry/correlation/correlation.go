// Package correlation ties the remote e-MECeF call of one fiscal operation
// to its local writes, logs and spans.
package correlation

import (
	"context"
	"net/http"
	"strings"

	"github.com/oklog/ulid/v2"
)

// Header lets a caller supply its own operation id.
const Header = "X-Correlation-Id"

const maxLength = 64

type key struct{}

func ID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(key{}).(string)
	return id
}

func With(ctx context.Context, id string) context.Context {
	id = sanitize(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, key{}, id)
}

// Ensure returns ctx with an id, minting a ULID when none is set.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := ID(ctx); id != "" {
		return ctx, id
	}
	id := ulid.Make().String()
	return context.WithValue(ctx, key{}, id), id
}

// FromHeader copies a caller-supplied id onto ctx. Oversized or non-printable
// values are ignored.
func FromHeader(ctx context.Context, h http.Header) context.Context {
	return With(ctx, h.Get(Header))
}

func sanitize(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > maxLength {
		return ""
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return ""
		}
	}
	return id
}
