package correlation

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureGeneratesULID(t *testing.T) {
	ctx, id := Ensure(context.Background())
	require.NotEmpty(t, id)
	_, err := ulid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, ID(ctx))
}

func TestEnsureKeepsExisting(t *testing.T) {
	ctx := With(context.Background(), "cid-1")
	_, id := Ensure(ctx)
	assert.Equal(t, "cid-1", id)

	var empty context.Context
	assert.Empty(t, ID(empty))
}

func TestFromHeader(t *testing.T) {
	cases := map[string]string{
		"erp-batch-7":           "erp-batch-7",
		"  padded  ":            "padded",
		"with space":            "",
		"line\nbreak":           "",
		strings.Repeat("x", 65): "",
	}
	for value, want := range cases {
		h := http.Header{}
		h.Set(Header, value)
		assert.Equal(t, want, ID(FromHeader(context.Background(), h)), value)
	}
}
