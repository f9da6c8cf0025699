package pagination

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	token, err := EncodeCursor(Cursor{ID: "42", CreatedAt: "2026-01-02T03:04:05Z"})
	require.NoError(t, err)

	cursor, err := DecodeCursor(token)
	require.NoError(t, err)
	assert.Equal(t, "42", cursor.ID)
	assert.Equal(t, "2026-01-02T03:04:05Z", cursor.CreatedAt)

	_, err = DecodeCursor("%%%")
	assert.Error(t, err)
}

func TestBuildCursorPageInfo(t *testing.T) {
	rows := []int{1, 2, 3, 4}
	extract := func(v int) string { return strconv.Itoa(v) }

	page, info := BuildCursorPageInfo(rows, 3, extract)
	assert.Equal(t, []int{1, 2, 3}, page)
	assert.True(t, info.HasMore)
	assert.Equal(t, "3", info.NextPageToken)

	page, info = BuildCursorPageInfo(rows[:2], 3, extract)
	assert.Len(t, page, 2)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)
}

func TestPaginationSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, Pagination{}.Size())
	assert.Equal(t, MaxPageSize, Pagination{PageSize: 1000}.Size())
	assert.Equal(t, 20, Pagination{PageSize: 20}.Size())
}
