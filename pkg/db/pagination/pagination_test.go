package pagination

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageTokenRoundTrip(t *testing.T) {
	at := time.Date(2025, 5, 1, 9, 30, 0, 123456789, time.UTC)
	token := EncodePosition(42, at)
	require.NotEmpty(t, token)

	pos, err := ParsePageToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), pos.ID)
	assert.True(t, at.Equal(pos.CreatedAt))

	pos, err = ParsePageToken("  ")
	require.NoError(t, err)
	assert.Nil(t, pos)
}

func TestParsePageTokenRejectsGarbage(t *testing.T) {
	bad, err := EncodeCursor(Cursor{ID: "x", CreatedAt: "yesterday"})
	require.NoError(t, err)

	for _, token := range []string{"%%%", "bm90LWpzb24", bad} {
		_, err := ParsePageToken(token)
		assert.ErrorIs(t, err, ErrInvalidPageToken, token)
	}
}

func TestPageSize(t *testing.T) {
	assert.Equal(t, DefaultPageSize, PageSize(0))
	assert.Equal(t, 5, PageSize(5))
	assert.Equal(t, MaxPageSize, PageSize(MaxPageSize+1))
}

func TestBuildCursorPageInfo(t *testing.T) {
	rows := []int{1, 2, 3}
	cursor := func(v int) string { return strconv.Itoa(v) }

	page, info := BuildCursorPageInfo(rows, 2, cursor)
	assert.Equal(t, []int{1, 2}, page)
	assert.True(t, info.HasMore)
	assert.Equal(t, "2", info.NextPageToken)

	page, info = BuildCursorPageInfo(rows, 3, cursor)
	assert.Len(t, page, 3)
	assert.False(t, info.HasMore)
	assert.Empty(t, info.NextPageToken)

	page, info = BuildCursorPageInfo([]int(nil), 3, cursor)
	assert.Empty(t, page)
	assert.False(t, info.HasMore)
}
