package pagination

import (
	"encoding/base64"
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeCursor(t *testing.T) {
	timestamp := time.Date(2024, 1, 2, 3, 4, 5, 6, time.UTC)
	id := uuid.MustParse("5b0a52d4-0a1c-4c3c-9d3e-0f2a7c1e9b11")

	cursor := EncodeCursor(timestamp, id)

	decoded, err := DecodeCursor(cursor)

	require.NoError(t, err)
	require.Equal(t, timestamp, decoded.Timestamp)
	require.Equal(t, id, decoded.ID)
}

func TestDecodeCursorErrors(t *testing.T) {
	_, err := DecodeCursor("")

	require.ErrorIs(t, err, ErrInvalidCursor)

	_, err = DecodeCursor("not base64!")

	require.ErrorIs(t, err, ErrInvalidCursor)

	_, err = DecodeCursor(base64.RawURLEncoding.EncodeToString([]byte("no-separator")))

	require.ErrorIs(t, err, ErrInvalidCursor)

	_, err = DecodeCursor(base64.RawURLEncoding.EncodeToString([]byte("123:not-a-uuid")))

	require.ErrorIs(t, err, ErrInvalidCursor)
}

func TestParseLimit(t *testing.T) {
	limit, err := ParseLimit(url.Values{})
	require.NoError(t, err)
	require.Equal(t, DefaultLimit, limit)

	limit, err = ParseLimit(url.Values{"limit": {"10"}})
	require.NoError(t, err)
	require.Equal(t, 10, limit)

	_, err = ParseLimit(url.Values{"limit": {"abc"}})
	require.ErrorAs(t, err, &LimitError{})

	_, err = ParseLimit(url.Values{"limit": {"0"}})
	require.ErrorAs(t, err, &LimitError{})

	_, err = ParseLimit(url.Values{"limit": {"201"}})
	require.ErrorAs(t, err, &LimitError{})
}
