package pagination

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidCursor = errors.New("invalid cursor")

const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// Cursor encodes a timestamp + row id for stable created_at ordering.
type Cursor struct {
	Timestamp time.Time
	ID        uuid.UUID
}

// EncodeCursor encodes the cursor as base64(ts_unix_nano:uuid).
func EncodeCursor(timestamp time.Time, id uuid.UUID) string {
	value := fmt.Sprintf("%d:%s", timestamp.UTC().UnixNano(), id.String())
	return base64.RawURLEncoding.EncodeToString([]byte(value))
}

// DecodeCursor decodes base64(ts_unix_nano:uuid) into a Cursor.
func DecodeCursor(cursor string) (Cursor, error) {
	cursor = strings.TrimSpace(cursor)
	if cursor == "" {
		return Cursor{}, ErrInvalidCursor
	}
	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	parts := strings.SplitN(string(decoded), ":", 2)
	if len(parts) != 2 {
		return Cursor{}, ErrInvalidCursor
	}
	unixNano, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	id, err := uuid.Parse(strings.TrimSpace(parts[1]))
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	return Cursor{Timestamp: time.Unix(0, unixNano).UTC(), ID: id}, nil
}

// LimitError reports an out-of-range or malformed limit parameter.
type LimitError struct {
	Message string
}

func (e LimitError) Error() string {
	return "invalid limit: " + e.Message
}

// ParseLimit reads the limit query parameter, defaulting to DefaultLimit.
func ParseLimit(values url.Values) (int, error) {
	rawLimit := strings.TrimSpace(values.Get("limit"))
	if rawLimit == "" {
		return DefaultLimit, nil
	}
	parsed, err := strconv.Atoi(rawLimit)
	if err != nil {
		return 0, LimitError{Message: "must be a number"}
	}
	if parsed < 1 || parsed > MaxLimit {
		return 0, LimitError{Message: fmt.Sprintf("must be between 1 and %d", MaxLimit)}
	}
	return parsed, nil
}
