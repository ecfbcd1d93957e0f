package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidTimestamp = errors.New("invalid timestamp")

// storedLayout is fixed width so stored values sort chronologically.
const storedLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in the storage layout (UTC, millisecond precision).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(storedLayout)
}

// ParseTimestamp accepts RFC 3339 timestamps with optional fractional seconds.
func ParseTimestamp(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrInvalidTimestamp)
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, raw)
	}
	return t.UTC(), nil
}
