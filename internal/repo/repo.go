package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"missioncontrol/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

// parseStamp parses a stored timestamp column into dst.
func parseStamp(dst *time.Time, raw, column string) error {
	t, err := domain.ParseTimestamp(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", column, err)
	}
	*dst = t
	return nil
}

func normalizeLimit(limit, fallback, max int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > max {
		return max
	}
	return limit
}
