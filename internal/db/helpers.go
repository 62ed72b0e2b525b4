package db

import (
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
)

// nilIfZeroTime lets COALESCE($n, NOW()) style defaults apply when the caller
// left a timestamp unset.
func nilIfZeroTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// nilIfEmpty maps an empty string to SQL NULL.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// isNoRows reports whether err is the driver's no-rows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
