package remote

import (
	"errors"
	"fmt"
	"net/http"
)

// Typed failures surfaced by the oracle. The coordinator decides whether a
// stale local copy can absorb them; the oracle itself never retries.
var (
	ErrOffline          = errors.New("remote unreachable")
	ErrNotFound         = errors.New("remote record not found")
	ErrPermissionDenied = errors.New("remote permission denied")
)

// statusErr maps an HTTP status code to the oracle's error taxonomy.
func statusErr(op string, code int) error {
	switch code {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w", op, ErrPermissionDenied)
	default:
		return fmt.Errorf("%s: status %d", op, code)
	}
}

// netErr wraps transport-level failures as offline. DNS errors, refused
// connections and timeouts all land here.
func netErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrOffline, err)
}
