// internal/pkg/errors/error.go
package xerrors

import (
	"errors"
	"fmt"
	"time"
)

// Common reusable application errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired or invalid")
	ErrStateMismatch      = errors.New("oauth state mismatch")
	ErrProviderError      = errors.New("provider denied or failed the request")
	ErrLinkExpired        = errors.New("link request expired")
	ErrRateLimited        = errors.New("too many requests")
	ErrServerUnavailable  = errors.New("server unavailable")
	ErrValidation         = errors.New("malformed server response")
	ErrNotFound           = errors.New("resource not found")
)

// RateLimitError carries the server-indicated cool-down delay alongside
// the ErrRateLimited sentinel.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many requests, retry after %s", e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// RetryAfter extracts the server-indicated delay from a rate-limit error,
// or falls back to the given default.
func RetryAfter(err error, fallback time.Duration) time.Duration {
	var rle *RateLimitError
	if errors.As(err, &rle) && rle.RetryAfter > 0 {
		return rle.RetryAfter
	}
	return fallback
}

// Wrap adds context to an error (similar to fmt.Errorf("%w")).
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is allows checking whether an error is a specific sentinel error.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// MessageOrDefault returns err.Error() or a fallback message if err is nil.
func MessageOrDefault(err error, fallback string) string {
	if err != nil {
		return err.Error()
	}
	return fallback
}
