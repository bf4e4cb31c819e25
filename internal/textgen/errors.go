package textgen

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors classifying collaborator failures.
var (
	// ErrRateLimited: HTTP 429. Retryable with backoff.
	ErrRateLimited = errors.New("text generation rate limited")
	// ErrServerError: HTTP 5xx. Retryable.
	ErrServerError = errors.New("text generation server error")
	// ErrNetwork: the request never produced a response. Retryable.
	ErrNetwork = errors.New("text generation network error")
	// ErrBadRequest: any other 4xx. The request itself is wrong; retrying
	// cannot fix it.
	ErrBadRequest = errors.New("text generation request rejected")
	// ErrUnavailable: retries exhausted on a retryable failure.
	ErrUnavailable = errors.New("text generation service unavailable")
)

// IsRetryable reports whether err may succeed on a later attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrServerError) ||
		errors.Is(err, ErrNetwork)
}

// errorFromStatus maps a non-200 HTTP status to the sentinel taxonomy.
func errorFromStatus(status int) error {
	switch {
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d", ErrRateLimited, status)
	case status >= 500:
		return fmt.Errorf("%w: status %d", ErrServerError, status)
	default:
		return fmt.Errorf("%w: status %d", ErrBadRequest, status)
	}
}
