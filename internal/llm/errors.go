// Package llm provides clients for the embedding and generation backends
// plus the response recovery logic that turns raw model output into a
// structured review.
package llm

import (
	"fmt"
	"net/http"

	"github.com/nakbase/paper-review-service/internal/domain"
)

// maxErrorBodyLen bounds how much of an error response body is kept for
// diagnostics.
const maxErrorBodyLen = 512

// APIError represents an error response from a model backend.
type APIError struct {
	// StatusCode is the HTTP status returned by the backend, zero for
	// transport-level failures.
	StatusCode int

	// Message is the backend's error text, truncated for logging.
	Message string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("model backend unreachable: %s", e.Message)
	}
	return fmt.Sprintf("model backend returned %d: %s", e.StatusCode, e.Message)
}

// IsTransient reports whether the failure is worth retrying. Transport
// failures, rate limiting and server-side errors are transient; other
// client errors are not.
func (e *APIError) IsTransient() bool {
	if e.StatusCode == 0 {
		return true
	}
	if e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusRequestTimeout {
		return true
	}
	return e.StatusCode >= http.StatusInternalServerError
}

// Unwrap maps transient API errors onto the shared unavailability sentinel.
func (e *APIError) Unwrap() error {
	if e.IsTransient() {
		return domain.ErrServiceUnavailable
	}
	return nil
}
