package advisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// ErrEmptyResponse is returned when the model answered with no text.
var ErrEmptyResponse = errors.New("advisor: empty response from model")

// ErrBlocked is returned when the provider refused the prompt.
var ErrBlocked = errors.New("advisor: prompt blocked by provider")

// APIError is a non-2xx answer or an error object returned by a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("advisor: %s returned HTTP %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("advisor: %s returned HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
}

// Temporary reports whether retrying may succeed.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// retryable reports whether err is worth another attempt: transport
// errors, including a timed-out attempt, and temporary API errors.
func retryable(err error) bool {
	if errors.Is(err, ErrEmptyResponse) || errors.Is(err, ErrBlocked) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var decErr *decodeError
	if errors.As(err, &decErr) {
		return false
	}
	return true
}

// decodeError marks an answer body that could not be parsed.
type decodeError struct{ err error }

func (e *decodeError) Error() string { return "decode response: " + e.err.Error() }
func (e *decodeError) Unwrap() error { return e.err }
