// Package restclient provides the HTTP client shared by all storage
// provider adapters, with automatic retry, bearer authentication, and
// error classification.
package restclient

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, restclient.ErrNotFound) to check.
var (
	ErrBadRequest   = errors.New("restclient: bad request")
	ErrUnauthorized = errors.New("restclient: unauthorized")
	ErrForbidden    = errors.New("restclient: forbidden")
	ErrNotFound     = errors.New("restclient: not found")
	ErrConflict     = errors.New("restclient: conflict")
	ErrThrottled    = errors.New("restclient: throttled")
	ErrServerError  = errors.New("restclient: server error")
)

// StatusError wraps a sentinel error with the HTTP status code and the
// response body for debugging.
type StatusError struct {
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("restclient: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryable reports whether the given HTTP status code should be retried.
// 401 is deliberately absent: an expired token never heals by retrying.
func isRetryable(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
