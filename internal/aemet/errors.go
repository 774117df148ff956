package aemet

import (
	"errors"
	"fmt"
)

var (
	// ErrAuth is returned when the API rejects the configured API key.
	ErrAuth = errors.New("aemet: API authentication error")

	// ErrAPIData is returned when the API reports no data for a request,
	// either via HTTP 404 or an embedded "estado" of 404.
	ErrAPIData = errors.New("aemet: API data error")

	// ErrTooManyRequests is returned when the API quota is exhausted.
	ErrTooManyRequests = errors.New("aemet: too many API requests")
)

// TransportError wraps connection-level failures (DNS, timeouts, circuit
// breaker) so callers can tell them apart from API-level rejections.
type TransportError struct {
	Endpoint string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("aemet: transport error on %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError reports an unexpected HTTP status from the API.
type APIError struct {
	Endpoint   string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("aemet: %s returned status %d", e.Endpoint, e.StatusCode)
}
