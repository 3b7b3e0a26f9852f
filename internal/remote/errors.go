// Package remote provides an HTTP client for a generic document-management
// REST API, shared by the cloud and local endpoints. It handles request
// construction, authentication, retry with exponential backoff, optimistic
// concurrency retry, and error classification.
package remote

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for HTTP status code classification.
// Use errors.Is(err, remote.ErrNotFound) to check.
var (
	ErrNetwork          = errors.New("remote: network error")
	ErrUnauthorized     = errors.New("remote: unauthorized")
	ErrNotFound         = errors.New("remote: not found")
	ErrValidation       = errors.New("remote: validation error")
	ErrTimestampMismatch = errors.New("remote: timestamp mismatch")
	ErrRemoteError      = errors.New("remote: server error")
)

// timestampMismatchSentinels are case-insensitive substrings of the response
// body that indicate an optimistic-concurrency collision on update.
var timestampMismatchSentinels = []string{
	"timestamp mismatch",
	"document has been modified",
	"has been modified after you have opened it",
}

// isTimestampMismatch reports whether body contains any of the known
// optimistic-concurrency collision phrases, case-insensitive.
func isTimestampMismatch(body string) bool {
	lower := strings.ToLower(body)
	for _, s := range timestampMismatchSentinels {
		if strings.Contains(lower, s) {
			return true
		}
	}

	return false
}

// APIError wraps a sentinel error with HTTP status code, request path, and
// the API error message body for debugging.
type APIError struct {
	StatusCode int
	Path       string
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *APIError) Error() string {
	return fmt.Sprintf("remote: HTTP %d %s: %s", e.StatusCode, e.Path, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code (and, for 4xx, the response body)
// to a sentinel error. Returns nil for 2xx success codes.
func classifyStatus(code int, body string) error {
	switch {
	case code >= http.StatusOK && code < http.StatusMultipleChoices:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return ErrUnauthorized
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusConflict && isTimestampMismatch(body):
		return ErrTimestampMismatch
	case code >= http.StatusBadRequest && code < http.StatusInternalServerError:
		if isTimestampMismatch(body) {
			return ErrTimestampMismatch
		}

		return ErrValidation
	case code >= http.StatusInternalServerError:
		return ErrRemoteError
	default:
		return ErrRemoteError
	}
}

// isRetryable reports whether the given HTTP status code should be retried
// at the transport layer (network-level retry, not the optimistic-concurrency
// retry which is handled separately in Update).
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
