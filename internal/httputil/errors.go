// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Sentinel errors for classified upstream failures. Callers match them
// with errors.Is after any amount of wrapping.
var (
	// ErrRateLimited indicates an HTTP 429 from the upstream API.
	ErrRateLimited = errors.New("rate limited")

	// ErrNotFound indicates an HTTP 404 from the upstream API.
	ErrNotFound = errors.New("not found")

	// ErrServer indicates an HTTP 5xx from the upstream API.
	ErrServer = errors.New("server error")
)

// StatusError reports a non-2xx response that does not map to one of
// the sentinel errors above.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected response status %s", e.Status)
}

// CheckStatus classifies a response by status code. 2xx returns nil;
// 429, 404 and 5xx wrap the matching sentinel; anything else becomes a
// StatusError. On a non-2xx response the body is drained and closed so
// the underlying connection can be reused.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("HTTP 429: %w", ErrRateLimited)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("HTTP 404: %w", ErrNotFound)
	case resp.StatusCode >= 500:
		return fmt.Errorf("HTTP %d: %w", resp.StatusCode, ErrServer)
	default:
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
}

// IsTransient reports whether err warrants a retry: rate limiting,
// upstream server errors, and transport-level failures.
func IsTransient(err error) bool {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServer) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// IsNotFound reports whether err stems from an HTTP 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
