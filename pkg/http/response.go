package http

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// MaxBodySize caps how much of a response body is read into memory.
const MaxBodySize = 10 << 20

// StatusError is returned for responses outside the 2xx range.
type StatusError struct {
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d %s", e.StatusCode, e.Status)
}

// ReadResponseBody reads at most MaxBodySize bytes and closes the body
func ReadResponseBody(resp *http.Response) ([]byte, error) {
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Error("Failed to close response body", "error", closeErr)
		}
	}()
	return io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))
}

// EnsureStatusOK returns a *StatusError unless the response is 2xx
func EnsureStatusOK(resp *http.Response) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	return nil
}
