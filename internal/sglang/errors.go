package sglang

import (
	"fmt"
	"net/http"
)

// maxSnippet bounds how much of a response body is echoed back in errors.
const maxSnippet = 512

// ConnectionError means the endpoint could not be reached: refused
// connections, DNS failures, transport timeouts.
type ConnectionError struct {
	URL     string
	Timeout bool
	Err     error
}

func (e *ConnectionError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("request to %s timed out: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("cannot connect to %s: %v", e.URL, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProtocolError means the endpoint answered, but with a non-success status
// or a body that does not have the expected shape.
type ProtocolError struct {
	StatusCode int
	Body       string // truncated raw body
	Err        error  // parse failure, nil for bad status
}

func (e *ProtocolError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("server returned %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Body)
	}
	if e.Body == "" {
		return fmt.Sprintf("malformed response (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("malformed response (status %d): %v: %s", e.StatusCode, e.Err, e.Body)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

func snippet(body []byte) string {
	if len(body) <= maxSnippet {
		return string(body)
	}
	return string(body[:maxSnippet]) + "..."
}
