package integrations

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	httpTimeout       = 10 * time.Second
	defaultAttempts   = 3
	defaultRetryDelay = time.Second
)

var (
	// ErrNotFound is returned when a package or resource doesn't exist in the registry.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = errors.New("network error")
)

// NewHTTPClient creates an HTTP client with a standard timeout for registry requests.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: httpTimeout}
}

// NormalizeCrateName converts a crate name to the form used for comparison.
// Cargo treats '-' and '_' as equivalent in crate names, and crates.io
// names are case-insensitive.
func NormalizeCrateName(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
}

// URLEncode percent-encodes a path segment.
// This is a convenience wrapper around [url.PathEscape].
func URLEncode(s string) string { return url.PathEscape(s) }
