// Package fetcher retrieves pages from the results source politely: one
// host-scoped rate limiter, bounded retries, charset-aware bodies.
package fetcher

import (
	"context"
	"net/http"
)

// Page is a fetched document. Body is decoded to UTF-8.
type Page struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the page came back as HTTP 200.
func (p *Page) OK() bool {
	return p != nil && p.StatusCode == http.StatusOK
}

// Fetcher defines the interface for downloading pages.
type Fetcher interface {
	// Get fetches url. A non-200 status is not an error: the page is
	// returned and the caller decides. Errors are transport failures.
	Get(ctx context.Context, url string) (*Page, error)
}
