package fetch

import (
	"context"
	"net/http"
)

// RawResponse is what the classifier sees: status, headers and the decoded
// body of a fetched page. The core never touches the network itself.
type RawResponse struct {
	StatusCode int
	Headers    http.Header
	Body       string
	// URL is the final URL after redirects; a redirect onto a challenge
	// page is itself a blocking signal
	URL string
}

// Fetcher issues a single page request. Implementations own all network
// I/O; callers own pacing and classification.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*RawResponse, error)
}
