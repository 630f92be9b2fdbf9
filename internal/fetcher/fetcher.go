package fetcher

import (
	"context"
	"fmt"
	"net/http"
)

// Fetcher performs GET requests against upstream sources.
type Fetcher interface {
	// Get returns a 2xx response. Any other status is reported as a
	// *StatusError after the body has been closed.
	Get(ctx context.Context, rawURL string) (*http.Response, error)
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("fetcher: unexpected status %d from %s", e.StatusCode, e.URL)
}

// Transient reports whether the status is worth retrying.
func (e *StatusError) Transient() bool {
	return isTransientStatus(e.StatusCode)
}
