// Package source defines the adapter contract shared by the upstream
// sources and runs them side by side.
package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sells-group/repreneur-cli/internal/fetcher"
	"github.com/sells-group/repreneur-cli/internal/model"
)

// Adapter fetches raw records from one upstream. Parameters such as sector
// codes, regions or lookback windows are bound at construction.
type Adapter interface {
	// Name returns the unique source identifier (e.g., "pappers").
	Name() string

	// Fetch performs one full retrieval pass.
	Fetch(ctx context.Context) ([]model.RawRecord, error)
}

// Kind classifies adapter failures.
type Kind int

const (
	// KindUnavailable covers network failures, timeouts and auth rejections.
	KindUnavailable Kind = iota + 1
	// KindFormatChanged means the upstream responded but its shape is no
	// longer what the adapter understands.
	KindFormatChanged
)

// String returns the human-readable kind name.
func (k Kind) String() string {
	switch k {
	case KindUnavailable:
		return "source_unavailable"
	case KindFormatChanged:
		return "source_format_changed"
	default:
		return "unknown"
	}
}

// Error is returned by adapters when a fetch fails.
type Error struct {
	Source string
	Kind   Kind
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Unavailable wraps err as a KindUnavailable failure of source.
func Unavailable(source string, err error) *Error {
	return &Error{Source: source, Kind: KindUnavailable, Err: err}
}

// FormatChanged wraps err as a KindFormatChanged failure of source.
func FormatChanged(source string, err error) *Error {
	return &Error{Source: source, Kind: KindFormatChanged, Err: err}
}

// KindOf returns the failure kind carried by err. Errors that are not a
// *Error are treated as unavailability.
func KindOf(err error) Kind {
	if err == nil {
		return 0
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnavailable
}

// FromFetch maps a fetcher error to an adapter failure. Undecodable bodies
// and vanished endpoints (404, 410) mean the upstream changed shape; every
// other failure, 401 and exhausted retries included, is unavailability.
func FromFetch(source string, err error) *Error {
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	var de *fetcher.DecodeError
	if errors.As(err, &de) {
		return FormatChanged(source, err)
	}
	var st *fetcher.StatusError
	if errors.As(err, &st) && (st.StatusCode == http.StatusNotFound || st.StatusCode == http.StatusGone) {
		return FormatChanged(source, err)
	}
	return Unavailable(source, err)
}
