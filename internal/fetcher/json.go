package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rotisserie/eris"
)

// DecodeJSONObject decodes a single JSON object from a reader.
func DecodeJSONObject[T any](r io.Reader) (*T, error) {
	var obj T
	if err := json.NewDecoder(r).Decode(&obj); err != nil {
		return nil, eris.Wrap(err, "json: decode object")
	}
	return &obj, nil
}

// DecodeError reports a response body that could not be decoded. Callers
// treat it as an upstream format change rather than an outage.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("fetcher: decode %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// GetJSON fetches rawURL and decodes the body as T. The response headers are
// returned alongside for pagination metadata.
func GetJSON[T any](ctx context.Context, f Fetcher, rawURL string) (*T, http.Header, error) {
	resp, err := f.Get(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	obj, err := DecodeJSONObject[T](resp.Body)
	if err != nil {
		return nil, resp.Header, &DecodeError{URL: rawURL, Err: err}
	}
	return obj, resp.Header, nil
}
