package fetcher

import (
	"context"
	"errors"
	"fmt"
)

// DocumentFetcher retrieves the raw comparison page.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, url string) ([]byte, error)
}

// FetchError reports a document that could not be retrieved.
// Status is zero when no HTTP response was received.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: http %d: %v", e.URL, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ErrEmptyDocument is returned when the source answers with no body.
var ErrEmptyDocument = errors.New("empty document")
