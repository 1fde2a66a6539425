package fetcher

import (
	"context"
	"os"

	"github.com/rs/zerolog"
)

// File reads a saved copy of the comparison page from disk.
type File struct {
	path   string
	logger zerolog.Logger
}

// NewFile returns a fetcher that always serves path, regardless of the requested URL.
func NewFile(path string, logger zerolog.Logger) *File {
	return &File{path: path, logger: logger.With().Str("component", "file_fetcher").Logger()}
}

// FetchDocument returns the file contents.
func (f *File) FetchDocument(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: f.path, Err: err}
	}
	body, err := os.ReadFile(f.path)
	if err != nil {
		return nil, &FetchError{URL: f.path, Err: err}
	}
	if len(body) == 0 {
		return nil, &FetchError{URL: f.path, Err: ErrEmptyDocument}
	}
	f.logger.Debug().Str("path", f.path).Str("source_url", url).Int("bytes", len(body)).Msg("document loaded from file")
	return body, nil
}

var _ DocumentFetcher = (*File)(nil)
