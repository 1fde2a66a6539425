package fetcher

import (
	"context"
	"crypto/tls"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly"
	"github.com/rs/zerolog"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// WebOptions parameterise the HTTP fetcher.
type WebOptions struct {
	Timeout            time.Duration
	UserAgent          string
	Referer            string
	InsecureSkipVerify bool
}

// Web fetches the comparison page over HTTP(S) with a colly collector.
type Web struct {
	opts   WebOptions
	logger zerolog.Logger
}

// NewWeb constructs a web fetcher.
func NewWeb(opts WebOptions, logger zerolog.Logger) *Web {
	if opts.Timeout <= 0 {
		opts.Timeout = 25 * time.Second
	}
	if strings.TrimSpace(opts.UserAgent) == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &Web{
		opts:   opts,
		logger: logger.With().Str("component", "web_fetcher").Logger(),
	}
}

type visitResult struct {
	body   []byte
	status int
	err    error
}

// FetchDocument performs a single GET. Certificate verification is only
// skipped when InsecureSkipVerify is set.
func (w *Web) FetchDocument(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	c := w.collector()
	done := make(chan visitResult, 1)
	var res visitResult

	c.OnResponse(func(r *colly.Response) {
		res.body = r.Body
		res.status = r.StatusCode
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			res.status = r.StatusCode
		}
		res.err = err
	})

	start := time.Now()
	go func() {
		err := c.Visit(url)
		if err != nil && res.err == nil {
			res.err = err
		}
		done <- res
	}()

	select {
	case <-ctx.Done():
		return nil, &FetchError{URL: url, Err: ctx.Err()}
	case out := <-done:
		if out.err != nil {
			w.logger.Error().Err(out.err).Str("stage", "fetch").Str("url", url).Int("status", out.status).Msg("fetch failed")
			return nil, &FetchError{URL: url, Status: out.status, Err: out.err}
		}
		if len(out.body) == 0 {
			return nil, &FetchError{URL: url, Status: out.status, Err: ErrEmptyDocument}
		}
		w.logger.Debug().
			Str("url", url).
			Int("status", out.status).
			Int("bytes", len(out.body)).
			Dur("elapsed", time.Since(start)).
			Msg("document fetched")
		return out.body, nil
	}
}

func (w *Web) collector() *colly.Collector {
	c := colly.NewCollector(
		colly.UserAgent(w.opts.UserAgent),
		colly.AllowURLRevisit(),
	)
	c.SetRequestTimeout(w.opts.Timeout)

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if w.opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in only
	}
	c.WithTransport(transport)

	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
		if w.opts.Referer != "" {
			r.Headers.Set("Referer", w.opts.Referer)
		}
	})
	return c
}

var _ DocumentFetcher = (*Web)(nil)
