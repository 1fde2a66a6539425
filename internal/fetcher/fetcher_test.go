package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

const page = `<html><body><table><tr><td>ok</td></tr></table></body></html>`

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestWebFetchSendsHeaders(t *testing.T) {
	var gotUA, gotReferer string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotReferer = r.Header.Get("Referer")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	web := NewWeb(WebOptions{Timeout: time.Second, UserAgent: "test-agent", Referer: "https://ref.example/"}, noopLogger())
	body, err := web.FetchDocument(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if string(body) != page {
		t.Fatalf("unexpected body: %s", body)
	}
	if gotUA != "test-agent" || gotReferer != "https://ref.example/" {
		t.Fatalf("headers not sent: ua=%q referer=%q", gotUA, gotReferer)
	}

	// A second visit of the same URL must not be suppressed.
	if _, err := web.FetchDocument(context.Background(), srv.URL); err != nil {
		t.Fatalf("revisit failed: %v", err)
	}
}

func TestWebFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	web := NewWeb(WebOptions{Timeout: time.Second}, noopLogger())
	_, err := web.FetchDocument(context.Background(), srv.URL)
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("HTTP 503 应返回 FetchError, 实际 %v", err)
	}
	if fe.Status != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", fe.Status)
	}
}

func TestWebFetchTLSVerification(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	strict := NewWeb(WebOptions{Timeout: 2 * time.Second}, noopLogger())
	if _, err := strict.FetchDocument(context.Background(), srv.URL); err == nil {
		t.Fatal("self-signed certificate must be rejected by default")
	}

	insecure := NewWeb(WebOptions{Timeout: 2 * time.Second, InsecureSkipVerify: true}, noopLogger())
	if _, err := insecure.FetchDocument(context.Background(), srv.URL); err != nil {
		t.Fatalf("insecure mode should accept the certificate: %v", err)
	}
}

func TestWebFetchCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	web := NewWeb(WebOptions{}, noopLogger())
	_, err := web.FetchDocument(ctx, "http://127.0.0.1:1/")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFileFetch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saved.html")
	if err := os.WriteFile(path, []byte(page), 0o600); err != nil {
		t.Fatal(err)
	}

	body, err := NewFile(path, noopLogger()).FetchDocument(context.Background(), "https://ignored.example/")
	if err != nil || string(body) != page {
		t.Fatalf("file fetch failed: %v", err)
	}

	_, err = NewFile(filepath.Join(dir, "missing.html"), noopLogger()).FetchDocument(context.Background(), "")
	var fe *FetchError
	if !errors.As(err, &fe) || !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("missing file should be a FetchError wrapping ErrNotExist, got %v", err)
	}
}
