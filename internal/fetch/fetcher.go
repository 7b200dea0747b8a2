// Package fetch retrieves raw payloads from configured sources: one HTTP
// GET per poll source per cycle, and a persistent socket subscription for
// push sources.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/tradelens/tradelens/internal/logbook"
	"github.com/tradelens/tradelens/internal/source"
)

const (
	userAgent     = "tradelens/1.0"
	snippetLength = 200
)

// FetchError reports a failed fetch attempt for one source. It is
// recoverable at source granularity: the orchestrator skips the source for
// the cycle and continues.
type FetchError struct {
	Source     string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.Source, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.Source, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Fetcher performs the poll-path HTTP retrieval.
type Fetcher struct {
	client *http.Client
	log    *logbook.Log
}

// NewFetcher creates a Fetcher with the given request timeout.
func NewFetcher(timeout time.Duration, log *logbook.Log) *Fetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client: &http.Client{Timeout: timeout},
		log:    log,
	}
}

// Fetch performs one GET against the source's endpoint. When the source
// declares an API-key reference, the key is resolved from the environment
// and appended as a query parameter; an unset variable degrades to an
// unauthenticated request with a warning, never a failure, since some
// sources are keyless. A non-2xx status or transport error yields a
// FetchError. Every attempt, success or failure, logs the response byte
// length and a short snippet.
func (f *Fetcher) Fetch(ctx context.Context, src source.Source) ([]byte, error) {
	reqURL := f.buildURL(ctx, src)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &FetchError{Source: src.Name, Err: err}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{Source: src.Name, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{Source: src.Name, Err: fmt.Errorf("read body: %w", err)}
	}

	f.log.Info(ctx, "raw payload fetched", map[string]any{
		"source":  src.Name,
		"status":  resp.StatusCode,
		"bytes":   len(body),
		"snippet": snippet(body),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.log.Warn(ctx, "fetch returned non-2xx status", map[string]any{
			"source": src.Name,
			"status": resp.StatusCode,
		})
		return nil, &FetchError{Source: src.Name, StatusCode: resp.StatusCode}
	}

	return body, nil
}

// buildURL appends the resolved API key as a query parameter when one is
// declared and present in the environment.
func (f *Fetcher) buildURL(ctx context.Context, src source.Source) string {
	if src.APIKeyEnv == "" {
		return src.URL
	}

	key, ok := os.LookupEnv(src.APIKeyEnv)
	if !ok || key == "" {
		f.log.Warn(ctx, "api key environment variable not set", map[string]any{
			"source":   src.Name,
			"variable": src.APIKeyEnv,
		})
		return src.URL
	}

	u, err := url.Parse(src.URL)
	if err != nil {
		// Let the request constructor surface the malformed URL.
		return src.URL
	}
	q := u.Query()
	q.Set("apiKey", key)
	u.RawQuery = q.Encode()
	return u.String()
}

func snippet(body []byte) string {
	if len(body) <= snippetLength {
		return string(body)
	}
	return string(body[:snippetLength]) + "..."
}
