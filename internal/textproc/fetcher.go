package textproc

import (
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"time"

	"context"

	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Fetcher retrieves raw HTML for a URL. Compression is negotiated and
// decoded manually so brotli responses are handled alongside gzip.
type Fetcher struct {
	client *http.Client
}

func NewFetcher(timeout time.Duration) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 30 * time.Second,
			},
		},
	}
}

// Fetch performs a GET and returns the response body as UTF-8 text.
// Non-2xx statuses are errors; the ingestion worker treats them like any
// other pipeline failure.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("fetch: invalid request for %s: %w", url, err)
	}
	// Many sites reject the default Go user agent
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Encoding", "gzip, br")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch: %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch: %s returned status %d", url, resp.StatusCode)
	}

	var body io.Reader = resp.Body
	switch resp.Header.Get("Content-Encoding") {
	case "br":
		body = brotli.NewReader(resp.Body)
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", fmt.Errorf("fetch: %s: bad gzip body: %w", url, err)
		}
		defer gz.Close()
		body = gz
	}

	// Normalize legacy charsets to UTF-8 before parsing
	utf8Body, err := charset.NewReader(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return "", fmt.Errorf("fetch: %s: charset detection: %w", url, err)
	}

	data, err := io.ReadAll(utf8Body)
	if err != nil {
		return "", fmt.Errorf("fetch: %s: read body: %w", url, err)
	}
	return string(data), nil
}
