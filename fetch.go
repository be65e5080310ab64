package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"
)

const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	defaultTimeout   = 10 * time.Second
	maxPageSize      = 32 << 20
)

var errHTTPStatus = errors.New("Request failed with status code")

// pageSource returns the raw HTML of a conversation page.
type pageSource interface {
	FetchPage(ctx context.Context, rawURL string) (string, error)
}

// httpPageSource fetches pages with a single GET. There are no retries: a
// timeout or non-2xx response is returned to the caller as is.
type httpPageSource struct {
	client    *http.Client
	userAgent string
}

func newHTTPPageSource(userAgent string, timeout time.Duration) *httpPageSource {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &httpPageSource{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

func (s *httpPageSource) FetchPage(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", fmt.Errorf("%w %d", errHTTPStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPageSize))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	return decodePage(body, resp.Header.Get("Content-Type")), nil
}

// decodePage converts a page body to UTF-8 using the Content-Type header and
// any <meta charset> declaration. If conversion fails the raw bytes are used.
func decodePage(body []byte, contentType string) string {
	r, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return string(body)
	}
	converted, err := io.ReadAll(r)
	if err != nil {
		return string(body)
	}
	return string(converted)
}
