// Package httpds fetches source documents (JSON APIs, CSV and HTML exports)
// over HTTP GET.
package httpds

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"pbietl/internal/metrics"
)

// ErrStatus matches every *StatusError via errors.Is.
var ErrStatus = errors.New("http: non-2xx status")

// StatusError reports a non-2xx response with a body excerpt for debugging.
type StatusError struct {
	URL     string
	Code    int
	Excerpt string
}

func (e *StatusError) Error() string {
	if e.Excerpt == "" {
		return fmt.Sprintf("http status %d from %s", e.Code, e.URL)
	}
	return fmt.Sprintf("http status %d from %s: %s", e.Code, e.URL, e.Excerpt)
}

// Is makes errors.Is(err, ErrStatus) true for any StatusError.
func (e *StatusError) Is(target error) bool { return target == ErrStatus }

const excerptLimit = 4096

// Client performs GET requests with a per-request timeout. No retries: a
// failed request is reported to the caller, which degrades to an empty table.
type Client struct {
	// HTTP is the underlying client. Nil means a client with a tuned transport.
	HTTP *http.Client

	// Timeout bounds each request including the body read. Zero means 30s.
	Timeout time.Duration

	// UserAgent is sent on every request. Empty means "pbietl/1.0".
	UserAgent string
}

// NewClient returns a Client with its own transport and the given timeout.
func NewClient(timeout time.Duration, userAgent string) *Client {
	return &Client{
		HTTP: &http.Client{
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				IdleConnTimeout:     90 * time.Second,
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 4,
			},
		},
		Timeout:   timeout,
		UserAgent: userAgent,
	}
}

// Get fetches rawURL with extra query params merged into the URL and returns
// the full body.
//
// Edge cases:
//   - params with empty values are skipped, so an unset "desde" does not
//     produce "?desde=".
//   - Existing query parameters in rawURL are preserved; params override
//     same-named ones.
//
// Errors:
//   - *StatusError for non-2xx responses (errors.Is(err, ErrStatus)).
//   - Transport and body-read errors, wrapped.
func (c *Client) Get(ctx context.Context, rawURL string, headers, params map[string]string) ([]byte, error) {
	target, err := withParams(rawURL, params)
	if err != nil {
		return nil, err
	}

	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	ua := c.UserAgent
	if ua == "" {
		ua = "pbietl/1.0"
	}
	req.Header.Set("User-Agent", ua)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	hc := c.HTTP
	if hc == nil {
		hc = http.DefaultClient
	}

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		metrics.RecordHTTP(0, err, time.Since(start), -1)
		return nil, fmt.Errorf("http get %s: %w", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, excerptLimit))
		metrics.RecordHTTP(resp.StatusCode, nil, time.Since(start), int64(len(body)))
		return nil, &StatusError{URL: target, Code: resp.StatusCode, Excerpt: strings.TrimSpace(string(body))}
	}

	body, err := io.ReadAll(resp.Body)
	metrics.RecordHTTP(resp.StatusCode, err, time.Since(start), int64(len(body)))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", target, err)
	}
	return body, nil
}

func withParams(rawURL string, params map[string]string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported url scheme %q in %q", u.Scheme, rawURL)
	}
	if len(params) == 0 {
		return u.String(), nil
	}
	q := u.Query()
	for k, v := range params {
		if v == "" {
			continue
		}
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
