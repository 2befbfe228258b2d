// Package httpx is the shared JSON REST plumbing for the hand-rolled
// provider adapters: request construction, bearer auth, mapping of HTTP
// statuses onto the provider error taxonomy, Link-header pagination and
// bounded retry of read operations.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/canopy-platform/directory-services/internal/provider"
	"github.com/cenkalti/backoff/v4"
)

// Client issues authenticated JSON requests against one vendor API.
type Client struct {
	BaseURL    string
	Provider   string
	HTTPClient *http.Client

	// TokenFunc returns the bearer token for a request. Indirection keeps
	// refresh logic in the token store rather than in every adapter.
	TokenFunc func(ctx context.Context) (string, error)

	// AuthScheme overrides the Authorization scheme. Empty means Bearer;
	// Okta uses SSWS.
	AuthScheme string

	// Extra headers some vendors require (GitHub API version, Accept).
	Headers map[string]string

	// MaxRetryElapsed bounds read retries. Zero means 30 seconds.
	MaxRetryElapsed time.Duration
}

// New returns a client with a default HTTP client and timeout.
func New(providerName, baseURL string, tokenFunc func(ctx context.Context) (string, error)) *Client {
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Provider:   providerName,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		TokenFunc:  tokenFunc,
	}
}

// Do issues a request and decodes a JSON response into out (out may be nil).
// Error statuses come back as *provider.Error with the mapped kind.
func (c *Client) Do(ctx context.Context, method, path string, body, out interface{}) error {
	_, err := c.do(ctx, method, path, body, out)
	return err
}

// DoStatus is Do but also returns the HTTP status code for callers that
// branch on success statuses (201 vs 204).
func (c *Client) DoStatus(ctx context.Context, method, path string, body, out interface{}) (int, error) {
	resp, err := c.do(ctx, method, path, body, out)
	if resp != nil {
		return resp.StatusCode, err
	}
	return 0, err
}

// Get issues a read with retry on rate limits and 5xx responses. Writes are
// never retried here; a failed write is a unit failure and the next
// scheduled run is the retry mechanism.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	op := func() error {
		err := c.Do(ctx, http.MethodGet, path, nil, out)
		if err != nil && !provider.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	maxElapsed := c.MaxRetryElapsed
	if maxElapsed == 0 {
		maxElapsed = 30 * time.Second
	}
	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = maxElapsed

	return backoff.Retry(op, backoff.WithContext(b, ctx))
}

// GetPaginated follows RFC 5988 Link headers (rel="next") until the
// enumeration is exhausted, invoking page with each response body.
func (c *Client) GetPaginated(ctx context.Context, path string, page func(body []byte) error) error {
	next := path
	for next != "" {
		var raw json.RawMessage
		resp, err := c.do(ctx, http.MethodGet, next, nil, &raw)
		if err != nil {
			return err
		}
		if err := page(raw); err != nil {
			return err
		}
		next = nextLink(resp.Header.Get("Link"))
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) (*http.Response, error) {
	url := path
	if !strings.HasPrefix(path, "http") {
		url = c.BaseURL + path
	}

	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if c.TokenFunc != nil {
		token, err := c.TokenFunc(ctx)
		if err != nil {
			return nil, &provider.ConfigError{Provider: c.Provider, Err: err}
		}
		scheme := c.AuthScheme
		if scheme == "" {
			scheme = "Bearer"
		}
		req.Header.Set("Authorization", scheme+" "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range c.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &provider.Error{
			Kind:     provider.KindTransient,
			Provider: c.Provider,
			Op:       method + " " + path,
			Message:  err.Error(),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return resp, &provider.Error{
			Kind:     provider.KindFromStatus(resp.StatusCode),
			Provider: c.Provider,
			Op:       method + " " + path,
			Status:   resp.StatusCode,
			Message:  truncate(string(respBody), 512),
		}
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return resp, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp, nil
}

// nextLink extracts the rel="next" target from a Link header, or "".
func nextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		fields := strings.Split(part, ";")
		if len(fields) < 2 {
			continue
		}
		for _, f := range fields[1:] {
			if strings.TrimSpace(f) == `rel="next"` {
				return strings.Trim(strings.TrimSpace(fields[0]), "<>")
			}
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
