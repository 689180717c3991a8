// Package search provides a rate-limited client for the web search API used
// during website and events-page discovery.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Client defines the search operations used by the resolver.
type Client interface {
	// Search performs a web search and returns ordered results. Response
	// carries a RateLimited flag when the provider throttled the request so
	// callers can back off, even if a retry eventually succeeded.
	Search(ctx context.Context, query string) (*Response, error)
}

// Response is the parsed search API response.
type Response struct {
	Results     []Result
	RateLimited bool
}

// Result is a single search hit.
type Result struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"description"`
}

// apiResponse is the provider's wire format.
type apiResponse struct {
	Code int      `json:"code"`
	Data []Result `json:"data"`
}

// Option configures the search client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRetries sets the retry budget for transient failures.
func WithRetries(n int) Option {
	return func(c *httpClient) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRateLimit throttles outgoing requests to the given rate.
func WithRateLimit(perSec float64) Option {
	return func(c *httpClient) {
		if perSec > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSec), 1)
		}
	}
}

type httpClient struct {
	apiKey      string
	baseURL     string
	http        *http.Client
	limiter     *rate.Limiter
	maxAttempts int
}

// NewClient creates a search client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:      apiKey,
		baseURL:     "https://s.jina.ai",
		maxAttempts: 3,
		limiter:     rate.NewLimiter(rate.Limit(0.5), 1),
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, query string) (*Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "search: rate limiter")
	}

	reqURL := fmt.Sprintf("%s/%s", c.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "search: create request")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Respond-With", "no-content")

	body, statusCode, throttled, err := c.retryDo(ctx, req)
	if err != nil {
		return nil, eris.Wrap(err, "search: request failed")
	}

	// The provider returns 422 when no results exist for a query. Empty
	// results are a legitimate answer, not an error.
	if statusCode == http.StatusUnprocessableEntity {
		return &Response{RateLimited: throttled}, nil
	}

	if statusCode != http.StatusOK {
		return nil, eris.Errorf("search: unexpected status %d: %s", statusCode, string(body))
	}

	var parsed apiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, eris.Wrap(err, "search: unmarshal response")
	}

	return &Response{Results: parsed.Data, RateLimited: throttled}, nil
}

// retryableStatusCode returns true if the HTTP status code should trigger a
// retry.
func retryableStatusCode(code int) bool {
	return code == http.StatusTooManyRequests ||
		code == http.StatusInternalServerError ||
		code == http.StatusBadGateway ||
		code == http.StatusServiceUnavailable
}

// retryDo executes a request with exponential backoff on transient failures.
// The returned bool reports whether a 429 was observed at any point, so the
// worker loop can apply AIMD backoff even after a successful retry.
func (c *httpClient) retryDo(ctx context.Context, req *http.Request) ([]byte, int, bool, error) {
	backoff := 1 * time.Second
	throttled := false

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		retryReq := req.Clone(ctx)

		resp, err := c.http.Do(retryReq)
		if err != nil {
			lastErr = err
			if attempt < c.maxAttempts {
				select {
				case <-ctx.Done():
					return nil, 0, throttled, ctx.Err()
				case <-time.After(backoff):
				}
				backoff *= 2
				continue
			}
			return nil, 0, throttled, lastErr
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return nil, resp.StatusCode, throttled, eris.Wrap(readErr, "search: read response body")
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			throttled = true
		}

		if retryableStatusCode(resp.StatusCode) && attempt < c.maxAttempts {
			lastErr = eris.Errorf("search: status %d: %s", resp.StatusCode, string(body))
			select {
			case <-ctx.Done():
				return nil, 0, throttled, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
			continue
		}

		return body, resp.StatusCode, throttled, nil
	}

	return nil, 0, throttled, lastErr
}
