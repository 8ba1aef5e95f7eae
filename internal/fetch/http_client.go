// Package fetch retrieves a monitored page, either via plain HTTP or a
// leased headless browser, and classifies the outcome for the detector and
// retry layers (§4.3).
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Result is one fetch attempt's raw output, handed to the detector layer.
type Result struct {
	FinalURL   string
	StatusCode int
	Body       []byte
	Headers    http.Header
	LatencyMS  int64
	Rendered   bool
}

// userAgents rotates a small, realistic pool so a single static string
// doesn't become an easy fingerprint for the sites being polled.
var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
}

// HTTPClient performs plain (non-rendered) fetches with per-host politeness
// pacing: the scheduler's worker pool fans out across many items, but no
// single host should see more than one request per PerHostMinDelay (§4.3,
// §5).
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	minDelay time.Duration

	uaIdx int
	uaMu  sync.Mutex
}

// NewHTTPClient builds a client with the given per-request timeout and
// per-host minimum delay between requests.
func NewHTTPClient(timeout, perHostMinDelay time.Duration) *HTTPClient {
	return &HTTPClient{
		client:   &http.Client{Timeout: timeout},
		timeout:  timeout,
		limiters: make(map[string]*rate.Limiter),
		minDelay: perHostMinDelay,
	}
}

// Fetch issues a GET for targetURL, blocking on the host's rate limiter
// until it is polite to proceed, honoring ctx cancellation while waiting.
func (c *HTTPClient) Fetch(ctx context.Context, targetURL string) (Result, error) {
	u, err := url.Parse(targetURL)
	if err != nil {
		return Result{}, fmt.Errorf("fetch: parse url: %w", err)
	}

	limiter := c.limiterFor(u.Hostname())
	if err := limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("fetch: rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return Result{}, fmt.Errorf("fetch: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.nextUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	start := time.Now()
	resp, err := c.client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return Result{}, fmt.Errorf("fetch: read body: %w", err)
	}

	finalURL := targetURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return Result{
		FinalURL:   finalURL,
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
		LatencyMS:  latency.Milliseconds(),
	}, nil
}

func (c *HTTPClient) limiterFor(host string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		every := rate.Every(c.minDelay)
		l = rate.NewLimiter(every, 1)
		c.limiters[host] = l
	}
	return l
}

func (c *HTTPClient) nextUserAgent() string {
	c.uaMu.Lock()
	defer c.uaMu.Unlock()
	ua := userAgents[c.uaIdx%len(userAgents)]
	c.uaIdx++
	return ua
}
