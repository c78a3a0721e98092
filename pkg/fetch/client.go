package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"adscraper/pkg/config"
	"adscraper/pkg/logger"
	"adscraper/pkg/ratelimit"
)

// maxBodySize caps how much of a page body is read for classification and
// extraction (challenge markers always appear early in the document)
const maxBodySize = 4 << 20

// Client is the HTTP implementation of Fetcher. It applies the global
// politeness limiter, default browser-like headers, and per-host session
// cookies updated after challenge resolutions.
type Client struct {
	httpClient *http.Client
	limiter    ratelimit.Limiter
	logger     logger.Logger

	mu          sync.RWMutex
	headers     map[string]string
	hostCookies map[string]string
}

// NewClient creates a fetch client from the scraping configuration
func NewClient(cfg *config.Config, limiter ratelimit.Limiter, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Scraping.RequestTimeout,
		},
		limiter: limiter,
		logger:  log,
		headers: map[string]string{
			"User-Agent":      cfg.Scraping.UserAgent,
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
			"Cache-Control":   "no-cache",
			"Pragma":          "no-cache",
		},
		hostCookies: make(map[string]string),
	}
}

// SetHeader sets a default header applied to every request
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.headers[key] = value
}

// SetHostCookies replaces the Cookie header sent to the given host. The
// challenge handler calls this with the session cookies returned by a
// successful resolution.
func (c *Client) SetHostCookies(host, cookies string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hostCookies[host] = cookies
}

// HostCookies returns the current Cookie header for host
func (c *Client) HostCookies(host string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hostCookies[host]
}

// Fetch issues a GET for rawURL and returns the raw response for
// classification. A nil response with a non-nil error is a transport
// failure (classified as NetworkError by the caller).
func (c *Client) Fetch(ctx context.Context, rawURL string) (*RawResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, rawURL); err != nil {
			return nil, fmt.Errorf("politeness limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}

	c.mu.RLock()
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if u, perr := url.Parse(rawURL); perr == nil {
		if cookies := c.hostCookies[u.Host]; cookies != "" {
			req.Header.Set("Cookie", cookies)
		}
	}
	c.mu.RUnlock()

	start := time.Now()
	c.logger.DebugWithFields("sending HTTP request", map[string]interface{}{
		"method": req.Method,
		"url":    rawURL,
	})

	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"url":      rawURL,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"url":      rawURL,
		"status":   resp.StatusCode,
		"bytes":    len(body),
		"duration": duration,
	})

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &RawResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       string(body),
		URL:        finalURL,
	}, nil
}
