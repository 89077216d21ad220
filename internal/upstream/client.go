package upstream

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"solar-dashboard/internal/telemetry"
)

// Source produces raw records for the poller. The HTTP client and the
// synthetic fallback generator both implement it.
type Source interface {
	Fetch(ctx context.Context) (telemetry.RawRecord, error)
	Name() string
}

// Client fetches the charge-controller logger endpoint over HTTP.
type Client struct {
	mu         sync.Mutex
	url        string
	httpClient *http.Client

	attempts   int
	retryDelay time.Duration
}

type ClientConfig struct {
	URL     string
	Timeout time.Duration

	// Attempts is the total number of tries per Fetch; RetryDelay grows
	// linearly with the attempt number.
	Attempts   int
	RetryDelay time.Duration
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	return &Client{
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		attempts:   cfg.Attempts,
		retryDelay: cfg.RetryDelay,
	}
}

func (c *Client) Name() string { return "http" }

// URL returns the configured endpoint.
func (c *Client) URL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.url
}

// SetEndpoint swaps the endpoint and timeout at runtime.
func (c *Client) SetEndpoint(url string, timeout time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.url = url
	if timeout > 0 {
		c.httpClient = &http.Client{Timeout: timeout}
	}
}

// Fetch GETs the endpoint and decodes whichever payload shape it finds,
// retrying a bounded number of times with a linearly increasing delay.
func (c *Client) Fetch(ctx context.Context) (telemetry.RawRecord, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		record, err := c.fetchOnce(ctx)
		if err == nil {
			return record, nil
		}
		lastErr = err
		log.Printf("Upstream fetch attempt %d/%d failed: %v", attempt, c.attempts, err)

		if attempt == c.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return telemetry.RawRecord{}, ctx.Err()
		case <-time.After(time.Duration(attempt) * c.retryDelay):
		}
	}
	return telemetry.RawRecord{}, fmt.Errorf("upstream fetch failed after %d attempts: %w", c.attempts, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context) (telemetry.RawRecord, error) {
	c.mu.Lock()
	url := c.url
	httpClient := c.httpClient
	c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return telemetry.RawRecord{}, fmt.Errorf("upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return telemetry.RawRecord{}, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return telemetry.RawRecord{}, fmt.Errorf("upstream bad status: %s", resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return telemetry.RawRecord{}, fmt.Errorf("upstream read body: %w", err)
	}

	return DecodePayload(body)
}
