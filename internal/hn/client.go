package hn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

// DefaultBaseURL is the public Hacker News Firebase API endpoint.
const DefaultBaseURL = "https://hacker-news.firebaseio.com/v0"

// ErrNotFound is returned when the API has no item for the requested ID
// (typically a deleted item). Callers skip these rather than retrying.
var ErrNotFound = errors.New("hn: item not found")

// ErrMalformed is returned when the API responds 200 but the body cannot
// be decoded. Callers drop and count these records.
var ErrMalformed = errors.New("hn: malformed item")

// TransientError wraps a network or server-side failure that survived the
// retry budget. The fetcher demotes the affected unit instead of aborting.
type TransientError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("hn: %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// Config tunes the client. Zero values fall back to defaults.
type Config struct {
	BaseURL     string
	MaxRetries  int           // attempts per request (default 3)
	Timeout     time.Duration // per-request timeout (default 10s)
	MinInterval time.Duration // minimum spacing between requests (default 100ms)
	BackoffBase time.Duration // first retry delay, doubled per attempt (default 1s)
}

// Client talks to the Hacker News API with rate limiting and bounded
// retries. Safe for concurrent use; the rate limiter serializes request
// starts across goroutines.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	maxRetries  int
	minInterval time.Duration
	backoffBase time.Duration

	mu      sync.Mutex
	lastReq time.Time
}

// NewClient creates a Client from cfg, applying defaults for zero fields.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 100 * time.Millisecond
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = time.Second
	}
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		maxRetries:  cfg.MaxRetries,
		minInterval: cfg.MinInterval,
		backoffBase: cfg.BackoffBase,
	}
}

// TopStories returns the IDs of the current top stories, best first.
func (c *Client) TopStories(ctx context.Context) ([]int, error) {
	body, err := c.get(ctx, "/topstories.json")
	if err != nil {
		return nil, err
	}
	var ids []int
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, fmt.Errorf("%w: decoding top stories: %v", ErrMalformed, err)
	}
	return ids, nil
}

// Item fetches a single item by ID. Returns ErrNotFound for deleted or
// unknown IDs and ErrMalformed for undecodable bodies.
func (c *Client) Item(ctx context.Context, id int) (*Item, error) {
	body, err := c.get(ctx, fmt.Sprintf("/item/%d.json", id))
	if err != nil {
		return nil, err
	}
	// The API returns the literal "null" for IDs it has no record of.
	if len(body) == 0 || string(body) == "null" {
		return nil, ErrNotFound
	}
	var it Item
	if err := json.Unmarshal(body, &it); err != nil {
		return nil, fmt.Errorf("%w: item %d: %v", ErrMalformed, id, err)
	}
	if it.ID == 0 {
		return nil, fmt.Errorf("%w: item %d: missing id", ErrMalformed, id)
	}
	return &it, nil
}

// get performs a rate-limited GET with retry and exponential backoff.
// 404 maps to ErrNotFound. Server errors and transport failures are
// retried; other client errors are permanent.
func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	url := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			wait := c.backoffBase << (attempt - 1)
			slog.Warn("hn request failed, backing off",
				"url", url, "attempt", attempt, "wait", wait, "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := c.waitForSlot(ctx); err != nil {
			return nil, err
		}

		body, retryable, err := c.doOnce(ctx, url)
		if err == nil {
			return body, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}
	return nil, &TransientError{URL: url, Attempts: c.maxRetries, Err: lastErr}
}

// doOnce issues a single request. The second return value reports whether
// the failure is worth retrying.
func (c *Client) doOnce(ctx context.Context, url string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, ErrNotFound
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, true, fmt.Errorf("server status %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("reading body: %w", err)
	}
	return bytes.TrimSpace(body), false, nil
}

// waitForSlot blocks until minInterval has elapsed since the previous
// request started, honoring ctx cancellation.
func (c *Client) waitForSlot(ctx context.Context) error {
	c.mu.Lock()
	now := time.Now()
	next := c.lastReq.Add(c.minInterval)
	if next.Before(now) {
		next = now
	}
	c.lastReq = next
	c.mu.Unlock()

	if wait := time.Until(next); wait > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil
}
