package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultGammaBase = "https://gamma-api.polymarket.com"

	// Gamma /markets: 300/10s documented, we stay at 60% → 18/s.
	defaultRatePerSec = 18
	defaultBatchSize  = 10
	defaultBatchDelay = 500 * time.Millisecond
	defaultTimeout    = 10 * time.Second

	maxRetries    = 3
	baseRetryWait = 500 * time.Millisecond
)

// Config tunes the Gamma quote client. Zero values fall back to defaults.
type Config struct {
	GammaBase  string
	BatchSize  int           // market ids per /markets request
	BatchDelay time.Duration // pause between consecutive batches
	RatePerSec float64
	Timeout    time.Duration
}

// Client is the Polymarket Gamma HTTP client with rate limiting and retries.
// It implements ports.QuoteProvider.
type Client struct {
	http       *http.Client
	gammaBase  string
	limiter    *rate.Limiter
	batchSize  int
	batchDelay time.Duration
}

// NewClient builds a Client. An empty GammaBase means production.
func NewClient(cfg Config) *Client {
	if cfg.GammaBase == "" {
		cfg.GammaBase = defaultGammaBase
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BatchDelay < 0 {
		cfg.BatchDelay = 0
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		http:       &http.Client{Timeout: cfg.Timeout},
		gammaBase:  cfg.GammaBase,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RatePerSec), 10),
		batchSize:  cfg.BatchSize,
		batchDelay: cfg.BatchDelay,
	}
}

// get does a rate limited GET with retries and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, url string, out any) error {
	return c.doWithRetry(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")
		return c.http.Do(req)
	}, out)
}

// doWithRetry retries transport errors, 429 and 5xx with exponential backoff.
// Other 4xx fail immediately.
func (c *Client) doWithRetry(ctx context.Context, fn func() (*http.Response, error), out any) error {
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter: %w", err)
		}

		resp, err := fn()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if attempt == maxRetries {
				return fmt.Errorf("request failed after %d retries: %w", maxRetries, err)
			}
			c.sleep(ctx, attempt)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			resp.Body.Close()
			slog.Warn("rate limited by gamma", "attempt", attempt+1)
			if attempt == maxRetries {
				return fmt.Errorf("rate limited after %d retries", maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		case resp.StatusCode >= 500:
			resp.Body.Close()
			if attempt == maxRetries {
				return fmt.Errorf("server error %d after %d retries", resp.StatusCode, maxRetries)
			}
			c.sleep(ctx, attempt)
			continue
		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return fmt.Errorf("client error %d: %s", resp.StatusCode, string(body))
		}

		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
	return fmt.Errorf("exhausted %d retries", maxRetries)
}

// sleep waits 2^attempt × baseRetryWait, or until ctx is done.
func (c *Client) sleep(ctx context.Context, attempt int) {
	c.wait(ctx, time.Duration(math.Pow(2, float64(attempt)))*baseRetryWait)
}

func (c *Client) wait(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
