// Package fxrates fetches the latest USD-anchored exchange rates from
// openexchangerates.org.
package fxrates

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"subscription-cost/decision/input"
	"subscription-cost/decision/rates"
	"subscription-cost/pkg/platform"
)

const (
	DefaultEndpoint = "https://openexchangerates.org/api/latest.json"
	DefaultTimeout  = 10 * time.Second
	DefaultTTL      = time.Hour
)

// ErrNoKeys is returned when no API key is configured.
var ErrNoKeys = errors.New("no exchange-rate API key configured")

// Client fetches rates, trying each key in order.
type Client struct {
	endpoint string
	keys     []string
	http     *platform.HTTPClient
	ttl      time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	mu        sync.Mutex
	cached    *rates.Table
	fetchedAt time.Time
}

// NewClient creates a client for the given keys.
func NewClient(keys ...string) *Client {
	return &Client{
		endpoint: DefaultEndpoint,
		keys:     keys,
		http:     platform.NewHTTPClient(0, DefaultTimeout),
		ttl:      DefaultTTL,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
}

// WithEndpoint overrides the API endpoint.
func (c *Client) WithEndpoint(endpoint string) *Client {
	c.endpoint = endpoint
	return c
}

// WithTTL sets how long a fetched table is reused. Zero disables caching.
func (c *Client) WithTTL(ttl time.Duration) *Client {
	c.ttl = ttl
	return c
}

// WithHTTPClient replaces the transport.
func (c *Client) WithHTTPClient(h *platform.HTTPClient) *Client {
	c.http = h
	return c
}

// WithLogger sets the logger.
func (c *Client) WithLogger(l zerolog.Logger) *Client {
	c.logger = l
	c.http.WithLogger(l)
	return c
}

// Latest returns the current rate table, from cache while it is fresh.
func (c *Client) Latest(ctx context.Context) (rates.Table, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached != nil && c.ttl > 0 && c.now().Sub(c.fetchedAt) < c.ttl {
		return *c.cached, nil
	}

	table, err := c.fetch(ctx)
	if err != nil {
		return rates.Table{}, err
	}
	c.cached = &table
	c.fetchedAt = c.now()
	return table, nil
}

// Invalidate drops the cached table.
func (c *Client) Invalidate() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

func (c *Client) fetch(ctx context.Context) (rates.Table, error) {
	if len(c.keys) == 0 {
		return rates.Table{}, ErrNoKeys
	}

	var lastErr error
	for i, key := range c.keys {
		table, err := c.fetchWithKey(ctx, key)
		if err == nil {
			c.logger.Info().Int("key_index", i).Int("currencies", len(table.Rates)).Msg("exchange rates fetched")
			return table, nil
		}
		if ctx.Err() != nil {
			return rates.Table{}, ctx.Err()
		}
		c.logger.Warn().Int("key_index", i).Err(err).Msg("exchange rate fetch failed, trying next key")
		lastErr = err
	}
	return rates.Table{}, fmt.Errorf("all %d API keys failed: %w", len(c.keys), lastErr)
}

func (c *Client) fetchWithKey(ctx context.Context, key string) (rates.Table, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return rates.Table{}, fmt.Errorf("invalid endpoint: %w", err)
	}
	q := u.Query()
	q.Set("app_id", key)
	u.RawQuery = q.Encode()

	body, err := c.http.Get(ctx, u.String(), nil)
	if err != nil {
		return rates.Table{}, err
	}
	feed, err := input.ParseRates(bytes.NewReader(body))
	if err != nil {
		return rates.Table{}, err
	}
	return rates.FromFloats(feed)
}
