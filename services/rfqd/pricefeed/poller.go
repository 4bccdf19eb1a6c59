// Package pricefeed polls an HTTP endpoint for the reference price used by
// the settlement engine's band check.
package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"rfqdesk/native/settlement"
	"rfqdesk/observability/metrics"
)

// Payload is the JSON document served by the upstream endpoint. Price is a
// decimal integer string scaled by Decimals; UpdatedAt is unix seconds and
// defaults to the poll time when omitted.
type Payload struct {
	Price     string `json:"price"`
	Decimals  uint8  `json:"decimals"`
	UpdatedAt int64  `json:"updated_at"`
}

var errNoReading = errors.New("pricefeed: no reading yet")

// Option configures a Poller.
type Option func(*Poller)

// WithLogger installs a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithHTTPClient overrides the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Poller) {
		if c != nil {
			p.client = c
		}
	}
}

// WithNowFunc overrides the clock used when the payload omits a timestamp.
func WithNowFunc(now func() time.Time) Option {
	return func(p *Poller) {
		if now != nil {
			p.now = now
		}
	}
}

// Poller caches the latest reading from the endpoint. It implements
// settlement.PriceFeed; freshness is judged by the engine from UpdatedAt.
type Poller struct {
	endpoint string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.RWMutex
	latest  settlement.PriceReading
	lastErr error
	once    sync.Once
}

// New constructs a poller for endpoint.
func New(endpoint string, interval, timeout time.Duration, opts ...Option) (*Poller, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("pricefeed: endpoint required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("pricefeed: interval must be positive")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	p := &Poller{
		endpoint: endpoint,
		interval: interval,
		client:   &http.Client{Timeout: timeout},
		logger:   slog.Default(),
		now:      time.Now,
		lastErr:  errNoReading,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Run blocks, periodically polling the endpoint until the context is cancelled.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	p.once.Do(func() {
		p.logger.Info("price feed poller started", slog.String("endpoint", p.endpoint), slog.Duration("interval", p.interval))
	})
	for {
		if err := p.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("price feed poll failed", slog.Any("error", err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs a single poll. A failed poll keeps the previous reading so
// the engine's staleness bound decides when it stops being usable.
func (p *Poller) Tick(ctx context.Context) error {
	reading, err := p.fetch(ctx)
	metrics.Stream().PriceFeedPoll(err, reading.UpdatedAt.Unix())
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		if p.latest.Price == nil {
			p.lastErr = err
		}
		return err
	}
	p.latest = reading
	p.lastErr = nil
	return nil
}

func (p *Poller) fetch(ctx context.Context) (settlement.PriceReading, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint, nil)
	if err != nil {
		return settlement.PriceReading{}, fmt.Errorf("pricefeed: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return settlement.PriceReading{}, fmt.Errorf("pricefeed: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return settlement.PriceReading{}, fmt.Errorf("pricefeed: unexpected status %d", resp.StatusCode)
	}
	var payload Payload
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&payload); err != nil {
		return settlement.PriceReading{}, fmt.Errorf("pricefeed: decode: %w", err)
	}
	price, ok := new(big.Int).SetString(strings.TrimSpace(payload.Price), 10)
	if !ok || price.Sign() <= 0 {
		return settlement.PriceReading{}, fmt.Errorf("pricefeed: invalid price %q", payload.Price)
	}
	updated := p.now()
	if payload.UpdatedAt > 0 {
		updated = time.Unix(payload.UpdatedAt, 0)
	}
	return settlement.PriceReading{Price: price, Decimals: payload.Decimals, UpdatedAt: updated.UTC()}, nil
}

// LatestPrice implements settlement.PriceFeed.
func (p *Poller) LatestPrice() (settlement.PriceReading, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.latest.Price == nil {
		return settlement.PriceReading{}, p.lastErr
	}
	reading := p.latest
	reading.Price = new(big.Int).Set(p.latest.Price)
	return reading, nil
}
