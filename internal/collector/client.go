package collector

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/rickgao/livefeed/internal/events"
	"github.com/rickgao/livefeed/internal/metrics"
)

const sinkHTTP = "http"

// Config configures a Client.
type Config struct {
	URL     string
	Key     string
	Secret  string
	Source  string        // stored in every payload as "domain"
	Timeout time.Duration // per post
}

// Client is an events.Tracker that posts to an HTTP collector.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	breaker    *gobreaker.CircuitBreaker
	now        func() time.Time
	newID      func() string

	mu  sync.Mutex
	buf []Event
	wg  sync.WaitGroup
}

var _ events.Tracker = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBreakerSettings replaces the default circuit breaker settings.
func WithBreakerSettings(st gobreaker.Settings) ClientOption {
	return func(c *Client) {
		c.breaker = gobreaker.NewCircuitBreaker(st)
	}
}

// WithClock replaces time.Now for event timestamps.
func WithClock(fn func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = fn
	}
}

// DefaultBreakerSettings opens the breaker after five consecutive failed
// posts and probes again after a minute.
func DefaultBreakerSettings(name string) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
}

// NewClient creates a collector client.
func NewClient(cfg Config, opts ...ClientOption) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	c := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger:  slog.Default(),
		breaker: gobreaker.NewCircuitBreaker(DefaultBreakerSettings("event-collector")),
		now:     time.Now,
		newID:   uuid.NewString,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Track buffers an event until the next Send.
func (c *Client) Track(topic, name string, payload events.Payload) {
	body := make(events.Payload, len(payload)+1)
	for k, v := range payload {
		body[k] = v
	}
	if c.cfg.Source != "" {
		body["domain"] = c.cfg.Source
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf = append(c.buf, Event{
		Topic:     topic,
		Type:      name,
		Timestamp: c.now().UnixMilli(),
		UUID:      c.newID(),
		Payload:   body,
	})
}

// Send posts every buffered event in the background and calls done once the
// post finishes, successfully or not. With nothing buffered, done runs
// immediately.
func (c *Client) Send(ctx context.Context, done func()) {
	batch := c.take()
	if len(batch) == 0 {
		if done != nil {
			done()
		}
		return
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if done != nil {
			defer done()
		}
		c.deliver(context.WithoutCancel(ctx), batch)
	}()
}

// Flush posts every buffered event and waits for the result.
func (c *Client) Flush(ctx context.Context) error {
	batch := c.take()
	if len(batch) == 0 {
		return nil
	}
	return c.deliver(ctx, batch)
}

// Wait blocks until every background Send has completed.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Pending returns the number of buffered events.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buf)
}

func (c *Client) take() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := c.buf
	c.buf = nil
	return batch
}

func (c *Client) deliver(ctx context.Context, batch []Event) error {
	start := time.Now()
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, batch)
	})
	metrics.FlushDuration.WithLabelValues(sinkHTTP).Observe(float64(time.Since(start).Milliseconds()))

	switch {
	case err == nil:
		metrics.FlushesTotal.WithLabelValues(sinkHTTP, "ok").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.FlushesTotal.WithLabelValues(sinkHTTP, "rejected").Inc()
		c.logger.Warn("event collector unavailable, dropping events",
			"events", len(batch),
			"breaker", c.breaker.State().String(),
		)
	default:
		metrics.FlushesTotal.WithLabelValues(sinkHTTP, "error").Inc()
		c.logger.Warn("failed to post events", "events", len(batch), "error", err)
	}
	return err
}
