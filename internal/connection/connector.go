package connection

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rickgao/livefeed/internal/metrics"
)

// Scheduler runs f once after d and returns a function that cancels it.
type Scheduler func(d time.Duration, f func()) (cancel func() bool)

func afterFunc(d time.Duration, f func()) func() bool {
	t := time.AfterFunc(d, f)
	return t.Stop
}

// ConnectorOption configures a Connector.
type ConnectorOption func(*Connector)

// WithDialer replaces the gorilla/websocket client factory. A nil dialer
// marks the transport as unavailable and makes Start a no-op.
func WithDialer(d Dialer) ConnectorOption {
	return func(c *Connector) {
		c.dial = d
	}
}

// WithFrameHandler sets the consumer of inbound frames.
func WithFrameHandler(h FrameHandler) ConnectorOption {
	return func(c *Connector) {
		c.handler = h
	}
}

// WithScheduler replaces time.AfterFunc for reconnect timers.
func WithScheduler(s Scheduler) ConnectorOption {
	return func(c *Connector) {
		c.schedule = s
	}
}

// WithRandom sets the jitter source; r must return values in [0, 1).
func WithRandom(r func() float64) ConnectorOption {
	return func(c *Connector) {
		c.backoff.random = r
	}
}

// WithStatsClient sets the HTTP client used to post connection stats.
func WithStatsClient(hc *http.Client) ConnectorOption {
	return func(c *Connector) {
		c.statsClient = hc
	}
}

// Connector keeps one live connection to a feed URL.
//
// Lifecycle: Idle -> Connecting -> Open, or Connecting -> Closed on failure.
// From Closed a reconnect is scheduled while the retry budget lasts; after
// MaxRetries consecutive failures the Connector is Exhausted and emits a
// single disconnected notification. An open connection restores the budget.
type Connector struct {
	cfg         ConnectorConfig
	logger      *slog.Logger
	dial        Dialer
	handler     FrameHandler
	schedule    Scheduler
	statsClient *http.Client
	stats       *statsReporter

	mu           sync.Mutex
	state        State
	backoff      *ReconnectBackOff
	client       Client
	cancelTimer  func() bool
	ctx          context.Context
	cancel       context.CancelFunc
	listeners    []func(Notification)
	connectStart time.Time
	stopped      bool
}

// NewConnector creates a Connector in the Idle state.
func NewConnector(cfg ConnectorConfig, logger *slog.Logger, opts ...ConnectorOption) *Connector {
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Client.URL = cfg.URL

	c := &Connector{
		cfg:      cfg,
		logger:   logger.With("feed", cfg.Name),
		dial:     NewClient,
		schedule: afterFunc,
		backoff:  NewReconnectBackOff(cfg.BackoffBase, cfg.JitterAmount, cfg.MaxRetries),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.stats = newStatsReporter(cfg.StatsURL, c.statsClient, c.logger)
	c.setState(StateIdle)

	return c
}

// Name returns the feed name.
func (c *Connector) Name() string {
	return c.cfg.Name
}

// Subscribe registers fn for every lifecycle notification. Listeners run
// synchronously on the connector's goroutines and must not block.
func (c *Connector) Subscribe(fn func(Notification)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Start begins connecting. Without a URL or dialer the transport is
// unavailable and Start does nothing. Starting twice returns ErrAlreadyStarted,
// and starting after Stop returns ErrStopped.
func (c *Connector) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return ErrStopped
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	if c.cfg.URL == "" || c.dial == nil {
		c.mu.Unlock()
		c.logger.Debug("websocket transport unavailable, not connecting")
		return nil
	}
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	go c.connect()
	return nil
}

// Stop closes the live connection and cancels any pending reconnect.
// A stopped Connector never reconnects.
func (c *Connector) Stop() error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	if c.cancelTimer != nil {
		c.cancelTimer()
		c.cancelTimer = nil
	}
	if c.cancel != nil {
		c.cancel()
	}
	client := c.client
	c.client = nil
	if c.state != StateExhausted {
		c.setStateLocked(StateClosed)
	}
	c.mu.Unlock()

	if client != nil {
		client.Close()
	}

	c.logger.Info("websocket connector stopped")
	return nil
}

// Send writes a frame on the live connection.
func (c *Connector) Send(data []byte) error {
	c.mu.Lock()
	client := c.client
	open := c.state == StateOpen
	c.mu.Unlock()

	if client == nil || !open {
		return ErrNotConnected
	}
	return client.Send(data)
}

// State returns the current lifecycle state.
func (c *Connector) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts returns the reconnects scheduled since the last successful open.
func (c *Connector) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backoff.Attempts()
}

// connect performs one connection attempt.
func (c *Connector) connect() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.cancelTimer = nil
	c.setStateLocked(StateConnecting)
	c.connectStart = time.Now()
	client := c.dial(c.cfg.Client, c.logger)
	c.client = client
	ctx := c.ctx
	c.mu.Unlock()

	c.logger.Debug("websocket: connecting", "url", c.cfg.URL)
	metrics.ConnectionAttemptsTotal.WithLabelValues(c.cfg.Name).Inc()
	c.notify(Notification{Kind: NotifyConnecting})

	if err := client.Connect(ctx); err != nil {
		c.handleClose(client, err)
		return
	}

	c.mu.Lock()
	if c.stopped || c.client != client {
		c.mu.Unlock()
		client.Close()
		return
	}
	c.setStateLocked(StateOpen)
	c.backoff.Reset()
	timing := time.Since(c.connectStart)
	c.mu.Unlock()

	c.logger.Info("websocket: connected", "timing", timing)
	c.notify(Notification{Kind: NotifyConnected})
	c.stats.connectionTiming(timing)

	go c.readLoop(ctx, client)
}

// readLoop relays frames from client until it fails or the connector stops.
func (c *Connector) readLoop(ctx context.Context, client Client) {
	for {
		select {
		case <-ctx.Done():
			return

		case err := <-client.Errors():
			c.drain(ctx, client)
			c.handleClose(client, err)
			return

		case msg, ok := <-client.Messages():
			if !ok {
				return
			}
			c.handleFrame(ctx, msg)
		}
	}
}

// drain relays frames that were buffered before the connection failed.
func (c *Connector) drain(ctx context.Context, client Client) {
	for {
		select {
		case msg, ok := <-client.Messages():
			if !ok {
				return
			}
			c.handleFrame(ctx, msg)
		default:
			return
		}
	}
}

func (c *Connector) handleFrame(ctx context.Context, msg TimestampedMessage) {
	metrics.FramesReceivedTotal.WithLabelValues(c.cfg.Name).Inc()

	if c.handler != nil {
		c.handler.HandleFrame(ctx, msg.Data, msg.ReceivedAt)
	}
	c.notify(Notification{
		Kind:       NotifyMessage,
		Frame:      msg.Data,
		ReceivedAt: msg.ReceivedAt,
	})
}

// handleClose treats every failure the same way: retry on schedule, or give
// up once the budget is spent.
func (c *Connector) handleClose(client Client, cause error) {
	c.mu.Lock()
	if c.stopped || c.client != client {
		c.mu.Unlock()
		return
	}
	c.client = nil
	c.setStateLocked(StateClosed)
	delay := c.backoff.NextBackOff()
	attempt := c.backoff.Attempts()
	if delay == backoff.Stop {
		c.setStateLocked(StateExhausted)
	}
	c.mu.Unlock()

	client.Close()
	c.stats.connectionError()

	if delay == backoff.Stop {
		c.logger.Warn("websocket: maximum retries exceeded, giving up",
			"max_retries", c.cfg.MaxRetries,
			"error", cause,
		)
		metrics.ConnectionsExhaustedTotal.WithLabelValues(c.cfg.Name).Inc()
		c.notify(Notification{Kind: NotifyDisconnected})
		return
	}

	c.logger.Info("websocket: connection lost, reconnecting",
		"delay", delay,
		"attempt", attempt,
		"error", cause,
	)
	metrics.ReconnectsScheduledTotal.WithLabelValues(c.cfg.Name).Inc()
	c.notify(Notification{Kind: NotifyReconnecting, Delay: delay})

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.cancelTimer = c.schedule(delay, c.connect)
}

func (c *Connector) notify(n Notification) {
	c.mu.Lock()
	listeners := make([]func(Notification), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(n)
	}
}

func (c *Connector) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setStateLocked(s)
}

// setStateLocked must be called with mu held.
func (c *Connector) setStateLocked(s State) {
	c.state = s
	metrics.ConnectionState.WithLabelValues(c.cfg.Name).Set(float64(s))
}
