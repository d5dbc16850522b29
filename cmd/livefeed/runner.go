package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rickgao/livefeed/internal/connection"
	"github.com/rickgao/livefeed/internal/dispatch"
)

// feedRunner owns the connector of one configured feed. A stopped Connector
// cannot be restarted, so every Start builds a fresh one.
type feedRunner struct {
	cfg        connection.ConnectorConfig
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger

	mu   sync.Mutex
	ctx  context.Context
	conn *connection.Connector
}

func newFeedRunner(cfg connection.ConnectorConfig, d *dispatch.Dispatcher, logger *slog.Logger) *feedRunner {
	return &feedRunner{
		cfg:        cfg,
		dispatcher: d,
		logger:     logger.With("feed", cfg.Name),
	}
}

// Start connects a new Connector for the feed.
func (r *feedRunner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		r.conn.Stop()
	}
	conn := connection.NewConnector(r.cfg, r.logger,
		connection.WithFrameHandler(r.dispatcher),
	)
	conn.Subscribe(r.logNotification)
	r.ctx = ctx
	r.conn = conn
	return conn.Start(ctx)
}

// Stop closes the live Connector, if any.
func (r *feedRunner) Stop() error {
	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Stop()
}

// Restart replaces the connection. It does nothing while the feed is stopped.
func (r *feedRunner) Restart() {
	r.mu.Lock()
	ctx := r.ctx
	running := r.conn != nil
	r.mu.Unlock()

	if !running || ctx == nil || ctx.Err() != nil {
		return
	}
	r.logger.Info("restarting feed connection")
	if err := r.Start(ctx); err != nil {
		r.logger.Error("failed to restart feed", "error", err)
	}
}

// Status reports the connector state for the debug endpoint.
func (r *feedRunner) Status() feedStatus {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()

	st := feedStatus{Name: r.cfg.Name, URL: r.cfg.URL, State: "stopped"}
	if conn != nil {
		st.State = conn.State().String()
		st.Attempts = conn.Attempts()
	}
	st.Dispatch = r.dispatcher.Stats()
	return st
}

func (r *feedRunner) logNotification(n connection.Notification) {
	switch n.Kind {
	case connection.NotifyReconnecting:
		r.logger.Debug("feed reconnecting", "delay", n.Delay)
	case connection.NotifyDisconnected:
		r.logger.Warn("feed disconnected, retries exhausted")
	}
}

type feedStatus struct {
	Name     string         `json:"name"`
	URL      string         `json:"url"`
	State    string         `json:"state"`
	Attempts int            `json:"attempts"`
	Role     string         `json:"role,omitempty"`
	Dispatch dispatch.Stats `json:"dispatch"`
}
