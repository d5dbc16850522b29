package feeds

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rickgao/livefeed/internal/dispatch"
)

// DefaultRefreshWindow spreads refreshes over five minutes.
const DefaultRefreshWindow = 300 * time.Second

// Refresh handles the refresh message by running a callback after a random
// delay within the window, so a fleet of clients does not reload at once.
type Refresh struct {
	window    time.Duration
	onRefresh func()
	logger    *slog.Logger
	random    func() float64
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu    sync.Mutex
	timer *time.Timer
}

// NewRefresh creates a handler calling onRefresh.
func NewRefresh(window time.Duration, onRefresh func(), logger *slog.Logger) *Refresh {
	if logger == nil {
		logger = slog.Default()
	}
	if window <= 0 {
		window = DefaultRefreshWindow
	}
	return &Refresh{
		window:    window,
		onRefresh: onRefresh,
		logger:    logger,
		random:    rand.Float64,
		afterFunc: time.AfterFunc,
	}
}

// Register adds the handler to d.
func (r *Refresh) Register(d *dispatch.Dispatcher) error {
	return d.On(TypeRefresh, r.Handle)
}

// Handle schedules a refresh unless one is already pending.
func (r *Refresh) Handle(ctx context.Context, msg dispatch.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.timer != nil {
		return nil
	}

	delay := time.Duration(r.random() * float64(r.window))
	r.logger.Info("refresh requested", "delay", delay)
	r.timer = r.afterFunc(delay, func() {
		r.mu.Lock()
		r.timer = nil
		r.mu.Unlock()
		r.onRefresh()
	})
	return nil
}

// Stop cancels a pending refresh.
func (r *Refresh) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
