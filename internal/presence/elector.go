package presence

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Role is the elector's current position.
type Role int

const (
	RoleWatching Role = iota
	RoleOwner
)

func (r Role) String() string {
	switch r {
	case RoleWatching:
		return "watching"
	case RoleOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// Feed is the connection the elected owner runs.
type Feed interface {
	Start(ctx context.Context) error
	Stop() error
}

// FeedFactory creates a fresh Feed each time ownership is won.
type FeedFactory func() Feed

// Config configures an Elector.
type Config struct {
	Key           string // heartbeat key, e.g. "livefeed:user:t2_abc"
	Owner         string // identifies this candidate
	WriteInterval time.Duration
	WatchInterval time.Duration
	StaleAfter    time.Duration
	YieldWithin   time.Duration
}

// DefaultConfig returns the intervals used by live pages.
func DefaultConfig(key, owner string) Config {
	return Config{
		Key:           key,
		Owner:         owner,
		WriteInterval: 5 * time.Second,
		WatchInterval: 15 * time.Second,
		StaleAfter:    15 * time.Second,
		YieldWithin:   5 * time.Second,
	}
}

// Elector runs a Feed while it owns the heartbeat.
type Elector struct {
	cfg     Config
	store   Store
	newFeed FeedFactory
	logger  *slog.Logger
	now     func() time.Time

	mu   sync.Mutex
	role Role
	feed Feed
}

// NewElector creates an Elector in the watching role.
func NewElector(cfg Config, store Store, newFeed FeedFactory, logger *slog.Logger) *Elector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Elector{
		cfg:     cfg,
		store:   store,
		newFeed: newFeed,
		logger:  logger.With("presence_key", cfg.Key, "owner", cfg.Owner),
		now:     time.Now,
	}
}

func (e *Elector) ownerKey() string {
	return e.cfg.Key + "-owner"
}

// Role returns the current role.
func (e *Elector) Role() Role {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.role
}

// Run claims ownership if the heartbeat is stale, then writes or watches the
// heartbeat until ctx is done. The feed is stopped on return.
func (e *Elector) Run(ctx context.Context) error {
	e.start(ctx)
	defer e.release()

	for {
		interval := e.cfg.WatchInterval
		if e.Role() == RoleOwner {
			interval = e.cfg.WriteInterval
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			e.tick(ctx)
		}
	}
}

// start is the initial election.
func (e *Elector) start(ctx context.Context) {
	stale, err := e.heartbeatStale(ctx)
	if err != nil {
		e.logger.Warn("failed to read heartbeat", "error", err)
		return
	}
	if stale {
		e.claim(ctx)
	}
}

// tick runs one write or watch step.
func (e *Elector) tick(ctx context.Context) {
	if e.Role() == RoleOwner {
		e.writeTick(ctx)
		return
	}
	e.watchTick(ctx)
}

func (e *Elector) watchTick(ctx context.Context) {
	stale, err := e.heartbeatStale(ctx)
	if err != nil {
		e.logger.Warn("failed to read heartbeat", "error", err)
		return
	}
	if stale {
		e.logger.Info("heartbeat stale, taking over live connection")
		e.claim(ctx)
	}
}

// writeTick refreshes ownership unless another candidate wrote the heartbeat
// within YieldWithin, in which case this one yields.
func (e *Elector) writeTick(ctx context.Context) {
	hb, found, err := e.readHeartbeat(ctx)
	switch {
	case err != nil:
		e.logger.Warn("failed to read heartbeat", "error", err)
	case found && hb.owner != e.cfg.Owner && hb.age < e.cfg.YieldWithin:
		e.logger.Info("another owner holds the live connection, yielding", "other", hb.owner)
		e.release()
		return
	}

	e.recordOwner(ctx)
	e.writeHeartbeat(ctx)
}

// claim starts a feed and records this candidate as owner.
func (e *Elector) claim(ctx context.Context) {
	feed := e.newFeed()
	if err := feed.Start(ctx); err != nil {
		e.logger.Warn("failed to start feed", "error", err)
		return
	}

	e.mu.Lock()
	e.feed = feed
	e.role = RoleOwner
	e.mu.Unlock()

	e.recordOwner(ctx)
	e.writeHeartbeat(ctx)
}

func (e *Elector) recordOwner(ctx context.Context) {
	if err := e.store.Set(ctx, e.ownerKey(), e.cfg.Owner, e.ttl()); err != nil {
		e.logger.Warn("failed to record owner", "error", err)
	}
}

// release stops the feed and returns to watching.
func (e *Elector) release() {
	e.mu.Lock()
	feed := e.feed
	e.feed = nil
	e.role = RoleWatching
	e.mu.Unlock()

	if feed != nil {
		if err := feed.Stop(); err != nil {
			e.logger.Warn("failed to stop feed", "error", err)
		}
	}
}

// heartbeat is a decoded heartbeat value: "<RFC3339Nano time> <owner>".
type heartbeat struct {
	age   time.Duration
	owner string
}

func (e *Elector) writeHeartbeat(ctx context.Context) {
	val := e.now().UTC().Format(time.RFC3339Nano) + " " + e.cfg.Owner
	if err := e.store.Set(ctx, e.cfg.Key, val, e.ttl()); err != nil {
		e.logger.Warn("failed to write heartbeat", "error", err)
	}
}

// readHeartbeat returns the current heartbeat and whether a valid one exists.
func (e *Elector) readHeartbeat(ctx context.Context) (heartbeat, bool, error) {
	val, ok, err := e.store.Get(ctx, e.cfg.Key)
	if err != nil || !ok {
		return heartbeat{}, false, err
	}
	stamp, owner, _ := strings.Cut(val, " ")
	at, err := time.Parse(time.RFC3339Nano, stamp)
	if err != nil {
		return heartbeat{}, false, nil
	}
	return heartbeat{age: e.now().Sub(at), owner: owner}, true, nil
}

func (e *Elector) heartbeatStale(ctx context.Context) (bool, error) {
	hb, ok, err := e.readHeartbeat(ctx)
	if err != nil {
		return false, err
	}
	return !ok || hb.age > e.cfg.StaleAfter, nil
}

// ttl expires keys left behind by candidates that exited.
func (e *Elector) ttl() time.Duration {
	return 2 * e.cfg.StaleAfter
}
