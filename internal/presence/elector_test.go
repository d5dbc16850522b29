package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

type fakeFeed struct {
	mu       sync.Mutex
	started  bool
	stopped  bool
	startErr error
}

func (f *fakeFeed) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = true
	return nil
}

func (f *fakeFeed) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeFeed) running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started && !f.stopped
}

type feedRecorder struct {
	mu    sync.Mutex
	feeds []*fakeFeed
	err   error
}

func (r *feedRecorder) factory() Feed {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := &fakeFeed{startErr: r.err}
	r.feeds = append(r.feeds, f)
	return f
}

func (r *feedRecorder) last() *fakeFeed {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.feeds) == 0 {
		return nil
	}
	return r.feeds[len(r.feeds)-1]
}

func (r *feedRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.feeds)
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestElector(owner string, store *MemoryStore, clk *clock) (*Elector, *feedRecorder) {
	rec := &feedRecorder{}
	e := NewElector(DefaultConfig("livefeed:user:t2_abc", owner), store, rec.factory, nil)
	e.now = clk.Now
	return e, rec
}

func newTestStore(clk *clock) *MemoryStore {
	s := NewMemoryStore()
	s.now = clk.Now
	return s
}

func TestElector_ClaimsWhenNoHeartbeat(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newTestStore(clk)
	e, rec := newTestElector("a", store, clk)

	e.start(context.Background())

	if e.Role() != RoleOwner {
		t.Fatalf("Role() = %v, want owner", e.Role())
	}
	if !rec.last().running() {
		t.Error("feed not started")
	}

	owner, ok, _ := store.Get(context.Background(), "livefeed:user:t2_abc-owner")
	if !ok || owner != "a" {
		t.Errorf("owner = %q, %v; want a", owner, ok)
	}
	if _, ok, _ := store.Get(context.Background(), "livefeed:user:t2_abc"); !ok {
		t.Error("heartbeat not written")
	}
}

func TestElector_WatchesFreshHeartbeat(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newTestStore(clk)
	ctx := context.Background()

	a, _ := newTestElector("a", store, clk)
	a.start(ctx)

	b, recB := newTestElector("b", store, clk)
	clk.Advance(3 * time.Second)
	b.start(ctx)

	if b.Role() != RoleWatching {
		t.Fatalf("b.Role() = %v, want watching", b.Role())
	}
	if recB.count() != 0 {
		t.Error("b started a feed while a's heartbeat was fresh")
	}

	// a keeps writing; b stays watching.
	clk.Advance(5 * time.Second)
	a.tick(ctx)
	clk.Advance(10 * time.Second)
	b.tick(ctx)
	if b.Role() != RoleWatching {
		t.Errorf("b took over a live heartbeat")
	}

	// a dies; after the heartbeat goes stale b takes over.
	clk.Advance(16 * time.Second)
	b.tick(ctx)
	if b.Role() != RoleOwner {
		t.Fatalf("b.Role() = %v, want owner after stale heartbeat", b.Role())
	}
	if !recB.last().running() {
		t.Error("b's feed not started")
	}
}

func TestElector_OwnerYieldsToNewerOwner(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newTestStore(clk)
	ctx := context.Background()

	a, recA := newTestElector("a", store, clk)
	a.start(ctx)

	// b claims while a's heartbeat looks stale, e.g. after a pause.
	clk.Advance(20 * time.Second)
	b, _ := newTestElector("b", store, clk)
	b.start(ctx)
	if b.Role() != RoleOwner {
		t.Fatalf("b.Role() = %v, want owner", b.Role())
	}

	clk.Advance(time.Second)
	a.tick(ctx)

	if a.Role() != RoleWatching {
		t.Errorf("a.Role() = %v, want watching", a.Role())
	}
	if recA.last().running() {
		t.Error("a's feed still running after yielding")
	}

	owner, _, _ := store.Get(ctx, "livefeed:user:t2_abc-owner")
	if owner != "b" {
		t.Errorf("owner = %q, want b", owner)
	}
}

func TestElector_OwnerRefreshesHeartbeat(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newTestStore(clk)
	ctx := context.Background()

	a, _ := newTestElector("a", store, clk)
	a.start(ctx)

	clk.Advance(5 * time.Second)
	a.tick(ctx)

	val, _, _ := store.Get(ctx, "livefeed:user:t2_abc")
	want := clk.Now().UTC().Format(time.RFC3339Nano) + " a"
	if val != want {
		t.Errorf("heartbeat = %q, want %q", val, want)
	}
	if a.Role() != RoleOwner {
		t.Errorf("Role() = %v, want owner", a.Role())
	}
}

func TestElector_OwnerReclaimsFromDeadOwner(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newTestStore(clk)
	ctx := context.Background()

	a, recA := newTestElector("a", store, clk)
	a.start(ctx)

	// b claims during a pause of a, then exits without writing again.
	clk.Advance(20 * time.Second)
	b, _ := newTestElector("b", store, clk)
	b.start(ctx)

	clk.Advance(10 * time.Second)
	a.tick(ctx)

	if a.Role() != RoleOwner || !recA.last().running() {
		t.Fatalf("a.Role() = %v, want owner with a running feed", a.Role())
	}
	owner, _, _ := store.Get(ctx, "livefeed:user:t2_abc-owner")
	if owner != "a" {
		t.Errorf("owner = %q, want a", owner)
	}
}

func TestElector_OwnHeartbeatIsNotAnotherOwner(t *testing.T) {
	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	store := newTestStore(clk)
	ctx := context.Background()

	a, _ := newTestElector("a", store, clk)
	a.start(ctx)

	// The owner key names b, but the fresh heartbeat is a's own.
	store.Set(ctx, "livefeed:user:t2_abc-owner", "b", time.Minute)
	clk.Advance(time.Second)
	a.tick(ctx)

	if a.Role() != RoleOwner {
		t.Fatalf("a.Role() = %v, want owner", a.Role())
	}
	owner, _, _ := store.Get(ctx, "livefeed:user:t2_abc-owner")
	if owner != "a" {
		t.Errorf("owner = %q, want a", owner)
	}
}

func TestElector_FeedStartFailureKeepsWatching(t *testing.T) {
	clk := &clock{now: time.Now()}
	store := newTestStore(clk)
	e, rec := newTestElector("a", store, clk)
	rec.err = errors.New("no url")

	e.start(context.Background())

	if e.Role() != RoleWatching {
		t.Errorf("Role() = %v, want watching", e.Role())
	}
}

func TestElector_RunStopsFeedOnCancel(t *testing.T) {
	store := NewMemoryStore()
	rec := &feedRecorder{}
	cfg := DefaultConfig("k", "a")
	cfg.WriteInterval = 5 * time.Millisecond
	e := NewElector(cfg, store, rec.factory, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if rec.last() == nil || rec.last().running() {
		t.Error("feed should have been started and then stopped")
	}
	if e.Role() != RoleWatching {
		t.Errorf("Role() = %v, want watching", e.Role())
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	clk := &clock{now: time.Now()}
	s := newTestStore(clk)
	ctx := context.Background()

	s.Set(ctx, "k", "v", time.Second)
	s.Set(ctx, "forever", "v", 0)

	if v, ok, _ := s.Get(ctx, "k"); !ok || v != "v" {
		t.Errorf("Get(k) = %q, %v", v, ok)
	}

	clk.Advance(time.Second)

	if _, ok, _ := s.Get(ctx, "k"); ok {
		t.Error("k should have expired")
	}
	if _, ok, _ := s.Get(ctx, "forever"); !ok {
		t.Error("key without ttl expired")
	}
	if _, ok, _ := s.Get(ctx, "missing"); ok {
		t.Error("missing key reported present")
	}
}

func TestRedisStore_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	s := NewRedisStore(client)
	defer s.Close()

	ctx := context.Background()
	if _, _, err := s.Get(ctx, "k"); err == nil {
		t.Error("expected error from unreachable redis")
	}
	if err := s.Set(ctx, "k", "v", time.Second); err == nil {
		t.Error("expected error from unreachable redis")
	}
}

func TestRole_String(t *testing.T) {
	if RoleOwner.String() != "owner" || RoleWatching.String() != "watching" || Role(9).String() != "unknown" {
		t.Error("unexpected role names")
	}
}
