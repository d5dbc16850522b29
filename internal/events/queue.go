package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/livefeed/internal/metrics"
)

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithSampler sets per-topic sampling.
func WithSampler(s *Sampler) QueueOption {
	return func(q *Queue) {
		q.sampler = s
	}
}

// WithLoidGenerator replaces the uuid generator used for logged-out ids.
func WithLoidGenerator(fn func() string) QueueOption {
	return func(q *Queue) {
		q.newLoid = fn
	}
}

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) QueueOption {
	return func(q *Queue) {
		q.now = fn
	}
}

// entry is one event tracked before Init.
type entry struct {
	topic   string
	name    string
	payload PayloadFunc
	opts    Options
	done    []func()
	flushed bool
}

// Queue is safe for concurrent use. Payload functions, predicates and the
// Tracker run without the queue lock held, so they may call back into the
// Queue.
type Queue struct {
	logger  *slog.Logger
	tracker Tracker
	sampler *Sampler
	newLoid func() string
	now     func() time.Time

	mu          sync.Mutex
	initialized bool
	contextData ContextData
	queue       []*entry
	predicates  map[string][]Predicate
}

// NewQueue creates an uninitialized Queue. A nil tracker drops every event
// and completes every Send immediately.
func NewQueue(tracker Tracker, logger *slog.Logger, opts ...QueueOption) *Queue {
	if logger == nil {
		logger = slog.Default()
	}

	q := &Queue{
		logger:     logger,
		tracker:    tracker,
		newLoid:    newUUIDLoid,
		now:        time.Now,
		predicates: make(map[string][]Predicate),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Pending is returned by Track. Send on a Pending whose event is still queued
// defers the callback until the queue is flushed.
type Pending struct {
	q *Queue
	e *entry
}

// Send flushes the tracker and calls done when the flush completes. While the
// event is still queued, done is stored with it instead.
func (p *Pending) Send(ctx context.Context, done func()) *Pending {
	if p.e != nil {
		p.q.mu.Lock()
		if !p.e.flushed {
			if done != nil {
				p.e.done = append(p.e.done, done)
			}
			p.q.mu.Unlock()
			return p
		}
		p.q.mu.Unlock()
	}

	p.q.Send(ctx, done)
	return p
}

// Track records an event.
func (q *Queue) Track(topic, name string, payload Payload, opts Options) *Pending {
	return q.TrackFunc(topic, name, func() Payload { return payload }, opts)
}

// TrackFunc records an event whose payload is built when it is forwarded.
func (q *Queue) TrackFunc(topic, name string, payload PayloadFunc, opts Options) *Pending {
	q.mu.Lock()
	if !q.initialized {
		e := &entry{topic: topic, name: name, payload: payload, opts: opts}
		q.queue = append(q.queue, e)
		q.mu.Unlock()
		metrics.EventsTotal.WithLabelValues(topic, "queued").Inc()
		return &Pending{q: q, e: e}
	}
	data := q.contextData
	predicates := q.predicatesLocked(topic)
	q.mu.Unlock()

	q.forward(data, predicates, topic, name, payload, opts)
	return &Pending{q: q}
}

// Send flushes the tracker. done is called exactly once.
func (q *Queue) Send(ctx context.Context, done func()) {
	if done == nil {
		done = func() {}
	}
	if q.tracker == nil {
		done()
		return
	}
	q.tracker.Send(ctx, done)
}

// AddPredicate adds a filter for topic. An event is forwarded only if every
// predicate of its topic accepts it.
func (q *Queue) AddPredicate(topic string, p Predicate) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.predicates[topic] = append(q.predicates[topic], p)
}

// Init computes the context, replays queued events in order and flushes them
// with a single Send whose completion runs the stored callbacks in queue
// order. Later calls do nothing.
func (q *Queue) Init(ctx context.Context, page PageContext) {
	q.mu.Lock()
	if q.initialized {
		q.mu.Unlock()
		return
	}

	data := newContextData(page, q.newLoid, q.now())
	q.contextData = data
	q.initialized = true

	queued := q.queue
	q.queue = nil
	predicates := make(map[string][]Predicate, len(q.predicates))
	for topic := range q.predicates {
		predicates[topic] = q.predicatesLocked(topic)
	}
	q.mu.Unlock()

	for _, e := range queued {
		q.forward(data, predicates[e.topic], e.topic, e.name, e.payload, e.opts)
	}

	// Pending.Send calls made during the replay are stashed and run here.
	var callbacks []func()
	q.mu.Lock()
	for _, e := range queued {
		e.flushed = true
		callbacks = append(callbacks, e.done...)
	}
	q.mu.Unlock()

	q.logger.Debug("event queue initialized", "replayed", len(queued))

	q.Send(ctx, func() {
		for _, done := range callbacks {
			done()
		}
	})
}

// Initialized reports whether Init has run.
func (q *Queue) Initialized() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.initialized
}

// ContextData returns a copy of the computed context, or nil before Init.
func (q *Queue) ContextData() ContextData {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.contextData == nil {
		return nil
	}
	out := make(ContextData, len(q.contextData))
	for k, v := range q.contextData {
		out[k] = v
	}
	return out
}

// Len returns the number of events waiting for Init.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue)
}

// predicatesLocked copies the predicates of topic. mu must be held.
func (q *Queue) predicatesLocked(topic string) []Predicate {
	return append([]Predicate(nil), q.predicates[topic]...)
}

// forward builds the payload and hands it to the tracker unless sampling or
// a predicate rejects it. It must be called without mu held.
func (q *Queue) forward(data ContextData, predicates []Predicate, topic, name string, payloadFn PayloadFunc, opts Options) {
	var payload Payload
	if payloadFn != nil {
		payload = payloadFn()
	}
	payload = data.addTo(opts.ContextProperties, payload)

	if q.tracker == nil {
		metrics.EventsTotal.WithLabelValues(topic, "dropped").Inc()
		return
	}
	if !q.sampler.Keep(topic) {
		metrics.EventsTotal.WithLabelValues(topic, "sampled").Inc()
		return
	}
	for _, p := range predicates {
		if !p(name, payload) {
			metrics.EventsTotal.WithLabelValues(topic, "filtered").Inc()
			return
		}
	}

	q.tracker.Track(topic, name, payload)
	metrics.EventsTotal.WithLabelValues(topic, "tracked").Inc()
}
