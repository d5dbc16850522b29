package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/livefeed/internal/connection"
	"github.com/rickgao/livefeed/internal/metrics"
)

// Dispatcher is safe for concurrent use. Handlers may register while frames
// are being dispatched; a registration takes effect from the next frame.
type Dispatcher struct {
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler

	statsMu         sync.Mutex
	received        int64
	malformed       int64
	dispatched      int64
	unhandled       int64
	handlerFailures int64
}

var _ connection.FrameHandler = (*Dispatcher)(nil)

// New creates an empty Dispatcher.
func New(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:   logger,
		handlers: make(map[string][]Handler),
	}
}

// On registers h for msgType. Use CategoryMessage to see every frame.
func (d *Dispatcher) On(msgType string, h Handler) error {
	if msgType == "" || h == nil {
		return ErrInvalidRegistration
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[msgType] = append(d.handlers[msgType], h)
	return nil
}

// OnMap registers every entry of handlers, in type order. Nothing is
// registered if any entry is invalid.
func (d *Dispatcher) OnMap(handlers map[string]Handler) error {
	types := make([]string, 0, len(handlers))
	for msgType, h := range handlers {
		if msgType == "" || h == nil {
			return fmt.Errorf("%w: %q", ErrInvalidRegistration, msgType)
		}
		types = append(types, msgType)
	}
	sort.Strings(types)

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, msgType := range types {
		d.handlers[msgType] = append(d.handlers[msgType], handlers[msgType])
	}
	return nil
}

// HandleFrame implements connection.FrameHandler.
func (d *Dispatcher) HandleFrame(ctx context.Context, frame []byte, receivedAt time.Time) {
	if _, err := d.DispatchAt(ctx, frame, receivedAt); err != nil {
		d.logger.Debug("dropping frame", "error", err, "size", len(frame))
	}
}

// Dispatch parses frame and runs the matching handlers.
func (d *Dispatcher) Dispatch(ctx context.Context, frame []byte) (Result, error) {
	return d.DispatchAt(ctx, frame, time.Now())
}

// DispatchAt is Dispatch with an explicit receive time. A malformed frame
// reaches no handler and yields ErrMalformedFrame.
func (d *Dispatcher) DispatchAt(ctx context.Context, frame []byte, receivedAt time.Time) (Result, error) {
	d.statsMu.Lock()
	d.received++
	d.statsMu.Unlock()

	msg, err := parse(frame)
	if err != nil {
		d.statsMu.Lock()
		d.malformed++
		d.statsMu.Unlock()
		metrics.MalformedFramesTotal.Inc()
		return Result{}, err
	}
	msg.ReceivedAt = receivedAt

	d.logger.Debug("received message", "type", msg.Type)

	d.mu.RLock()
	generic := d.handlers[CategoryMessage]
	typed := d.handlers[msg.Type]
	if msg.Type == CategoryMessage {
		typed = nil
	}
	chain := make([]Handler, 0, len(generic)+len(typed))
	chain = append(chain, generic...)
	chain = append(chain, typed...)
	d.mu.RUnlock()

	result := Result{Type: msg.Type}
	for _, h := range chain {
		result.Invoked++
		if err := d.invoke(ctx, h, msg); err != nil {
			result.Failed++
			d.logger.Warn("message handler failed", "type", msg.Type, "error", err)
			metrics.DispatchTotal.WithLabelValues(msg.Type, "error").Inc()
			continue
		}
		metrics.DispatchTotal.WithLabelValues(msg.Type, "ok").Inc()
	}

	d.statsMu.Lock()
	if result.Invoked > 0 {
		d.dispatched++
	} else {
		d.unhandled++
	}
	d.handlerFailures += int64(result.Failed)
	d.statsMu.Unlock()

	return result, nil
}

// invoke runs h, converting a panic into an error.
func (d *Dispatcher) invoke(ctx context.Context, h Handler, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, msg)
}

// Stats returns current statistics.
func (d *Dispatcher) Stats() Stats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()

	return Stats{
		FramesReceived:  d.received,
		FramesMalformed: d.malformed,
		Dispatched:      d.dispatched,
		Unhandled:       d.unhandled,
		HandlerFailures: d.handlerFailures,
	}
}

func parse(frame []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(frame, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if msg.Type == "" {
		return Message{}, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}
	return msg, nil
}
