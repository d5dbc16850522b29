package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/rickgao/livefeed/internal/events"
	"github.com/rickgao/livefeed/internal/metrics"
)

const sinkKafka = "kafka"

// messageWriter is the subset of *kafka.Writer used by KafkaTracker.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig configures a KafkaTracker.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	Source       string
	WriteTimeout time.Duration
}

// KafkaTracker is an events.Tracker that publishes each flush to Kafka, one
// message per event keyed by the event's uuid.
type KafkaTracker struct {
	cfg    KafkaConfig
	writer messageWriter
	logger *slog.Logger
	now    func() time.Time

	mu  sync.Mutex
	buf []Event
	wg  sync.WaitGroup
}

var _ events.Tracker = (*KafkaTracker)(nil)

// NewKafkaTracker creates a tracker writing to cfg.Topic.
func NewKafkaTracker(cfg KafkaConfig, logger *slog.Logger) *KafkaTracker {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: cfg.WriteTimeout,
	}
	return newKafkaTracker(cfg, w, logger)
}

func newKafkaTracker(cfg KafkaConfig, w messageWriter, logger *slog.Logger) *KafkaTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &KafkaTracker{
		cfg:    cfg,
		writer: w,
		logger: logger,
		now:    time.Now,
	}
}

// Track buffers an event until the next Send.
func (k *KafkaTracker) Track(topic, name string, payload events.Payload) {
	body := make(events.Payload, len(payload)+1)
	for key, v := range payload {
		body[key] = v
	}
	if k.cfg.Source != "" {
		body["domain"] = k.cfg.Source
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.buf = append(k.buf, Event{
		Topic:     topic,
		Type:      name,
		Timestamp: k.now().UnixMilli(),
		UUID:      uuid.NewString(),
		Payload:   body,
	})
}

// Send publishes the buffered events in the background and calls done when
// the write finishes.
func (k *KafkaTracker) Send(ctx context.Context, done func()) {
	k.mu.Lock()
	batch := k.buf
	k.buf = nil
	k.mu.Unlock()

	if len(batch) == 0 {
		if done != nil {
			done()
		}
		return
	}

	k.wg.Add(1)
	go func() {
		defer k.wg.Done()
		if done != nil {
			defer done()
		}
		if err := k.publish(context.WithoutCancel(ctx), batch); err != nil {
			k.logger.Warn("failed to publish events", "events", len(batch), "error", err)
		}
	}()
}

// Close waits for in-flight sends and closes the writer.
func (k *KafkaTracker) Close() error {
	k.wg.Wait()
	return k.writer.Close()
}

func (k *KafkaTracker) publish(ctx context.Context, batch []Event) error {
	start := time.Now()
	msgs := make([]kafka.Message, 0, len(batch))
	for _, e := range batch {
		value, err := json.Marshal(e)
		if err != nil {
			metrics.FlushesTotal.WithLabelValues(sinkKafka, "error").Inc()
			return fmt.Errorf("marshal event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(e.UUID),
			Value: value,
			Time:  time.UnixMilli(e.Timestamp),
		})
	}

	err := k.writer.WriteMessages(ctx, msgs...)
	metrics.FlushDuration.WithLabelValues(sinkKafka).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.FlushesTotal.WithLabelValues(sinkKafka, "error").Inc()
		return fmt.Errorf("write kafka messages: %w", err)
	}
	metrics.FlushesTotal.WithLabelValues(sinkKafka, "ok").Inc()
	return nil
}
