package archive

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rickgao/livefeed/internal/dispatch"
	"github.com/rickgao/livefeed/internal/metrics"
)

// Record is one archived frame.
type Record struct {
	ID         uuid.UUID
	Feed       string
	Type       string
	Payload    json.RawMessage
	ReceivedAt time.Time
}

// WriterConfig holds batching settings.
type WriterConfig struct {
	BatchSize     int
	FlushInterval time.Duration
}

// DefaultWriterConfig returns default configuration.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: time.Second,
	}
}

// WriterMetrics contains runtime statistics.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}

// batchSender is satisfied by *pgxpool.Pool.
type batchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Writer drains a Buffer into the live_messages table.
type Writer struct {
	cfg    WriterConfig
	logger *slog.Logger
	input  *Buffer
	db     batchSender

	flushMu sync.Mutex // serializes flushes

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metricsMu sync.Mutex
	metrics   WriterMetrics
}

// NewWriter creates a Writer. db is usually a *pgxpool.Pool.
func NewWriter(cfg WriterConfig, input *Buffer, db batchSender, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultWriterConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultWriterConfig().FlushInterval
	}
	return &Writer{
		cfg:    cfg,
		logger: logger,
		input:  input,
		db:     db,
	}
}

// HandlerFor returns a dispatch handler archiving every message of feed.
func (w *Writer) HandlerFor(feed string) dispatch.Handler {
	return func(ctx context.Context, msg dispatch.Message) error {
		receivedAt := msg.ReceivedAt
		if receivedAt.IsZero() {
			receivedAt = time.Now()
		}
		w.input.Push(Record{
			ID:         uuid.New(),
			Feed:       feed,
			Type:       msg.Type,
			Payload:    msg.Payload,
			ReceivedAt: receivedAt,
		})
		return nil
	}
}

// Start begins consuming records and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.run()

	w.logger.Info("archive writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop closes the input, waits for the loop and writes what is left.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping archive writer")

	w.input.Close()
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("archive writer stopped")
	case <-ctx.Done():
		w.logger.Warn("archive writer stop timed out")
	}

	// Final flush with the caller's deadline.
	for w.input.Len() > 0 {
		if err := w.flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() WriterMetrics {
	w.metricsMu.Lock()
	defer w.metricsMu.Unlock()
	return w.metrics
}

// run flushes on a full batch or on the interval.
func (w *Writer) run() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		case <-w.input.Ready():
			for w.input.Len() >= w.cfg.BatchSize {
				if err := w.flush(w.ctx); err != nil {
					break
				}
			}
		}
	}
}

// flush writes one batch.
func (w *Writer) flush(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	rows := w.input.Drain(w.cfg.BatchSize)
	if len(rows) == 0 {
		return nil
	}

	start := time.Now()
	conflicts, err := w.batchInsert(ctx, rows)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(rows))
		metrics.ArchiveRowsTotal.WithLabelValues("error").Add(float64(len(rows)))
		w.metricsMu.Lock()
		w.metrics.Errors++
		w.metricsMu.Unlock()
		return err
	}

	inserted := len(rows) - conflicts
	metrics.ArchiveRowsTotal.WithLabelValues("inserted").Add(float64(inserted))
	metrics.ArchiveRowsTotal.WithLabelValues("conflict").Add(float64(conflicts))

	w.metricsMu.Lock()
	w.metrics.Inserts += int64(inserted)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.metricsMu.Unlock()

	w.logger.Debug("flushed live messages",
		"count", len(rows),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
	return nil
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []Record) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		var payload any
		if len(r.Payload) > 0 {
			payload = string(r.Payload)
		}
		batch.Queue(`
			INSERT INTO live_messages (id, feed, type, payload, received_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.Feed, r.Type, payload, r.ReceivedAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
