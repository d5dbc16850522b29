// Package archive records every dispatched frame in PostgreSQL.
//
// Handlers registered for the generic message category push Records into a
// bounded Buffer; a Writer drains the buffer and inserts the rows into
// live_messages in pgx batches, flushing when a batch fills up or on a timer.
// When the database falls behind, the oldest buffered records are dropped.
package archive
