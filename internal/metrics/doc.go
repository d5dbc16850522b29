// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - WebSocket connection state, attempts and reconnect schedules per feed
//   - Frame dispatch outcomes and malformed frame counts
//   - Analytics events tracked, sampled out and flushed
//   - Archive batch sizes and failures
package metrics
