// Package collector delivers analytics events to an event collector.
//
// Client buffers events and posts each flush as one JSON array, signed with
// an HMAC-SHA256 of the body:
//
//	POST <url>?key=<key>&mac=<hex hmac>
//	Content-Type: text/plain
//
//	[{"event_topic":"...","event_type":"...","event_ts":...,"uuid":"...","payload":{...}}]
//
// Delivery is best effort. A failed post is logged and its events are
// dropped; the completion callback runs either way. A circuit breaker stops
// posting while the collector keeps failing.
//
// KafkaTracker publishes the same events to a Kafka topic instead.
package collector
