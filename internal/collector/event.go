package collector

import (
	"github.com/rickgao/livefeed/internal/events"
)

// Event is the wire form of one tracked event.
type Event struct {
	Topic     string         `json:"event_topic"`
	Type      string         `json:"event_type"`
	Timestamp int64          `json:"event_ts"` // milliseconds since epoch
	UUID      string         `json:"uuid"`
	Payload   events.Payload `json:"payload"`
}
