package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// CategoryMessage is the generic category that receives every frame.
const CategoryMessage = "message"

// Errors
var (
	ErrInvalidRegistration = errors.New("handler registration requires a type and a handler")
	ErrMalformedFrame      = errors.New("malformed frame")
)

// Message is one parsed frame.
type Message struct {
	Type       string          `json:"type"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"-"`
}

// Decode unmarshals the payload into v.
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return errors.New("empty payload")
	}
	return json.Unmarshal(m.Payload, v)
}

// Handler consumes a message. A returned error is logged and counted.
type Handler func(ctx context.Context, msg Message) error

// Result describes one Dispatch call.
type Result struct {
	Type    string
	Invoked int // handlers called
	Failed  int // handlers that returned an error or panicked
}

// Stats contains runtime statistics.
type Stats struct {
	FramesReceived  int64
	FramesMalformed int64
	Dispatched      int64 // frames that reached at least one handler
	Unhandled       int64 // well-formed frames with no handler
	HandlerFailures int64
}
