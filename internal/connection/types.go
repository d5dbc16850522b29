package connection

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no traffic)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrAlreadyStarted  = errors.New("connector already started")
	ErrStopped         = errors.New("connector stopped")
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// State is the lifecycle state of a Connector.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateExhausted // terminal, no further automatic recovery
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// NotificationKind names a Connector lifecycle notification.
type NotificationKind string

const (
	NotifyConnecting   NotificationKind = "connecting"
	NotifyConnected    NotificationKind = "connected"
	NotifyReconnecting NotificationKind = "reconnecting"
	NotifyDisconnected NotificationKind = "disconnected"
	NotifyMessage      NotificationKind = "message"
)

// Notification is delivered to every listener registered with Subscribe.
type Notification struct {
	Kind       NotificationKind
	Delay      time.Duration // reconnecting only
	Frame      []byte        // message only
	ReceivedAt time.Time     // message only
}

// FrameHandler consumes inbound frames. Implemented by the Message Dispatcher.
type FrameHandler interface {
	HandleFrame(ctx context.Context, frame []byte, receivedAt time.Time)
}

// FrameHandlerFunc adapts a function to FrameHandler.
type FrameHandlerFunc func(ctx context.Context, frame []byte, receivedAt time.Time)

// HandleFrame calls f.
func (f FrameHandlerFunc) HandleFrame(ctx context.Context, frame []byte, receivedAt time.Time) {
	f(ctx, frame, receivedAt)
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g., wss://ws.example.com/link/abc?h=...)
	Header       http.Header   // Extra handshake headers
	PingTimeout  time.Duration // Max silence from the server before the connection is stale; 0 disables
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  60 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}
}

// ConnectorConfig configures a Connector.
type ConnectorConfig struct {
	Name         string        // Feed name used in logs and metrics
	URL          string        // Empty URL disables the connector
	StatsURL     string        // Optional endpoint for connection timing/error stats
	BackoffBase  time.Duration // Delay before the first reconnect, doubled per attempt
	MaxRetries   int           // Consecutive reconnects before giving up
	JitterAmount time.Duration // Width of the uniform jitter window centred on zero
	Client       ClientConfig
}

// DefaultConnectorConfig returns the reconnect schedule used by live pages:
// 2s base, 9 retries, 3s jitter.
func DefaultConnectorConfig() ConnectorConfig {
	return ConnectorConfig{
		BackoffBase:  2 * time.Second,
		MaxRetries:   9,
		JitterAmount: 3 * time.Second,
		Client:       DefaultClientConfig(),
	}
}
