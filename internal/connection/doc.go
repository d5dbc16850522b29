// Package connection implements the Backoff Connector component.
//
// The Connector:
//   - Owns a single WebSocket connection to one feed URL
//   - Reconnects lost connections with exponential backoff and random jitter
//   - Gives up permanently after a bounded number of consecutive retries
//   - Resets its retry budget whenever a connection opens
//   - Relays every inbound frame to a FrameHandler (the Message Dispatcher)
//   - Emits connecting, connected, reconnecting, disconnected and message notifications
package connection
