// Package events queues analytics events until the page tracking context is
// known, then replays them in submission order and flushes them through a
// Tracker in a single batch.
//
// Events tracked before Init are held in a FIFO queue together with any
// completion callbacks passed to Pending.Send. Init computes the context once,
// re-tracks every queued event, and issues one Tracker.Send whose completion
// runs the stashed callbacks in queue order. After Init, events go straight to
// the Tracker with the requested context properties merged in.
package events
