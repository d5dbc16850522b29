// Package presence elects one process to hold a per-user live connection.
//
// Candidates share a heartbeat in a Store: the owner writes the current time
// under the key every WriteInterval and records itself under "<key>-owner".
// Watchers check the heartbeat every WatchInterval and take over once it is
// older than StaleAfter. An owner that finds another owner recorded with a
// heartbeat younger than YieldWithin stops its feed and goes back to
// watching.
package presence
