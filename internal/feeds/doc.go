// Package feeds implements the handlers for the live comment and user inbox
// feeds, plus the refresh message every feed understands.
//
// Handlers register on a dispatch.Dispatcher and hand their results to small
// sink interfaces; LogSink implements all of them for headless runs.
package feeds
