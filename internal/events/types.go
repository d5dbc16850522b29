package events

import (
	"context"
	"errors"
)

// ErrInvalidFullname is returned by FullnameToID.
var ErrInvalidFullname = errors.New("invalid fullname")

// Payload is an event body. Context properties are merged into a copy.
type Payload map[string]any

// PayloadFunc builds a payload when the event is forwarded, not when it is
// tracked.
type PayloadFunc func() Payload

// Options controls how a single event is tracked.
type Options struct {
	// ContextProperties names context values to copy into the payload.
	// Values that are nil in the context are skipped.
	ContextProperties []string
}

// Predicate decides whether an event may be forwarded.
type Predicate func(name string, payload Payload) bool

// Tracker buffers events and flushes them to a collector.
type Tracker interface {
	Track(topic, name string, payload Payload)
	// Send flushes every buffered event and calls done exactly once when the
	// flush completes, whether or not it succeeded.
	Send(ctx context.Context, done func())
}

// PageContext describes the page the events originate from.
type PageContext struct {
	UserID            string
	UserName          string
	Loid              string
	LoidCreated       string
	Language          string
	Referrer          string
	DoNotTrack        bool
	CurLink           string // fullname of the link being viewed, e.g. t3_15bfi0
	CurSite           string // fullname of the current subreddit
	PostSite          string
	PageType          string // "comments" or "listing"
	CurListing        string
	ExpandoPreference string
	PrefNoProfanity   bool
	PrefBeta          bool
}
