package feeds

import (
	"context"

	"github.com/rickgao/livefeed/internal/events"
)

// Message types handled by this package.
const (
	TypeNewComment   = "new_comment"
	TypeNewOrangered = "new_orangered"
	TypeMessagesRead = "messages_read"
	TypeRefresh      = "refresh"
)

// NotificationTopic is the analytics topic for inbox notifications.
const NotificationTopic = "browser_notification_events"

// Comment is a comment ready to be shown.
type Comment struct {
	Fullname       string
	ParentFullname string // empty for a top-level comment
	AuthorID       string
	HTML           string
	Append         bool // add at the bottom instead of the top
}

// CommentSink receives new comments.
type CommentSink interface {
	InsertComment(ctx context.Context, c Comment) error
}

// Notification is a batched inbox alert.
type Notification struct {
	Title string
	Body  string
	Count int
}

// Notifier receives inbox updates.
type Notifier interface {
	UpdateMessageCount(ctx context.Context, count int) error
	Notify(ctx context.Context, n Notification) error
}

// Analytics records feed events.
type Analytics interface {
	Track(topic, name string, payload events.Payload, opts events.Options) *events.Pending
}
