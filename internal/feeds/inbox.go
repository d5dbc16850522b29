package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/livefeed/internal/dispatch"
	"github.com/rickgao/livefeed/internal/events"
)

// DefaultBatchWindow is the minimum time between two inbox notifications.
const DefaultBatchWindow = 30 * time.Second

type orangeredPayload struct {
	MsgType    string `json:"msg_type"`
	MsgBody    string `json:"msg_body"`
	InboxCount int    `json:"inbox_count"`
}

type messagesReadPayload struct {
	InboxCount int `json:"inbox_count"`
}

// InboxConfig describes the user whose inbox is followed.
type InboxConfig struct {
	LiveOrangeredsPref bool // send notifications at all
	PrefEmailMessages  bool
	BatchWindow        time.Duration
}

// Inbox handles new_orangered and messages_read for one user.
//
// New messages accumulate until a notification may be sent. At most one
// notification is sent per batch window; messages arriving inside the window
// wait for the next message after it.
type Inbox struct {
	cfg       InboxConfig
	notifier  Notifier
	analytics Analytics
	logger    *slog.Logger
	now       func() time.Time

	mu         sync.Mutex
	pending    []orangeredPayload
	lastFlash  time.Time
	inboxCount int
}

// NewInbox creates an inbox handler. analytics may be nil.
func NewInbox(cfg InboxConfig, notifier Notifier, analytics Analytics, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchWindow <= 0 {
		cfg.BatchWindow = DefaultBatchWindow
	}
	return &Inbox{
		cfg:       cfg,
		notifier:  notifier,
		analytics: analytics,
		logger:    logger,
		now:       time.Now,
	}
}

// Register adds the handlers to d.
func (i *Inbox) Register(d *dispatch.Dispatcher) error {
	return d.OnMap(map[string]dispatch.Handler{
		TypeNewOrangered: i.HandleNewOrangered,
		TypeMessagesRead: i.HandleMessagesRead,
	})
}

// InboxCount returns the last known unread count.
func (i *Inbox) InboxCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.inboxCount
}

// HandleNewOrangered records a new message and notifies if the batch window
// has passed.
func (i *Inbox) HandleNewOrangered(ctx context.Context, msg dispatch.Message) error {
	var p orangeredPayload
	if err := msg.Decode(&p); err != nil {
		return fmt.Errorf("decode new_orangered: %w", err)
	}

	i.mu.Lock()
	i.pending = append(i.pending, p)
	i.inboxCount = p.InboxCount
	now := i.now()
	var n *Notification
	if i.lastFlash.IsZero() || now.Sub(i.lastFlash) >= i.cfg.BatchWindow {
		n = i.flashLocked(p.MsgBody)
		i.lastFlash = now
	}
	i.mu.Unlock()

	if err := i.notifier.UpdateMessageCount(ctx, p.InboxCount); err != nil {
		return fmt.Errorf("update message count: %w", err)
	}
	if n == nil {
		return nil
	}

	if err := i.notifier.Notify(ctx, *n); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	i.track(ctx, "new_orangered", events.Payload{
		"new_messages":        n.Count,
		"pref_email_messages": i.cfg.PrefEmailMessages,
	})
	return nil
}

// HandleMessagesRead updates the unread count.
func (i *Inbox) HandleMessagesRead(ctx context.Context, msg dispatch.Message) error {
	var p messagesReadPayload
	if err := msg.Decode(&p); err != nil {
		return fmt.Errorf("decode messages_read: %w", err)
	}

	i.mu.Lock()
	i.inboxCount = p.InboxCount
	i.mu.Unlock()

	return i.notifier.UpdateMessageCount(ctx, p.InboxCount)
}

// flashLocked drains the pending batch into a notification, or returns nil
// when notifications are off. Must be called with mu held.
func (i *Inbox) flashLocked(body string) *Notification {
	batch := i.pending
	i.pending = nil
	if !i.cfg.LiveOrangeredsPref || len(batch) == 0 {
		return nil
	}

	// Some messages may have been read during the batch window.
	count := min(len(batch), batch[len(batch)-1].InboxCount)

	n := &Notification{Count: count}
	if count == 1 {
		n.Title = fmt.Sprintf("New %s on Reddit", batch[0].MsgType)
		n.Body = body
	} else {
		n.Title = "New messages on Reddit"
		n.Body = fmt.Sprintf("You have %d new messages!", count)
	}
	return n
}

func (i *Inbox) track(ctx context.Context, name string, payload events.Payload) {
	if i.analytics == nil {
		return
	}
	i.analytics.Track(NotificationTopic, name, payload, events.Options{}).Send(ctx, nil)
}
