package feeds

import (
	"context"
	"log/slog"
)

// LogSink writes comments and notifications to a logger.
type LogSink struct {
	logger *slog.Logger
}

var (
	_ CommentSink = (*LogSink)(nil)
	_ Notifier    = (*LogSink)(nil)
)

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// InsertComment implements CommentSink.
func (s *LogSink) InsertComment(ctx context.Context, c Comment) error {
	s.logger.Info("new comment",
		"fullname", c.Fullname,
		"parent", c.ParentFullname,
		"author_id", c.AuthorID,
		"html_bytes", len(c.HTML),
	)
	return nil
}

// UpdateMessageCount implements Notifier.
func (s *LogSink) UpdateMessageCount(ctx context.Context, count int) error {
	s.logger.Info("inbox count", "unread", count)
	return nil
}

// Notify implements Notifier.
func (s *LogSink) Notify(ctx context.Context, n Notification) error {
	s.logger.Info("inbox notification", "title", n.Title, "body", n.Body, "count", n.Count)
	return nil
}
