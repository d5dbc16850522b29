package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rickgao/livefeed/internal/dispatch"
)

type newCommentPayload struct {
	CommentFullname string `json:"comment_fullname"`
	ParentFullname  string `json:"parent_fullname"`
	AuthorID        string `json:"author_id"`
	CommentHTML     string `json:"comment_html"`
	ModCommentHTML  string `json:"mod_comment_html"`
}

// CommentsConfig describes the viewer of a comments page.
type CommentsConfig struct {
	UserID     string
	IsPostsMod bool
	LinkSort   string
}

// Comments handles new_comment messages for one link.
type Comments struct {
	cfg    CommentsConfig
	sink   CommentSink
	logger *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// NewComments creates a handler forwarding to sink.
func NewComments(cfg CommentsConfig, sink CommentSink, logger *slog.Logger) *Comments {
	if logger == nil {
		logger = slog.Default()
	}
	return &Comments{
		cfg:    cfg,
		sink:   sink,
		logger: logger,
		seen:   make(map[string]struct{}),
	}
}

// Register adds the handler to d.
func (c *Comments) Register(d *dispatch.Dispatcher) error {
	return d.On(TypeNewComment, c.Handle)
}

// MarkSeen records comments that are already displayed.
func (c *Comments) MarkSeen(fullnames ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, f := range fullnames {
		c.seen[f] = struct{}{}
	}
}

// Handle processes a new_comment message. Comments by the viewer and comments
// already shown are skipped.
func (c *Comments) Handle(ctx context.Context, msg dispatch.Message) error {
	var p newCommentPayload
	if err := msg.Decode(&p); err != nil {
		return fmt.Errorf("decode new_comment: %w", err)
	}

	if c.cfg.UserID != "" && p.AuthorID == c.cfg.UserID {
		return nil
	}

	c.mu.Lock()
	if _, ok := c.seen[p.CommentFullname]; ok {
		c.mu.Unlock()
		return nil
	}
	c.seen[p.CommentFullname] = struct{}{}
	c.mu.Unlock()

	html := p.CommentHTML
	if c.cfg.IsPostsMod {
		html = p.ModCommentHTML
	}

	comment := Comment{
		Fullname:       p.CommentFullname,
		ParentFullname: p.ParentFullname,
		AuthorID:       p.AuthorID,
		HTML:           html,
		Append:         c.cfg.LinkSort != "new",
	}
	if err := c.sink.InsertComment(ctx, comment); err != nil {
		c.mu.Lock()
		delete(c.seen, p.CommentFullname)
		c.mu.Unlock()
		return fmt.Errorf("insert comment %s: %w", p.CommentFullname, err)
	}

	c.logger.Debug("inserted live comment", "fullname", p.CommentFullname)
	return nil
}
