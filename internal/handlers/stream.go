package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oremus-labs/ol-advisor-relay/internal/events"
	"github.com/oremus-labs/ol-advisor-relay/internal/feed"
	"github.com/oremus-labs/ol-advisor-relay/internal/metrics"
	"github.com/oremus-labs/ol-advisor-relay/internal/sse"
)

type feedStream struct {
	name  string
	topic string
	// replay runs after connected and before live events; returning true
	// ends the stream.
	replay func(w *sse.Writer) bool
	// final reports whether evt is the last event of the feed.
	final func(evt events.Event) bool
}

// serveFeed subscribes before writing anything so no event published after
// connected is missed, and streams until the client leaves or final matches.
func (h *Handler) serveFeed(c *gin.Context, fs feedStream) {
	if h.feeds == nil {
		unavailable(c, "event feeds")
		return
	}
	ctx := c.Request.Context()
	ch, cancel := h.feeds.Subscribe(ctx, fs.topic)
	defer cancel()
	defer metrics.StreamOpened(fs.name)()

	sse.SetHeaders(c.Writer.Header())
	c.Status(http.StatusOK)
	w := sse.NewWriter(c.Writer)
	if err := w.Send(feed.EventConnected, gin.H{"ok": true}); err != nil {
		return
	}
	if fs.replay != nil && fs.replay(w) {
		return
	}

	ticker := time.NewTicker(h.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := w.Send(evt.Type, evt.Data); err != nil {
				return
			}
			if fs.final != nil && fs.final(evt) {
				return
			}
		case <-ticker.C:
			if err := w.Comment("ping"); err != nil {
				return
			}
		}
	}
}
