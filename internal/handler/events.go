package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"librarylog/internal/broadcast"
)

const heartbeatEvery = 25 * time.Second

// Events handles GET /library/events, a server-sent event stream of visit
// changes. A client resuming with Last-Event-ID (or ?since=) is replayed from
// that version; a client with no position only sees new events.
func (h *Handler) Events(c *gin.Context) {
	since, ok := resumeFrom(c)
	if !ok {
		since = h.events.Version()
	}

	ctx := c.Request.Context()
	events := h.events.Subscribe(ctx, since)

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.Render(-1, sse.Event{
		Id:    strconv.FormatUint(since, 10),
		Event: "ready",
		Retry: 3000,
		Data:  gin.H{"version": since},
	})
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()

	last := since
	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			c.Render(-1, sse.Event{Event: "ping", Data: gin.H{"version": last}})
			c.Writer.Flush()
		case evt, open := <-events:
			if !open {
				return
			}
			if evt.Kind != broadcast.KindResync && evt.Version > last+1 {
				// this subscriber was too slow and lost events
				h.logger.Debug("event gap, asking viewer to resync",
					zap.Uint64("last", last), zap.Uint64("version", evt.Version))
				evt = broadcast.Event{Version: evt.Version, Kind: broadcast.KindResync, At: evt.At}
			}
			if evt.Version > last {
				last = evt.Version
			}
			c.Render(-1, sse.Event{
				Id:    strconv.FormatUint(evt.Version, 10),
				Event: evt.Kind,
				Data:  evt,
			})
			c.Writer.Flush()
		}
	}
}

func resumeFrom(c *gin.Context) (uint64, bool) {
	raw := c.GetHeader("Last-Event-ID")
	if raw == "" {
		raw = c.Query("since")
	}
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
