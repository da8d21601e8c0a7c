package handlers

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	streamBuffer    = 32
	streamKeepAlive = 15 * time.Second
)

// StreamEvents sends lottery notifications as Server-Sent Events until the
// client goes away.
func (h *HTTPHandler) StreamEvents(c *gin.Context) {
	events, cancel := h.opts.Events.Subscribe(streamBuffer)
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	// Flush headers so clients see the stream open before the first event.
	c.SSEvent("ready", gin.H{"state": h.service.State().String()})
	c.Writer.Flush()

	keepAlive := time.NewTicker(streamKeepAlive)
	defer keepAlive.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Type), ev)
			return true
		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"at": time.Now().UTC()})
			return true
		}
	})
}
