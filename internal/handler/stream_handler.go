package handler

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/classdesk/classdesk-api/internal/service"
	appErrors "github.com/classdesk/classdesk-api/pkg/errors"
	"github.com/classdesk/classdesk-api/pkg/response"
)

// StreamHandler serves the live collection snapshot feed over SSE.
type StreamHandler struct {
	events    *service.EventService
	metrics   *service.MetricsService
	heartbeat time.Duration
}

// NewStreamHandler constructs handler.
func NewStreamHandler(events *service.EventService, metrics *service.MetricsService, heartbeat time.Duration) *StreamHandler {
	if heartbeat <= 0 {
		heartbeat = 30 * time.Second
	}
	return &StreamHandler{events: events, metrics: metrics, heartbeat: heartbeat}
}

// Stream godoc
// @Summary Collection snapshot stream
// @Description Server-sent events feed. Each event replaces the named collection wholesale; new connections are seeded with both current collections.
// @Tags Stream
// @Produce text/event-stream
// @Success 200 {string} string "event stream"
// @Failure 401 {object} response.Envelope
// @Router /stream [get]
func (h *StreamHandler) Stream(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	seed, err := h.events.CurrentSnapshots(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	ch, cancel := h.events.Subscribe()
	defer func() {
		cancel()
		h.metrics.SetStreamSubscribers(h.events.SubscriberCount())
	}()
	h.metrics.SetStreamSubscribers(h.events.SubscriberCount())

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	for _, snap := range seed {
		c.SSEvent("snapshot", snap)
	}
	c.Writer.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case snap, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent("snapshot", snap)
			return true
		case <-ticker.C:
			c.SSEvent("heartbeat", time.Now().UTC().Format(time.RFC3339))
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
