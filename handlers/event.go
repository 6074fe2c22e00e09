package handlers

import (
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"gymtalk/metrics"
	"gymtalk/notify"
)

const maxEventBody = 64 << 10

// InternalToken guards service-to-service routes with a shared token.
func InternalToken(token string) gin.HandlerFunc {
	expected := []byte(token)
	return func(c *gin.Context) {
		got := []byte(c.GetHeader("X-Internal-Token"))
		if len(expected) == 0 || subtle.ConstantTimeCompare(got, expected) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid internal token"})
			return
		}
		c.Next()
	}
}

// IngestEvent handles POST /internal/events from the workout side of the
// application. Accepted events are dispatched before the response is sent.
func (h *Handler) IngestEvent(c *gin.Context) {
	metrics.EventsConsumed.WithLabelValues("http").Inc()

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxEventBody))
	if err != nil {
		h.bindError(c, err)
		return
	}
	e, err := notify.DecodeEvent(body)
	if err != nil {
		metrics.EventDecodeFail.Inc()
		h.writeError(c, err)
		return
	}
	if err := h.events.Handle(c.Request.Context(), e); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "type": e.Type})
}
