package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type openThreadRequest struct {
	CounterpartID string `json:"counterpartId" binding:"required,notblank"`
}

// GetThreads handles GET /api/threads.
func (h *Handler) GetThreads(c *gin.Context) {
	me, ok := identity(c)
	if !ok {
		return
	}
	threads, err := h.messenger.Threads(c.Request.Context(), me)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, threads)
}

// CreateThread handles POST /api/threads. It answers 201 for a new thread
// and 200 when the thread already existed.
func (h *Handler) CreateThread(c *gin.Context) {
	me, ok := identity(c)
	if !ok {
		return
	}
	var req openThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	thread, created, err := h.messenger.OpenThread(c.Request.Context(), me, req.CounterpartID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, thread)
}
