package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"gymtalk/store"
)

type sendMessageRequest struct {
	ReceiverID string `json:"receiverId" binding:"required,notblank"`
	Text       string `json:"text" binding:"required,notblank"`
}

type markReadRequest struct {
	MessageIDs []string `json:"messageIds" binding:"required"`
}

type conversationQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1,max=200"`
	Skip  int `form:"skip" binding:"omitempty,min=0"`
}

// SendMessage handles POST /api/messages.
func (h *Handler) SendMessage(c *gin.Context) {
	me, ok := identity(c)
	if !ok {
		return
	}
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	msg, err := h.messenger.Send(c.Request.Context(), me, req.ReceiverID, req.Text)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// GetConversation handles GET /api/messages/conversation/:counterpartId.
func (h *Handler) GetConversation(c *gin.Context) {
	me, ok := identity(c)
	if !ok {
		return
	}
	var q conversationQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.bindError(c, err)
		return
	}

	page, err := h.messenger.Conversation(c.Request.Context(), me, c.Param("counterpartId"), store.Page{Limit: q.Limit, Skip: q.Skip})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// MarkAsRead handles POST /api/messages/read.
func (h *Handler) MarkAsRead(c *gin.Context) {
	me, ok := identity(c)
	if !ok {
		return
	}
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.bindError(c, err)
		return
	}

	updated, err := h.messenger.MarkRead(c.Request.Context(), me, req.MessageIDs)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}
