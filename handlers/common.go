package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
	"go.uber.org/zap"

	"gymtalk/apperr"
	"gymtalk/middleware"
	"gymtalk/models"
	"gymtalk/notify"
	"gymtalk/services"
	"gymtalk/store"
)

type Messenger interface {
	Send(ctx context.Context, sender models.Identity, receiverID, text string) (models.Message, error)
	MarkRead(ctx context.Context, reader models.Identity, ids []string) (int, error)
	Conversation(ctx context.Context, viewer models.Identity, counterpartID string, page store.Page) (services.ConversationPage, error)
	Threads(ctx context.Context, viewer models.Identity) ([]models.Thread, error)
	OpenThread(ctx context.Context, opener models.Identity, counterpartID string) (models.Thread, bool, error)
}

type EventHandler interface {
	Handle(ctx context.Context, e notify.Event) error
}

// Handler serves the REST surface of the messaging core.
type Handler struct {
	messenger Messenger
	events    EventHandler
	log       *zap.Logger
}

func New(messenger Messenger, events EventHandler, log *zap.Logger) *Handler {
	RegisterValidators()
	return &Handler{messenger: messenger, events: events, log: log.With(zap.String("component", "http"))}
}

var registerOnce sync.Once

// RegisterValidators adds the notblank tag to gin's binding validator.
func RegisterValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("notblank", validators.NotBlank)
		}
	})
}

func statusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeAuthorization:
		return http.StatusForbidden
	case apperr.CodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and a {"error","code"} body. Causes of
// internal errors are logged, never returned.
func (h *Handler) writeError(c *gin.Context, err error) {
	code := apperr.CodeOf(err)
	reason := "Internal server error"

	var appErr *apperr.Error
	if errors.As(err, &appErr) && code != apperr.CodeInternal {
		reason = appErr.Reason
	}
	if code == apperr.CodeInternal {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(statusOf(code), gin.H{"error": reason, "code": code})
}

func (h *Handler) bindError(c *gin.Context, err error) {
	h.writeError(c, apperr.New(apperr.CodeValidation, "Invalid request body", err))
}

func identity(c *gin.Context) (models.Identity, bool) {
	id, ok := middleware.IdentityFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
	}
	return id, ok
}
