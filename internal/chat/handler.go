package chat

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/simulive/backend/internal/middleware"
	"github.com/simulive/backend/internal/models"
	"github.com/simulive/backend/internal/realtime"
	"github.com/simulive/backend/pkg/response"
)

// SendRequest is the body for POST /webinars/:id/messages.
type SendRequest struct {
	UserID    string `json:"user_id"`
	Message   string `json:"message" binding:"required"`
	SessionID string `json:"session_id"`
	IsAvatar  bool   `json:"is_avatar"`
}

// Handler handles chat HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a chat handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Send handles POST /webinars/:id/messages.
func (h *Handler) Send(c *gin.Context) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	msg, err := h.svc.Send(c.Request.Context(), SendInput{
		WebinarID:  c.Param("id"),
		SessionID:  req.SessionID,
		Author:     req.UserID,
		Message:    req.Message,
		IsAvatar:   req.IsAvatar,
		HostUserID: middleware.UserID(c),
		Identity:   realtime.ClientIdentity(c.Request),
	})
	switch {
	case err == nil:
		response.Created(c, msg)
	case errors.Is(err, ErrInvalidMessage):
		response.BadRequest(c, err.Error())
	case errors.Is(err, ErrForbidden):
		response.Forbidden(c, err.Error())
	case errors.Is(err, ErrRateLimited):
		response.TooManyRequests(c, err.Error())
	case errors.Is(err, models.ErrNotFound):
		response.NotFound(c, "webinar not found")
	default:
		h.logger.Error("send chat message", zap.String("webinar_id", c.Param("id")), zap.Error(err))
		response.Internal(c, "failed to send message")
	}
}

// History handles GET /webinars/:id/messages?limit=.
func (h *Handler) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			response.BadRequest(c, "invalid limit")
			return
		}
		limit = n
	}
	list, err := h.svc.History(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		if errors.Is(err, ErrInvalidMessage) {
			response.BadRequest(c, err.Error())
			return
		}
		h.logger.Error("load chat history", zap.String("webinar_id", c.Param("id")), zap.Error(err))
		response.Internal(c, "failed to load chat history")
		return
	}
	response.OK(c, gin.H{"messages": list})
}
