package avatars

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/simulive/backend/internal/models"
	"github.com/simulive/backend/internal/presence"
	"github.com/simulive/backend/pkg/response"
)

// Lister loads avatar scripts.
type Lister interface {
	ListByWebinar(ctx context.Context, webinarID string) ([]models.AvatarMessage, error)
}

// Handler serves avatar scripts.
type Handler struct {
	repo Lister
}

// NewHandler creates an avatars handler.
func NewHandler(repo Lister) *Handler {
	return &Handler{repo: repo}
}

// List handles GET /webinars/:id/avatar-messages.
func (h *Handler) List(c *gin.Context) {
	webinarID := presence.NormalizeRoomKey(c.Param("id"))
	if webinarID == "" {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	list, err := h.repo.ListByWebinar(c.Request.Context(), webinarID)
	if err != nil {
		response.Internal(c, "failed to load avatar messages")
		return
	}
	response.OK(c, gin.H{"messages": list})
}
