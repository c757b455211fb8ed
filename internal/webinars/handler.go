package webinars

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/simulive/backend/internal/models"
	"github.com/simulive/backend/internal/presence"
	"github.com/simulive/backend/pkg/response"
)

// Finder loads a webinar row.
type Finder interface {
	GetByID(ctx context.Context, id string) (*models.Webinar, error)
}

// Presence is the live room state read by the handler.
type Presence interface {
	ViewerCount(ctx context.Context, rawRoomKey string) (int, error)
	Rooms(ctx context.Context) (map[string]int, error)
}

// Handler serves webinar read paths.
type Handler struct {
	repo     Finder
	presence Presence
}

// NewHandler creates a webinars handler.
func NewHandler(repo Finder, presence Presence) *Handler {
	return &Handler{repo: repo, presence: presence}
}

// Get handles GET /webinars/:id.
func (h *Handler) Get(c *gin.Context) {
	w, err := h.repo.GetByID(c.Request.Context(), presence.NormalizeRoomKey(c.Param("id")))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			response.NotFound(c, "webinar not found")
			return
		}
		response.Internal(c, "failed to load webinar")
		return
	}
	response.OK(c, w)
}

// Viewers handles GET /webinars/:id/viewers with the live deduplicated count.
func (h *Handler) Viewers(c *gin.Context) {
	room := presence.NormalizeRoomKey(c.Param("id"))
	if room == "" {
		response.BadRequest(c, "invalid webinar id")
		return
	}
	n, err := h.presence.ViewerCount(c.Request.Context(), room)
	if err != nil {
		response.ServiceUnavailable(c, "presence unavailable")
		return
	}
	response.OK(c, gin.H{"webinar_id": room, "viewers": n})
}

// Rooms handles GET /realtime/rooms.
func (h *Handler) Rooms(c *gin.Context) {
	rooms, err := h.presence.Rooms(c.Request.Context())
	if err != nil {
		response.ServiceUnavailable(c, "presence unavailable")
		return
	}
	response.OK(c, gin.H{"rooms": rooms})
}
