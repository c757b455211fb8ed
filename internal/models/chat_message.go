package models

import (
	"time"

	"github.com/google/uuid"
)

// HostAuthor is the author name stored for messages posted by the webinar owner.
const HostAuthor = "Host"

// ChatMessage is one persisted chat line of a webinar room.
type ChatMessage struct {
	ID        uuid.UUID `json:"id"`
	WebinarID string    `json:"webinar_id"`
	SessionID *string   `json:"session_id,omitempty"`
	UserID    string    `json:"user_id"` // display name or HostAuthor
	Message   string    `json:"message"`
	IsAdmin   bool      `json:"is_admin"`
	IsAvatar  bool      `json:"is_avatar"`
	CreatedAt time.Time `json:"created_at"`
}
