package models

import (
	"time"

	"github.com/google/uuid"
)

// AvatarMessage is a scripted chat line replayed at a video timestamp.
type AvatarMessage struct {
	ID        uuid.UUID `json:"id"`
	WebinarID string    `json:"webinar_id"`
	Name      string    `json:"name"`
	Message   string    `json:"message"`
	Timestamp float64   `json:"timestamp"` // seconds into the video
	CreatedAt time.Time `json:"created_at"`
}
