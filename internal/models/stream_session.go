package models

import (
	"time"

	"github.com/google/uuid"
)

// StreamSession tracks one airing of a webinar.
type StreamSession struct {
	ID          uuid.UUID  `json:"id"`
	WebinarID   string     `json:"webinar_id"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	PeakViewers int        `json:"peak_viewers"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
