package models

import "time"

// Webinar is the subset of a webinar row the realtime backend reads.
type Webinar struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	UserID    string    `json:"user_id"` // owner
	VideoURL  string    `json:"video_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
