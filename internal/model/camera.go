package model

import "time"

// Camera represents a registered video source.
type Camera struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	SourceURL string    `json:"source_url"`
	Location  string    `json:"location"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
