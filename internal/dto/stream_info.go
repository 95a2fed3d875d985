package dto

import "time"

// StreamInfo describes an active pipeline for GET /streams.
type StreamInfo struct {
	CameraID  string    `json:"camera_id"`
	SessionID string    `json:"session_id"`
	State     string    `json:"state"`
	FPS       float64   `json:"fps"`
	StartedAt time.Time `json:"started_at"`
}
