package model

import "time"

// TrafficLog is one recorded stats snapshot of a camera.
type TrafficLog struct {
	ID            int64     `json:"id"`
	CameraID      string    `json:"camera_id"`
	SessionID     string    `json:"session_id"`
	Car           int       `json:"car"`
	Motorcycle    int       `json:"motorcycle"`
	Bus           int       `json:"bus"`
	Truck         int       `json:"truck"`
	TotalVehicles int       `json:"total_vehicles"`
	FlowRate      int       `json:"flow_rate"`
	Timestamp     time.Time `json:"timestamp"`
}
