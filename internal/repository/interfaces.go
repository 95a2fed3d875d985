package repository

import (
	"errors"

	"trafficcam/internal/model"
)

var (
	// ErrCameraNotFound is returned when a camera id has no record.
	ErrCameraNotFound = errors.New("camera not found")
	// ErrDuplicateSource is returned when a source_url is already registered.
	ErrDuplicateSource = errors.New("camera source already registered")
)

// CameraRepository defines the interface for camera registry operations.
type CameraRepository interface {
	// Create operations
	Insert(cam *model.Camera) (int64, error)

	// Read operations
	GetByID(id int64) (*model.Camera, error)
	GetBySourceURL(sourceURL string) (*model.Camera, error)
	GetAll(skip, limit int) ([]model.Camera, error) // limit < 0 means no limit

	// Delete operations
	Delete(id int64) error
}

// TrafficLogRepository defines the interface for recorded traffic snapshots.
type TrafficLogRepository interface {
	// Create operations
	Insert(entry *model.TrafficLog) (int64, error)

	// Read operations
	GetByCamera(cameraID string, limit int) ([]model.TrafficLog, error)

	// Delete operations
	DeleteByCamera(cameraID string) error
}
