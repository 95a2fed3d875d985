package app

import (
	"fmt"

	"trafficcam/internal/config"
	"trafficcam/internal/model"
	"trafficcam/internal/repository"
)

// SeedCameras inserts every seed whose source is not registered yet and
// returns how many were added.
func SeedCameras(cameras repository.CameraRepository, seeds []config.CameraSeed) (int, error) {
	added := 0
	for _, seed := range seeds {
		existing, err := cameras.GetBySourceURL(seed.SourceURL)
		if err != nil {
			return added, fmt.Errorf("failed to look up camera %q: %w", seed.Name, err)
		}
		if existing != nil {
			continue
		}

		cam := &model.Camera{
			Name:      seed.Name,
			SourceURL: seed.SourceURL,
			Location:  seed.Location,
			IsActive:  seed.IsActive(),
		}
		if _, err := cameras.Insert(cam); err != nil {
			return added, fmt.Errorf("failed to insert camera %q: %w", seed.Name, err)
		}
		added++
	}
	return added, nil
}
