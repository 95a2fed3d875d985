package app

import (
	"path/filepath"
	"testing"

	"trafficcam/internal/config"
	"trafficcam/internal/repository/sqlite"
)

func TestSeedCameras_SkipsRegisteredSources(t *testing.T) {
	db, err := sqlite.New(filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	repo := sqlite.NewCameraRepository(db)

	inactive := false
	seeds := []config.CameraSeed{
		{Name: "Main St", SourceURL: "rtsp://10.0.0.5/stream", Location: "north"},
		{Name: "Depot", SourceURL: "0", Active: &inactive},
	}

	added, err := SeedCameras(repo, seeds)
	if err != nil {
		t.Fatalf("SeedCameras failed: %v", err)
	}
	if added != 2 {
		t.Errorf("Expected 2 cameras added, got %d", added)
	}

	added, err = SeedCameras(repo, seeds)
	if err != nil {
		t.Fatalf("Second SeedCameras failed: %v", err)
	}
	if added != 0 {
		t.Errorf("Expected re-seeding to add nothing, got %d", added)
	}

	depot, err := repo.GetBySourceURL("0")
	if err != nil || depot == nil {
		t.Fatalf("Depot camera missing: %v", err)
	}
	if depot.IsActive {
		t.Error("Depot should be inactive")
	}
}
