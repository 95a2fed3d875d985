package trafficlog

import (
	"context"

	"trafficcam/internal/model"
	"trafficcam/internal/repository"
)

// Sink persists recorded snapshots.
type Sink interface {
	Name() string
	Record(ctx context.Context, entry model.TrafficLog) error
	Close() error
}

// RepositorySink writes traffic logs through a TrafficLogRepository.
type RepositorySink struct {
	repo repository.TrafficLogRepository
}

// NewRepositorySink creates a sink backed by repo.
func NewRepositorySink(repo repository.TrafficLogRepository) *RepositorySink {
	return &RepositorySink{repo: repo}
}

func (s *RepositorySink) Name() string { return "sqlite" }

func (s *RepositorySink) Record(ctx context.Context, entry model.TrafficLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.repo.Insert(&entry)
	return err
}

// Close is a no-op; the database is owned by the application.
func (s *RepositorySink) Close() error { return nil }
