package trafficlog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trafficcam/internal/logger"
	"trafficcam/internal/model"
	"trafficcam/internal/service/metrics"
	"trafficcam/internal/service/stats"
)

// DefaultInterval is how often Run records every camera.
const DefaultInterval = 30 * time.Second

// SessionLookup returns the pipeline session of a camera, or "" if none runs.
type SessionLookup func(cameraID string) string

// Recorder forwards stats snapshots to the configured sinks, periodically and on demand.
type Recorder struct {
	stats    *stats.Aggregator
	sinks    []Sink
	sessions SessionLookup
	active   func(cameraID string) bool
	interval time.Duration
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewRecorder creates a recorder. A non-positive interval uses DefaultInterval.
func NewRecorder(aggregator *stats.Aggregator, sinks []Sink, sessions SessionLookup, interval time.Duration,
	m *metrics.Metrics, logger *logger.Logger) *Recorder {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if sessions == nil {
		sessions = func(string) string { return "" }
	}
	return &Recorder{
		stats:    aggregator,
		sinks:    sinks,
		sessions: sessions,
		active:   func(string) bool { return true },
		interval: interval,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// SetActiveCheck limits RecordAll to cameras for which active reports true,
// so a stopped camera's last snapshot is not logged again every tick.
func (r *Recorder) SetActiveCheck(active func(cameraID string) bool) {
	if active == nil {
		active = func(string) bool { return true }
	}
	r.active = active
}

// Run records all cameras every interval until ctx is cancelled.
func (r *Recorder) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Traffic log recorder started (every %v)", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Traffic log recorder stopped")
			return
		case <-ticker.C:
			r.RecordAll(ctx)
		}
	}
}

// RecordAll records every active camera with data. A failing camera is
// logged and skipped. It returns how many cameras were recorded.
func (r *Recorder) RecordAll(ctx context.Context) int {
	recorded := 0
	for _, cameraID := range r.stats.CameraIDs() {
		if !r.active(cameraID) {
			continue
		}
		ok, err := r.RecordCamera(ctx, cameraID)
		if err != nil {
			r.logger.Error("Failed to record traffic log for camera %s: %v", cameraID, err)
			continue
		}
		if ok {
			recorded++
		}
	}
	if recorded > 0 {
		r.logger.Info("Recorded traffic logs for %d cameras", recorded)
	}
	return recorded
}

// RecordCamera writes the camera's current snapshot to every sink. It returns
// false without error when the camera has no data.
func (r *Recorder) RecordCamera(ctx context.Context, cameraID string) (bool, error) {
	snapshot := r.stats.Snapshot(cameraID)
	if snapshot.IsZero() {
		return false, nil
	}

	entry := model.TrafficLog{
		CameraID:      cameraID,
		SessionID:     r.sessions(cameraID),
		Car:           snapshot.Car,
		Motorcycle:    snapshot.Motorcycle,
		Bus:           snapshot.Bus,
		Truck:         snapshot.Truck,
		TotalVehicles: snapshot.TotalVehicles,
		FlowRate:      snapshot.FlowRate,
		Timestamp:     r.now().UTC(),
	}

	var errs []error
	for _, sink := range r.sinks {
		err := sink.Record(ctx, entry)
		r.metrics.TrafficLogWritten(sink.Name(), err)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	if len(errs) > 0 {
		return false, errors.Join(errs...)
	}
	return true, nil
}

// Close closes every sink.
func (r *Recorder) Close() error {
	var errs []error
	for _, sink := range r.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}
