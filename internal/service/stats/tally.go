package stats

import (
	"math"
	"time"

	"trafficcam/internal/dto"
)

// Tally accumulates the tracking state of one pipeline run: the distinct
// track ids seen so far and when counting started. The id set only grows.
type Tally struct {
	seen    map[int]struct{}
	started time.Time
}

// NewTally starts counting at start.
func NewTally(start time.Time) *Tally {
	return &Tally{seen: make(map[int]struct{}), started: start}
}

// Observe folds one frame of detections into the tally and returns the
// snapshot as of now.
func (t *Tally) Observe(detections []dto.DetectionResult, now time.Time) Snapshot {
	var s Snapshot
	for _, d := range detections {
		switch d.Label {
		case ClassCar:
			s.Car++
		case ClassMotorcycle:
			s.Motorcycle++
		case ClassBus:
			s.Bus++
		case ClassTruck:
			s.Truck++
		default:
			continue
		}
		if d.TrackID > 0 {
			t.seen[d.TrackID] = struct{}{}
		}
	}

	s.TotalVehicles = len(t.seen)
	s.FlowRate = FlowRate(s.TotalVehicles, now.Sub(t.started))
	return s
}

// Unique returns the number of distinct ids seen.
func (t *Tally) Unique() int {
	return len(t.seen)
}

// Started returns when counting began.
func (t *Tally) Started() time.Time {
	return t.started
}

// FlowRate returns unique vehicles per elapsed minute rounded to the nearest
// integer, or 0 when no time has elapsed.
func FlowRate(unique int, elapsed time.Duration) int {
	minutes := elapsed.Minutes()
	if minutes <= 0 || unique <= 0 {
		return 0
	}
	return int(math.Round(float64(unique) / minutes))
}
