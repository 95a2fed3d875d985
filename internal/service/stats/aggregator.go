package stats

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Vehicle classes counted per frame.
const (
	ClassCar        = "car"
	ClassMotorcycle = "motorcycle"
	ClassBus        = "bus"
	ClassTruck      = "truck"
)

// VehicleClasses lists the tracked classes in report order.
var VehicleClasses = []string{ClassCar, ClassMotorcycle, ClassBus, ClassTruck}

// Snapshot is the per-camera aggregate exposed to readers. Class counts are
// for the latest frame, TotalVehicles is the distinct vehicles seen since the
// pipeline started and FlowRate is vehicles per minute.
type Snapshot struct {
	Car           int `json:"car"`
	Motorcycle    int `json:"motorcycle"`
	Bus           int `json:"bus"`
	Truck         int `json:"truck"`
	TotalVehicles int `json:"total_vehicles"`
	FlowRate      int `json:"flow_rate"`
}

// IsZero reports whether the snapshot carries no data.
func (s Snapshot) IsZero() bool {
	return s == Snapshot{}
}

// Aggregator holds the latest snapshot per camera. Each camera has a single
// writer; any number of readers may call Snapshot concurrently.
type Aggregator struct {
	mu      sync.RWMutex
	entries map[string]*atomic.Pointer[Snapshot]
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{entries: make(map[string]*atomic.Pointer[Snapshot])}
}

// Snapshot returns the latest snapshot. Unknown cameras yield the zero snapshot.
func (a *Aggregator) Snapshot(cameraID string) Snapshot {
	a.mu.RLock()
	entry, ok := a.entries[cameraID]
	a.mu.RUnlock()
	if !ok {
		return Snapshot{}
	}
	if s := entry.Load(); s != nil {
		return *s
	}
	return Snapshot{}
}

// Publish replaces the camera's snapshot in one step.
func (a *Aggregator) Publish(cameraID string, s Snapshot) {
	a.entry(cameraID).Store(&s)
}

func (a *Aggregator) entry(cameraID string) *atomic.Pointer[Snapshot] {
	a.mu.RLock()
	entry, ok := a.entries[cameraID]
	a.mu.RUnlock()
	if ok {
		return entry
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if entry, ok := a.entries[cameraID]; ok {
		return entry
	}
	entry = &atomic.Pointer[Snapshot]{}
	a.entries[cameraID] = entry
	return entry
}

// Remove drops the camera's entry; later reads return the zero snapshot.
func (a *Aggregator) Remove(cameraID string) {
	a.mu.Lock()
	delete(a.entries, cameraID)
	a.mu.Unlock()
}

// CameraIDs returns the cameras that have an entry, sorted.
func (a *Aggregator) CameraIDs() []string {
	a.mu.RLock()
	ids := make([]string, 0, len(a.entries))
	for id := range a.entries {
		ids = append(ids, id)
	}
	a.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// All returns a copy of every camera's latest snapshot.
func (a *Aggregator) All() map[string]Snapshot {
	out := make(map[string]Snapshot)
	for _, id := range a.CameraIDs() {
		out[id] = a.Snapshot(id)
	}
	return out
}
