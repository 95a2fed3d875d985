package stats

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"trafficcam/internal/dto"
)

func TestSnapshot_UnknownCameraIsZero(t *testing.T) {
	a := NewAggregator()

	got := a.Snapshot("never-started")
	if !got.IsZero() {
		t.Errorf("Expected zero snapshot, got %+v", got)
	}

	body, err := json.Marshal(got)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	want := `{"car":0,"motorcycle":0,"bus":0,"truck":0,"total_vehicles":0,"flow_rate":0}`
	if string(body) != want {
		t.Errorf("Expected %s, got %s", want, body)
	}
}

func TestAggregator_PublishAndRemove(t *testing.T) {
	a := NewAggregator()

	a.Publish("1", Snapshot{Car: 2, TotalVehicles: 5, FlowRate: 3})
	a.Publish("2", Snapshot{Bus: 1})

	if got := a.Snapshot("1"); got.Car != 2 || got.TotalVehicles != 5 || got.FlowRate != 3 {
		t.Errorf("Unexpected snapshot: %+v", got)
	}
	if ids := a.CameraIDs(); len(ids) != 2 || ids[0] != "1" || ids[1] != "2" {
		t.Errorf("Unexpected camera ids: %v", ids)
	}

	a.Remove("1")
	if got := a.Snapshot("1"); !got.IsZero() {
		t.Errorf("Removed camera should read as zero, got %+v", got)
	}
	if all := a.All(); len(all) != 1 || all["2"].Bus != 1 {
		t.Errorf("Unexpected All(): %+v", all)
	}
}

func TestAggregator_ReadersNeverSeePartialSnapshots(t *testing.T) {
	a := NewAggregator()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			a.Publish("cam", Snapshot{Car: i, Motorcycle: i, Bus: i, Truck: i, TotalVehicles: i, FlowRate: i})
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 2000; i++ {
				s := a.Snapshot("cam")
				if s.Car != s.Motorcycle || s.Car != s.Bus || s.Car != s.Truck || s.Car != s.TotalVehicles || s.Car != s.FlowRate {
					t.Errorf("Torn snapshot observed: %+v", s)
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestFlowRate(t *testing.T) {
	tests := []struct {
		unique  int
		elapsed time.Duration
		want    int
	}{
		{10, 0, 0},
		{10, -time.Second, 0},
		{0, time.Minute, 0},
		{3, time.Minute, 3},
		{3, 2 * time.Minute, 2}, // 1.5 rounds half away from zero
		{5, 2 * time.Minute, 3}, // 2.5
		{1, 3 * time.Minute, 0}, // 0.33
		{1, 30 * time.Second, 2},
	}

	for _, tt := range tests {
		if got := FlowRate(tt.unique, tt.elapsed); got != tt.want {
			t.Errorf("FlowRate(%d, %v) = %d, expected %d", tt.unique, tt.elapsed, got, tt.want)
		}
	}
}

func det(label string, id int) dto.DetectionResult {
	return dto.DetectionResult{Label: label, Confidence: 0.9, TrackID: id}
}

func TestTally_CountsAndUniqueIDs(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tally := NewTally(start)

	frames := [][]dto.DetectionResult{
		{det("car", 5)},
		{det("car", 5), det("truck", 6)},
		{det("truck", 6), det("person", 99)},
		{det("motorcycle", 7), det("bus", 0)},
	}

	var last Snapshot
	for i, f := range frames {
		s := tally.Observe(f, start.Add(time.Duration(i+1)*15*time.Second))
		if s.TotalVehicles < last.TotalVehicles {
			t.Fatalf("Frame %d: total dropped from %d to %d", i, last.TotalVehicles, s.TotalVehicles)
		}
		last = s
	}

	if last.Motorcycle != 1 || last.Bus != 1 || last.Car != 0 || last.Truck != 0 {
		t.Errorf("Class counts should reflect the latest frame only, got %+v", last)
	}
	if last.TotalVehicles != 3 || tally.Unique() != 3 {
		t.Errorf("Expected 3 unique vehicles, got %d", last.TotalVehicles)
	}
	// 3 vehicles in one minute
	if last.FlowRate != 3 {
		t.Errorf("Expected flow rate 3, got %d", last.FlowRate)
	}
}

func TestTally_RepeatedIDsCountOnce(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	tally := NewTally(start)
	ids := []int{5, 5, 6, 6, 6, 7}

	var last Snapshot
	for i := 0; i < 10; i++ {
		s := tally.Observe([]dto.DetectionResult{det("car", ids[i%len(ids)])}, start.Add(time.Duration(i+1)*time.Second))
		if s.TotalVehicles < last.TotalVehicles {
			t.Fatalf("Frame %d: total dropped from %d to %d", i, last.TotalVehicles, s.TotalVehicles)
		}
		last = s
	}

	if last.TotalVehicles != 3 {
		t.Errorf("Expected 3 unique vehicles after 10 frames, got %d", last.TotalVehicles)
	}
}

func TestTally_ZeroElapsed(t *testing.T) {
	start := time.Now()
	tally := NewTally(start)

	s := tally.Observe([]dto.DetectionResult{det("car", 1)}, start)
	if s.FlowRate != 0 {
		t.Errorf("Flow rate should be 0 at zero elapsed time, got %d", s.FlowRate)
	}
	if s.TotalVehicles != 1 {
		t.Errorf("Expected 1 unique vehicle, got %d", s.TotalVehicles)
	}
}
