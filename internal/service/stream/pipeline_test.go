package stream

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"trafficcam/internal/dto"
	"trafficcam/internal/service/metrics"
	"trafficcam/internal/service/stats"
)

func fastOptions() Options {
	return Options{ReadRetryInterval: time.Millisecond, MaxReadFailures: 3}
}

func TestPipeline_CountsUniqueVehiclesUntilSourceCloses(t *testing.T) {
	src := newFakeSource(t, 6, true)
	det := &scriptedDetector{script: []scriptStep{
		{detections: []dto.DetectionResult{vehicle("car", 5)}},
		{detections: []dto.DetectionResult{vehicle("car", 5)}},
		{detections: []dto.DetectionResult{vehicle("truck", 6)}},
		{detections: []dto.DetectionResult{vehicle("truck", 6)}},
		{detections: []dto.DetectionResult{vehicle("truck", 6)}},
		{detections: []dto.DetectionResult{vehicle("bus", 7), vehicle("car", 8), vehicle("person", 9)}},
	}}
	agg := stats.NewAggregator()

	p := NewPipeline("cam-1", src, det, agg, nil, testLogger(t), fastOptions())
	if p.State() != StateStarting {
		t.Fatalf("New pipeline should be starting, got %s", p.State())
	}
	p.Start()

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Pipeline did not stop after the source closed")
	}

	if p.State() != StateStopped {
		t.Errorf("Expected stopped, got %s", p.State())
	}
	if !src.closed.Load() {
		t.Error("Source should be released")
	}
	if det.Calls() != 6 {
		t.Errorf("Expected 6 detection calls, got %d", det.Calls())
	}

	snap := agg.Snapshot("cam-1")
	if snap.TotalVehicles != 4 {
		t.Errorf("Expected 4 unique vehicles (ids 5,6,7,8), got %d", snap.TotalVehicles)
	}
	if snap.Bus != 1 || snap.Car != 1 || snap.Truck != 0 {
		t.Errorf("Class counts should come from the last frame, got %+v", snap)
	}
	if snap.FlowRate < 0 {
		t.Errorf("Flow rate must not be negative, got %d", snap.FlowRate)
	}
}

func TestPipeline_DetectionFailureSkipsFrame(t *testing.T) {
	src := newFakeSource(t, 3, true)
	det := &scriptedDetector{script: []scriptStep{
		{detections: []dto.DetectionResult{vehicle("car", 1)}},
		{err: errInference},
		{detections: []dto.DetectionResult{vehicle("car", 2)}},
	}}
	agg := stats.NewAggregator()
	m := metrics.New()

	p := NewPipeline("cam-2", src, det, agg, m, testLogger(t), fastOptions())
	p.Start()
	<-p.Done()

	if det.Calls() != 3 {
		t.Errorf("Pipeline should continue after a detection failure, got %d calls", det.Calls())
	}
	if got := agg.Snapshot("cam-2").TotalVehicles; got != 2 {
		t.Errorf("Expected 2 unique vehicles, got %d", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, want := range []string{
		`trafficcam_detection_failures_total{camera="cam-2"} 1`,
		`trafficcam_frames_processed_total{camera="cam-2"} 2`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Metrics missing %q", want)
		}
	}
}

func TestPipeline_StopsAfterReadFailureBudget(t *testing.T) {
	src := newFakeSource(t, 0, false) // opened but never yields a frame
	p := NewPipeline("cam-3", src, &scriptedDetector{}, stats.NewAggregator(), nil, testLogger(t), fastOptions())
	p.Start()

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Pipeline should stop after consecutive read failures")
	}
	if got := src.reads.Load(); got != 3 {
		t.Errorf("Expected 3 reads before giving up, got %d", got)
	}
	if !src.closed.Load() {
		t.Error("Source should be released")
	}
}

func TestPipeline_PublishesJPEGFrames(t *testing.T) {
	src := newFakeSource(t, -1, false)
	src.frameInterval = 5 * time.Millisecond
	p := NewPipeline("cam-4", src, &scriptedDetector{}, stats.NewAggregator(), nil, testLogger(t), fastOptions())
	p.Start()
	defer p.Stop()

	var frame Frame
	waitFor(t, 5*time.Second, func() bool {
		f, ok := p.Publisher().Consume(50 * time.Millisecond)
		frame = f
		return ok && f.Seq >= 2
	}, "published frames")

	if len(frame.Data) < 4 || frame.Data[0] != 0xFF || frame.Data[1] != 0xD8 {
		t.Error("Published frame should be a JPEG")
	}
	waitFor(t, 5*time.Second, func() bool { return p.FPS() > 0 }, "fps measurement")
}

func TestPipeline_StopUnblocksConsumerAndReleasesSource(t *testing.T) {
	src := newFakeSource(t, -1, false)
	src.frameInterval = 20 * time.Millisecond
	p := NewPipeline("cam-5", src, &scriptedDetector{}, stats.NewAggregator(), nil, testLogger(t), fastOptions())
	p.Start()

	waitFor(t, 5*time.Second, func() bool {
		_, ok := p.Publisher().Latest()
		return ok
	}, "first frame")

	result := make(chan bool, 1)
	go func() {
		for {
			if _, ok := p.Publisher().Consume(10 * time.Second); !ok {
				result <- ok
				return
			}
		}
	}()

	p.Stop()
	p.Stop()

	select {
	case <-result:
	case <-time.After(2 * time.Second):
		t.Fatal("Consumer was not released by Stop")
	}
	if !src.closed.Load() {
		t.Error("Source should be released once Stop returns")
	}
	if p.Running() {
		t.Error("Pipeline should not be running")
	}
}

func TestPipeline_StopBeforeStartReleasesSource(t *testing.T) {
	src := newFakeSource(t, -1, false)
	p := NewPipeline("cam-6", src, &scriptedDetector{}, stats.NewAggregator(), nil, testLogger(t), Options{})

	p.Stop()
	p.Start()

	if !src.closed.Load() {
		t.Error("Source should be released")
	}
	if p.State() != StateStopped {
		t.Errorf("Expected stopped, got %s", p.State())
	}
}

func TestPipeline_InfoAndSession(t *testing.T) {
	src := newFakeSource(t, 0, true)
	a := NewPipeline("7", src, &scriptedDetector{}, stats.NewAggregator(), nil, testLogger(t), Options{})
	b := NewPipeline("7", newFakeSource(t, 0, true), &scriptedDetector{}, stats.NewAggregator(), nil, testLogger(t), Options{})
	defer a.Stop()
	defer b.Stop()

	if a.SessionID() == "" || a.SessionID() == b.SessionID() {
		t.Errorf("Each pipeline needs its own session id, got %q and %q", a.SessionID(), b.SessionID())
	}
	info := a.Info()
	if info.CameraID != "7" || info.State != "starting" || info.FPS != 0 {
		t.Errorf("Unexpected info: %+v", info)
	}
}

func TestRate(t *testing.T) {
	tests := []struct {
		delta time.Duration
		want  float64
	}{
		{0, 0},
		{-time.Millisecond, 0},
		{100 * time.Millisecond, 10},
		{time.Second, 1},
	}
	for _, tt := range tests {
		if got := rate(tt.delta); got != tt.want {
			t.Errorf("rate(%v) = %v, expected %v", tt.delta, got, tt.want)
		}
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()

	if o.JPEGQuality != 95 || len(o.Classes) != 4 || o.Now == nil {
		t.Errorf("Unexpected defaults: %+v", o)
	}
	if q := (Options{JPEGQuality: 150}).withDefaults().JPEGQuality; q != DefaultJPEGQuality {
		t.Errorf("Out of range quality should fall back, got %d", q)
	}
}

func TestPipeline_DetectsWithFixedConfidence(t *testing.T) {
	src := newFakeSource(t, 2, true)
	det := &scriptedDetector{}

	p := NewPipeline("cam-conf", src, det, stats.NewAggregator(), nil, testLogger(t), fastOptions())
	p.Start()
	<-p.Done()

	reqs := det.Requests()
	if len(reqs) != 2 {
		t.Fatalf("Expected 2 detection calls, got %d", len(reqs))
	}
	for _, req := range reqs {
		if req.MinConfidence != 0.3 {
			t.Errorf("Expected confidence threshold 0.3, got %v", req.MinConfidence)
		}
		if len(req.Classes) != 4 {
			t.Errorf("Expected the four vehicle classes, got %v", req.Classes)
		}
	}
}
