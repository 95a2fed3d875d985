package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"trafficcam/internal/config"
	"trafficcam/internal/dto"
	"trafficcam/internal/logger"
	"trafficcam/internal/service/ai"
	"trafficcam/internal/service/source"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
	t.Cleanup(func() { l.Close() })
	return l
}

// fakeSource yields copies of a synthetic frame. frames < 0 means endless;
// once the frames run out it either reports closed or keeps failing reads.
type fakeSource struct {
	mu            sync.Mutex
	template      gocv.Mat
	frames        int
	closeOnDrain  bool
	opened        bool
	closed        atomic.Bool
	reads         atomic.Int64
	frameInterval time.Duration
}

func newFakeSource(t *testing.T, frames int, closeOnDrain bool) *fakeSource {
	t.Helper()
	tmpl := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	return &fakeSource{template: tmpl, frames: frames, closeOnDrain: closeOnDrain, opened: true}
}

func (s *fakeSource) Read(m *gocv.Mat) bool {
	s.reads.Add(1)
	if s.frameInterval > 0 {
		time.Sleep(s.frameInterval)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frames == 0 {
		if s.closeOnDrain {
			s.opened = false
		}
		return false
	}
	if s.frames > 0 {
		s.frames--
	}
	s.template.CopyTo(m)
	return true
}

func (s *fakeSource) IsOpened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened
}

// Close frees the template. The pipeline never reads after releasing its source.
func (s *fakeSource) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.template.Close()
}

// scriptedDetector returns one scripted result per call, then empty results.
type scriptedDetector struct {
	mu     sync.Mutex
	script []scriptStep
	calls  int
	reqs   []ai.Request
}

type scriptStep struct {
	detections []dto.DetectionResult
	err        error
}

func (d *scriptedDetector) Detect(frame gocv.Mat, req ai.Request) ([]dto.DetectionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.calls
	d.calls++
	d.reqs = append(d.reqs, req)
	if i >= len(d.script) {
		return nil, nil
	}
	return d.script[i].detections, d.script[i].err
}

func (d *scriptedDetector) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *scriptedDetector) Requests() []ai.Request {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ai.Request(nil), d.reqs...)
}

func vehicle(label string, id int) dto.DetectionResult {
	return dto.DetectionResult{Label: label, Confidence: 0.8, X: 10, Y: 20, Width: 40, Height: 30, TrackID: id}
}

// fakeAcquirer hands out sources from newSource and counts acquisitions.
type fakeAcquirer struct {
	delay     time.Duration
	fail      bool
	calls     atomic.Int64
	newSource func() *fakeSource
	mu        sync.Mutex
	sources   []*fakeSource
}

func (a *fakeAcquirer) Acquire(ctx context.Context, locator string) (source.Source, error) {
	a.calls.Add(1)
	if a.delay > 0 {
		select {
		case <-time.After(a.delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", source.ErrSourceUnavailable, ctx.Err())
		}
	}
	if a.fail {
		return nil, fmt.Errorf("%w: cannot open %s", source.ErrSourceUnavailable, locator)
	}
	src := a.newSource()
	a.mu.Lock()
	a.sources = append(a.sources, src)
	a.mu.Unlock()
	return src, nil
}

func (a *fakeAcquirer) Sources() []*fakeSource {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]*fakeSource(nil), a.sources...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

var errInference = errors.New("inference failed")
