package handler

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"trafficcam/internal/config"
	"trafficcam/internal/dto"
	"trafficcam/internal/logger"
	"trafficcam/internal/model"
	"trafficcam/internal/repository/sqlite"
	"trafficcam/internal/service/ai"
	"trafficcam/internal/service/source"
	"trafficcam/internal/service/stats"
	"trafficcam/internal/service/stream"
	"trafficcam/internal/service/trafficlog"
)

// loopSource returns a blank frame every 10ms until closed.
type loopSource struct {
	mu       sync.Mutex
	template gocv.Mat
	closed   bool
}

func newLoopSource() *loopSource {
	return &loopSource{template: gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)}
}

func (s *loopSource) Read(m *gocv.Mat) bool {
	time.Sleep(10 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.template.CopyTo(m)
	return true
}

func (s *loopSource) IsOpened() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed
}

func (s *loopSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.template.Close()
}

type testAcquirer struct {
	fail    bool
	calls   atomic.Int64
	mu      sync.Mutex
	sources []*loopSource
}

func (a *testAcquirer) Acquire(ctx context.Context, locator string) (source.Source, error) {
	a.calls.Add(1)
	if a.fail {
		return nil, fmt.Errorf("%w: cannot open %s", source.ErrSourceUnavailable, locator)
	}
	src := newLoopSource()
	a.mu.Lock()
	a.sources = append(a.sources, src)
	a.mu.Unlock()
	return src, nil
}

// openSources counts acquired sources that were never closed.
func (a *testAcquirer) openSources() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	open := 0
	for _, src := range a.sources {
		if src.IsOpened() {
			open++
		}
	}
	return open
}

type nopDetector struct{}

func (nopDetector) Detect(frame gocv.Mat, req ai.Request) ([]dto.DetectionResult, error) {
	return nil, nil
}

type testEnv struct {
	logger     *logger.Logger
	db         *sqlite.DB
	cameras    *sqlite.CameraRepository
	trafficLog *sqlite.TrafficLogRepository
	stats      *stats.Aggregator
	registry   *stream.Registry
	acquirer   *testAcquirer
	recorder   *trafficlog.Recorder
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()

	l := logger.NewLogger(&config.Config{LogDirectory: filepath.Join(dir, "logs")})
	db, err := sqlite.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}

	env := &testEnv{
		logger:     l,
		db:         db,
		cameras:    sqlite.NewCameraRepository(db),
		trafficLog: sqlite.NewTrafficLogRepository(db),
		stats:      stats.NewAggregator(),
		acquirer:   &testAcquirer{},
	}
	env.registry = stream.NewRegistry(env.acquirer, func() ai.Detector { return nopDetector{} },
		env.stats, nil, l, stream.Options{})
	env.recorder = trafficlog.NewRecorder(env.stats,
		[]trafficlog.Sink{trafficlog.NewRepositorySink(env.trafficLog)}, nil, time.Minute, nil, l)

	t.Cleanup(func() {
		env.registry.StopAll()
		db.Close()
		l.Close()
	})
	return env
}

func (e *testEnv) addCamera(t *testing.T, name, sourceURL string) *model.Camera {
	t.Helper()
	cam := &model.Camera{Name: name, SourceURL: sourceURL, IsActive: true}
	if _, err := e.cameras.Insert(cam); err != nil {
		t.Fatalf("Failed to insert camera: %v", err)
	}
	return cam
}

// mux routes a single pattern so handlers see their path values.
func mux(pattern string, h http.HandlerFunc) *http.ServeMux {
	m := http.NewServeMux()
	m.HandleFunc(pattern, h)
	return m
}
