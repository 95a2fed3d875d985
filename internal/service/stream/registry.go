package stream

import (
	"context"
	"errors"
	"sort"
	"sync"

	"trafficcam/internal/dto"
	"trafficcam/internal/logger"
	"trafficcam/internal/service/ai"
	"trafficcam/internal/service/metrics"
	"trafficcam/internal/service/source"
	"trafficcam/internal/service/stats"
)

var (
	// ErrPipelineStopped is returned when a pipeline was stopped while it was starting.
	ErrPipelineStopped = errors.New("pipeline stopped")
	// ErrCameraRemoved is returned by GetOrStart while the camera is being removed.
	ErrCameraRemoved = errors.New("camera removed")
)

// SourceAcquirer opens camera sources.
type SourceAcquirer interface {
	Acquire(ctx context.Context, locator string) (source.Source, error)
}

// DetectorFactory returns the detector a new pipeline should use. It is
// called once per pipeline so stateful wrappers (trackers) are not shared.
type DetectorFactory func() ai.Detector

// entry is a registry slot. ready is closed once the start attempt finished;
// pipeline and err are immutable afterwards.
type entry struct {
	ready    chan struct{}
	pipeline *Pipeline
	err      error
	retry    bool // the starter's own context ended, the failure says nothing about the source
}

// Registry owns the running pipelines, at most one per camera.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry

	acquirer   SourceAcquirer
	detectors  DetectorFactory
	aggregator *stats.Aggregator
	metrics    *metrics.Metrics
	logger     *logger.Logger
	opts       Options
}

// NewRegistry creates an empty registry.
func NewRegistry(acquirer SourceAcquirer, detectors DetectorFactory, aggregator *stats.Aggregator,
	m *metrics.Metrics, logger *logger.Logger, opts Options) *Registry {
	return &Registry{
		entries:    make(map[string]*entry),
		acquirer:   acquirer,
		detectors:  detectors,
		aggregator: aggregator,
		metrics:    m,
		logger:     logger,
		opts:       opts,
	}
}

// GetOrStart returns the camera's running pipeline, starting one from locator
// if there is none. Concurrent callers for the same camera share a single
// acquisition. A pipeline that stopped on its own is replaced. Acquisition
// failures wrap source.ErrSourceUnavailable and leave nothing registered.
func (r *Registry) GetOrStart(ctx context.Context, cameraID, locator string) (*Pipeline, error) {
	for {
		r.mu.Lock()
		e, ok := r.entries[cameraID]
		if !ok {
			e = &entry{ready: make(chan struct{})}
			r.entries[cameraID] = e
			r.mu.Unlock()
			return r.start(ctx, cameraID, locator, e)
		}
		r.mu.Unlock()

		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if e.err != nil {
			if e.retry {
				continue
			}
			return nil, e.err
		}
		if e.pipeline.Running() {
			return e.pipeline, nil
		}

		r.mu.Lock()
		if r.entries[cameraID] == e {
			delete(r.entries, cameraID)
			r.logger.Info("Replacing stopped pipeline for camera %s", cameraID)
		}
		r.mu.Unlock()
	}
}

func (r *Registry) start(ctx context.Context, cameraID, locator string, e *entry) (*Pipeline, error) {
	src, err := r.acquirer.Acquire(ctx, locator)
	if err != nil {
		r.metrics.PipelineStarted(false)
		r.logger.Error("Failed to open source for camera %s: %v", cameraID, err)

		r.mu.Lock()
		if r.entries[cameraID] == e {
			delete(r.entries, cameraID)
		}
		r.mu.Unlock()

		e.err = err
		e.retry = ctx.Err() != nil
		close(e.ready)
		return nil, err
	}

	p := NewPipeline(cameraID, src, r.detectors(), r.aggregator, r.metrics, r.logger, r.opts)
	p.Start()
	r.metrics.PipelineStarted(true)
	go func() {
		<-p.Done()
		r.metrics.PipelineStopped(cameraID)
	}()

	e.pipeline = p
	close(e.ready)

	// Stop may have removed the entry while the source was opening.
	r.mu.Lock()
	current := r.entries[cameraID]
	r.mu.Unlock()
	if current != e {
		p.Stop()
		return nil, ErrPipelineStopped
	}
	return p, nil
}

// Get returns the registered pipeline without starting anything.
func (r *Registry) Get(cameraID string) (*Pipeline, bool) {
	r.mu.Lock()
	e, ok := r.entries[cameraID]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}

	select {
	case <-e.ready:
		if e.pipeline == nil {
			return nil, false
		}
		return e.pipeline, true
	default:
		return nil, false
	}
}

// Stop stops and unregisters the camera's pipeline and drops its stats.
// Unknown cameras are a no-op.
func (r *Registry) Stop(cameraID string) {
	r.mu.Lock()
	e, ok := r.entries[cameraID]
	if ok {
		delete(r.entries, cameraID)
	}
	r.mu.Unlock()

	if ok {
		<-e.ready
		if e.pipeline != nil {
			e.pipeline.Stop()
		}
	}
	r.aggregator.Remove(cameraID)
}

// Remove stops the camera's pipeline and runs deleteRecord while the camera
// is blocked, so no viewer can start a new pipeline until the record is gone.
// GetOrStart calls made meanwhile fail with ErrCameraRemoved.
func (r *Registry) Remove(cameraID string, deleteRecord func() error) error {
	tomb := &entry{ready: make(chan struct{}), err: ErrCameraRemoved}
	close(tomb.ready)

	r.mu.Lock()
	old, ok := r.entries[cameraID]
	r.entries[cameraID] = tomb
	r.mu.Unlock()

	if ok {
		<-old.ready
		if old.pipeline != nil {
			old.pipeline.Stop()
		}
	}
	r.aggregator.Remove(cameraID)

	err := deleteRecord()

	r.mu.Lock()
	if r.entries[cameraID] == tomb {
		delete(r.entries, cameraID)
	}
	r.mu.Unlock()
	return err
}

// Discard stops p if it is still the camera's registered pipeline.
func (r *Registry) Discard(cameraID string, p *Pipeline) {
	owned := false
	r.mu.Lock()
	if e, ok := r.entries[cameraID]; ok {
		select {
		case <-e.ready:
			if e.pipeline == p {
				delete(r.entries, cameraID)
				owned = true
			}
		default:
		}
	}
	r.mu.Unlock()

	p.Stop()
	if owned {
		r.aggregator.Remove(cameraID)
	}
}

// StopAll stops every pipeline and waits until all sources are released.
func (r *Registry) StopAll() {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			r.Stop(id)
		}(id)
	}
	wg.Wait()
	r.logger.Info("Stopped %d pipelines", len(ids))
}

// List describes every registered pipeline, ordered by camera id.
func (r *Registry) List() []dto.StreamInfo {
	r.mu.Lock()
	pipelines := make([]*Pipeline, 0, len(r.entries))
	for _, e := range r.entries {
		select {
		case <-e.ready:
			if e.pipeline != nil {
				pipelines = append(pipelines, e.pipeline)
			}
		default:
		}
	}
	r.mu.Unlock()

	infos := make([]dto.StreamInfo, 0, len(pipelines))
	for _, p := range pipelines {
		infos = append(infos, p.Info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].CameraID < infos[j].CameraID })
	return infos
}
