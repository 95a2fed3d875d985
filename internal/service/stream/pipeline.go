package stream

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"trafficcam/internal/dto"
	"trafficcam/internal/logger"
	"trafficcam/internal/service/ai"
	"trafficcam/internal/service/metrics"
	"trafficcam/internal/service/source"
	"trafficcam/internal/service/stats"
)

// State is the lifecycle stage of a Pipeline.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Options tune a pipeline. Zero values fall back to the defaults below.
type Options struct {
	Classes           []string
	JPEGQuality       int
	ReadRetryInterval time.Duration
	MaxReadFailures   int
	Now               func() time.Time
}

// MinConfidence is the fixed score below which detections are dropped.
const MinConfidence = 0.3

const (
	DefaultJPEGQuality       = 95
	DefaultReadRetryInterval = 50 * time.Millisecond
	DefaultMaxReadFailures   = 100
)

func (o Options) withDefaults() Options {
	if len(o.Classes) == 0 {
		o.Classes = stats.VehicleClasses
	}
	if o.JPEGQuality <= 0 || o.JPEGQuality > 100 {
		o.JPEGQuality = DefaultJPEGQuality
	}
	if o.ReadRetryInterval <= 0 {
		o.ReadRetryInterval = DefaultReadRetryInterval
	}
	if o.MaxReadFailures <= 0 {
		o.MaxReadFailures = DefaultMaxReadFailures
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Pipeline reads, detects, tallies, annotates and publishes the frames of one
// camera on its own goroutine. Frames of a camera are processed strictly in order.
type Pipeline struct {
	cameraID  string
	sessionID string

	source    source.Source
	detector  ai.Detector
	stats     *stats.Aggregator
	publisher *Publisher
	metrics   *metrics.Metrics
	logger    *logger.Logger
	opts      Options

	tally     *stats.Tally
	state     atomic.Int32
	fps       atomic.Uint64 // math.Float64bits
	startedAt time.Time

	stopCh    chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
	startOnce sync.Once
	started   atomic.Bool
	releaseMu sync.Mutex
	released  bool
}

// NewPipeline creates a pipeline in the starting state around an opened source.
func NewPipeline(cameraID string, src source.Source, detector ai.Detector, aggregator *stats.Aggregator,
	m *metrics.Metrics, logger *logger.Logger, opts Options) *Pipeline {
	opts = opts.withDefaults()
	now := opts.Now()

	return &Pipeline{
		cameraID:  cameraID,
		sessionID: uuid.NewString(),
		source:    src,
		detector:  detector,
		stats:     aggregator,
		publisher: NewPublisher(),
		metrics:   m,
		logger:    logger,
		opts:      opts,
		tally:     stats.NewTally(now),
		startedAt: now,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start moves the pipeline to running and launches its loop. Calling Start
// more than once, or after Stop, has no effect.
func (p *Pipeline) Start() {
	p.startOnce.Do(func() {
		if !p.state.CompareAndSwap(int32(StateStarting), int32(StateRunning)) {
			return
		}
		p.started.Store(true)
		p.logger.Info("Pipeline %s started for camera %s", p.sessionID, p.cameraID)
		go p.run()
	})
}

// Stop asks the loop to exit, wakes blocked consumers and waits until the
// source is released. Safe to call repeatedly and from any goroutine.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.state.Store(int32(StateStopped))
		close(p.stopCh)
		p.publisher.Close()
	})

	if p.started.Load() {
		<-p.done
		return
	}
	p.release()
}

// Done is closed when the loop has exited and the source has been released.
func (p *Pipeline) Done() <-chan struct{} {
	return p.done
}

func (p *Pipeline) CameraID() string      { return p.cameraID }
func (p *Pipeline) SessionID() string     { return p.sessionID }
func (p *Pipeline) Publisher() *Publisher { return p.publisher }
func (p *Pipeline) StartedAt() time.Time  { return p.startedAt }

// State returns the current lifecycle stage.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Running reports whether the loop should keep going.
func (p *Pipeline) Running() bool {
	return p.State() == StateRunning
}

// FPS returns the processing rate measured between the last two encodes.
func (p *Pipeline) FPS() float64 {
	return math.Float64frombits(p.fps.Load())
}

// Info describes the pipeline for listings.
func (p *Pipeline) Info() dto.StreamInfo {
	return dto.StreamInfo{
		CameraID:  p.cameraID,
		SessionID: p.sessionID,
		State:     p.State().String(),
		FPS:       p.FPS(),
		StartedAt: p.startedAt,
	}
}

func (p *Pipeline) run() {
	defer close(p.done)
	defer p.release()
	defer p.publisher.Close()
	defer p.state.Store(int32(StateStopped))

	frame := gocv.NewMat()
	defer frame.Close()

	req := ai.Request{Classes: p.opts.Classes, MinConfidence: MinConfidence}
	var lastEncode time.Time
	readFailures := 0
	detectFailures := 0

	for p.Running() {
		if ok := p.source.Read(&frame); !ok || frame.Empty() {
			if !p.source.IsOpened() {
				p.logger.Warning("Source for camera %s closed, stopping pipeline", p.cameraID)
				return
			}
			readFailures++
			p.metrics.ReadFailed(p.cameraID)
			if readFailures >= p.opts.MaxReadFailures {
				p.logger.Warning("Camera %s: %d consecutive read failures, stopping pipeline", p.cameraID, readFailures)
				return
			}
			if !p.wait(p.opts.ReadRetryInterval) {
				return
			}
			continue
		}
		readFailures = 0

		detections, err := p.detector.Detect(frame, req)
		if err != nil {
			detectFailures++
			p.metrics.DetectionFailed(p.cameraID)
			if detectFailures == 1 {
				p.logger.Warning("Detection failed for camera %s: %v", p.cameraID, err)
			} else {
				p.logger.Debug("Detection failed for camera %s (%d in a row): %v", p.cameraID, detectFailures, err)
			}
			continue
		}
		detectFailures = 0

		snapshot := p.tally.Observe(detections, p.opts.Now())
		p.stats.Publish(p.cameraID, snapshot)

		if err := drawDetections(&frame, detections); err != nil {
			p.logger.Warning("Camera %s: %v", p.cameraID, err)
		}
		if err := drawStatus(&frame, p.FPS(), snapshot.TotalVehicles, snapshot.FlowRate); err != nil {
			p.logger.Warning("Camera %s: %v", p.cameraID, err)
		}

		data, err := encodeJPEG(frame, p.opts.JPEGQuality)
		if err != nil {
			p.metrics.EncodeFailed(p.cameraID)
			p.logger.Error("Camera %s: %v", p.cameraID, err)
			continue
		}
		p.publisher.Publish(data)
		p.metrics.FrameProcessed(p.cameraID)

		now := p.opts.Now()
		if !lastEncode.IsZero() {
			p.setFPS(rate(now.Sub(lastEncode)))
		}
		lastEncode = now
	}
}

// wait sleeps for d unless the pipeline is stopped first.
func (p *Pipeline) wait(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-p.stopCh:
		return false
	case <-timer.C:
		return true
	}
}

func (p *Pipeline) setFPS(fps float64) {
	p.fps.Store(math.Float64bits(fps))
	p.metrics.SetFPS(p.cameraID, fps)
}

// rate converts a frame interval into frames per second, 0 for non-positive intervals.
func rate(delta time.Duration) float64 {
	if delta <= 0 {
		return 0
	}
	return 1 / delta.Seconds()
}

func (p *Pipeline) release() {
	p.releaseMu.Lock()
	defer p.releaseMu.Unlock()
	if p.released {
		return
	}
	p.released = true

	if err := p.source.Close(); err != nil {
		p.logger.Warning("Failed to release source for camera %s: %v", p.cameraID, err)
	}
	p.logger.Info("Pipeline %s for camera %s stopped", p.sessionID, p.cameraID)
}
