package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors of the server. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	framesProcessed   *prometheus.CounterVec
	readFailures      *prometheus.CounterVec
	detectionFailures *prometheus.CounterVec
	encodeFailures    *prometheus.CounterVec
	fps               *prometheus.GaugeVec
	pipelineStarts    *prometheus.CounterVec
	activePipelines   prometheus.Gauge
	activeViewers     prometheus.Gauge
	trafficLogs       *prometheus.CounterVec
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficcam_frames_processed_total",
			Help: "Frames detected, annotated and published",
		}, []string{"camera"}),
		readFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficcam_read_failures_total",
			Help: "Source reads that returned no frame",
		}, []string{"camera"}),
		detectionFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficcam_detection_failures_total",
			Help: "Frames skipped because detection failed",
		}, []string{"camera"}),
		encodeFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficcam_encode_failures_total",
			Help: "Frames skipped because JPEG encoding failed",
		}, []string{"camera"}),
		fps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "trafficcam_pipeline_fps",
			Help: "Current processing rate per camera",
		}, []string{"camera"}),
		pipelineStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficcam_pipeline_starts_total",
			Help: "Pipeline start attempts by result",
		}, []string{"result"}),
		activePipelines: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trafficcam_active_pipelines",
			Help: "Pipelines currently running",
		}),
		activeViewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "trafficcam_active_viewers",
			Help: "Open video feed connections",
		}),
		trafficLogs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trafficcam_traffic_logs_total",
			Help: "Traffic log writes by sink and result",
		}, []string{"sink", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.framesProcessed,
		m.readFailures,
		m.detectionFailures,
		m.encodeFailures,
		m.fps,
		m.pipelineStarts,
		m.activePipelines,
		m.activeViewers,
		m.trafficLogs,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) FrameProcessed(camera string) {
	if m == nil {
		return
	}
	m.framesProcessed.WithLabelValues(camera).Inc()
}

func (m *Metrics) ReadFailed(camera string) {
	if m == nil {
		return
	}
	m.readFailures.WithLabelValues(camera).Inc()
}

func (m *Metrics) DetectionFailed(camera string) {
	if m == nil {
		return
	}
	m.detectionFailures.WithLabelValues(camera).Inc()
}

func (m *Metrics) EncodeFailed(camera string) {
	if m == nil {
		return
	}
	m.encodeFailures.WithLabelValues(camera).Inc()
}

func (m *Metrics) SetFPS(camera string, fps float64) {
	if m == nil {
		return
	}
	m.fps.WithLabelValues(camera).Set(fps)
}

// PipelineStarted counts a start attempt; ok=false means the source was unavailable.
func (m *Metrics) PipelineStarted(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "unavailable"
	}
	m.pipelineStarts.WithLabelValues(result).Inc()
	if ok {
		m.activePipelines.Inc()
	}
}

// PipelineStopped decrements the active gauge and forgets the camera's fps series.
func (m *Metrics) PipelineStopped(camera string) {
	if m == nil {
		return
	}
	m.activePipelines.Dec()
	m.fps.DeleteLabelValues(camera)
}

func (m *Metrics) ViewerConnected() {
	if m == nil {
		return
	}
	m.activeViewers.Inc()
}

func (m *Metrics) ViewerDisconnected() {
	if m == nil {
		return
	}
	m.activeViewers.Dec()
}

// TrafficLogWritten counts one sink write.
func (m *Metrics) TrafficLogWritten(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.trafficLogs.WithLabelValues(sink, result).Inc()
}
