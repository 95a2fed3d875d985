package ai

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"trafficcam/internal/config"
	"trafficcam/internal/dto"
	"trafficcam/internal/logger"
)

// ErrNetworkNotReady is returned by Detect when the model could not be loaded.
var ErrNetworkNotReady = errors.New("detection network not initialized")

// Request narrows a detection pass to a set of labels and a minimum confidence.
// An empty Classes list accepts every label.
type Request struct {
	Classes       []string
	MinConfidence float64
}

func (r Request) accepts(label string, confidence float64) bool {
	if confidence < r.MinConfidence {
		return false
	}
	if len(r.Classes) == 0 {
		return true
	}
	for _, c := range r.Classes {
		if c == label {
			return true
		}
	}
	return false
}

// Detector runs object detection on a decoded frame.
type Detector interface {
	Detect(frame gocv.Mat, req Request) ([]dto.DetectionResult, error)
}

// DetectorService wraps an SSD MobileNet COCO network. The network is shared
// between pipelines, so forward passes are serialized.
type DetectorService struct {
	net        gocv.Net
	ready      bool
	mu         sync.Mutex
	modelPath  string
	configPath string
	logger     *logger.Logger
}

// NewDetectorService creates a detector with model/config paths and a logger.
// A missing model is logged and every Detect call then fails with ErrNetworkNotReady.
func NewDetectorService(config *config.Config, logger *logger.Logger) *DetectorService {
	service := &DetectorService{
		modelPath:  config.ModelPath,
		configPath: config.ConfigPath,
		logger:     logger,
	}

	if err := service.initializeNet(); err != nil {
		service.logger.Warning("Could not initialize detection network: %v", err)
	}

	return service
}

func (s *DetectorService) initializeNet() error {
	if _, err := os.Stat(s.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", s.modelPath)
	}
	if _, err := os.Stat(s.configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", s.configPath)
	}

	net := gocv.ReadNet(s.modelPath, s.configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network")
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	s.net = net
	s.ready = true
	s.logger.Info("Detection network initialized from %s", s.modelPath)
	return nil
}

// Ready reports whether the network was loaded.
func (s *DetectorService) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Detect runs the network on frame and returns detections accepted by req.
func (s *DetectorService) Detect(frame gocv.Mat, req Request) ([]dto.DetectionResult, error) {
	if frame.Empty() {
		return nil, fmt.Errorf("frame is empty")
	}

	// Blob parameters match the SSD COCO input
	blob := gocv.BlobFromImage(frame, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	s.mu.Lock()
	if !s.ready {
		s.mu.Unlock()
		return nil, ErrNetworkNotReady
	}
	s.net.SetInput(blob, "")
	output := s.net.Forward("")
	s.mu.Unlock()
	defer output.Close()

	if output.Total()%7 != 0 {
		return nil, fmt.Errorf("unexpected network output size %d", output.Total())
	}

	cols := float32(frame.Cols())
	rows := float32(frame.Rows())

	// Each row: [batch_id, class_id, confidence, x1, y1, x2, y2], coordinates normalized
	detections := output.Reshape(1, output.Total()/7)
	defer detections.Close()

	results := make([]dto.DetectionResult, 0)
	for i := 0; i < detections.Rows(); i++ {
		confidence := float64(detections.GetFloatAt(i, 2))
		label, known := classLabel(int(detections.GetFloatAt(i, 1)))
		if !known || !req.accepts(label, confidence) {
			continue
		}

		x1 := int(detections.GetFloatAt(i, 3) * cols)
		y1 := int(detections.GetFloatAt(i, 4) * rows)
		x2 := int(detections.GetFloatAt(i, 5) * cols)
		y2 := int(detections.GetFloatAt(i, 6) * rows)

		results = append(results, dto.DetectionResult{
			Label:      label,
			Confidence: confidence,
			X:          x1,
			Y:          y1,
			Width:      x2 - x1,
			Height:     y2 - y1,
		})
	}

	return results, nil
}

// Close releases the network.
func (s *DetectorService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return nil
	}
	s.ready = false
	return s.net.Close()
}

// cocoLabels maps SSD COCO class ids to labels.
var cocoLabels = map[int]string{
	1:  "person",
	2:  "bicycle",
	3:  "car",
	4:  "motorcycle",
	6:  "bus",
	8:  "truck",
	10: "traffic light",
	13: "stop sign",
}

func classLabel(classID int) (string, bool) {
	label, ok := cocoLabels[classID]
	return label, ok
}
