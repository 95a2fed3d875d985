package ai

import (
	"image"
	"sort"

	"gocv.io/x/gocv"

	"trafficcam/internal/dto"
)

const (
	// DefaultIoUThreshold is the minimum overlap for a detection to continue a track.
	DefaultIoUThreshold = 0.3
	// DefaultMaxMissed is how many frames a track survives without a match.
	DefaultMaxMissed = 15
)

type track struct {
	id     int
	label  string
	box    image.Rectangle
	missed int
}

// Tracker wraps a Detector and assigns persistent track ids by greedy IoU
// matching between consecutive frames. One Tracker serves one frame sequence
// and is not safe for concurrent use.
type Tracker struct {
	detector     Detector
	iouThreshold float64
	maxMissed    int
	nextID       int
	tracks       []*track
}

// NewTracker creates a tracker around detector with the default thresholds.
func NewTracker(detector Detector) *Tracker {
	return &Tracker{
		detector:     detector,
		iouThreshold: DefaultIoUThreshold,
		maxMissed:    DefaultMaxMissed,
		nextID:       1,
	}
}

// Detect runs the wrapped detector and stamps TrackID on every result.
func (t *Tracker) Detect(frame gocv.Mat, req Request) ([]dto.DetectionResult, error) {
	detections, err := t.detector.Detect(frame, req)
	if err != nil {
		return nil, err
	}
	return t.Assign(detections), nil
}

type candidate struct {
	track, detection int
	iou              float64
}

// Assign matches detections against live tracks and returns them with TrackID set.
func (t *Tracker) Assign(detections []dto.DetectionResult) []dto.DetectionResult {
	out := make([]dto.DetectionResult, len(detections))
	copy(out, detections)

	boxes := make([]image.Rectangle, len(out))
	for i, d := range out {
		boxes[i] = image.Rect(d.X, d.Y, d.X+d.Width, d.Y+d.Height)
	}

	var candidates []candidate
	for ti, tr := range t.tracks {
		for di, d := range out {
			if d.Label != tr.label {
				continue
			}
			if iou := IoU(tr.box, boxes[di]); iou >= t.iouThreshold {
				candidates = append(candidates, candidate{track: ti, detection: di, iou: iou})
			}
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].iou > candidates[j].iou })

	trackUsed := make([]bool, len(t.tracks))
	detUsed := make([]bool, len(out))
	for _, c := range candidates {
		if trackUsed[c.track] || detUsed[c.detection] {
			continue
		}
		trackUsed[c.track] = true
		detUsed[c.detection] = true

		tr := t.tracks[c.track]
		tr.box = boxes[c.detection]
		tr.missed = 0
		out[c.detection].TrackID = tr.id
	}

	live := t.tracks[:0]
	for i, tr := range t.tracks {
		if !trackUsed[i] {
			tr.missed++
		}
		if tr.missed <= t.maxMissed {
			live = append(live, tr)
		}
	}
	t.tracks = live

	for di := range out {
		if detUsed[di] {
			continue
		}
		tr := &track{id: t.nextID, label: out[di].Label, box: boxes[di]}
		t.nextID++
		t.tracks = append(t.tracks, tr)
		out[di].TrackID = tr.id
	}

	return out
}

// IoU returns the intersection over union of two rectangles.
func IoU(a, b image.Rectangle) float64 {
	inter := a.Intersect(b)
	if inter.Empty() {
		return 0
	}
	interArea := float64(inter.Dx() * inter.Dy())
	union := float64(a.Dx()*a.Dy()+b.Dx()*b.Dy()) - interArea
	if union <= 0 {
		return 0
	}
	return interArea / union
}
