package dto

// DetectionResult is a single detected object in frame pixel coordinates.
// TrackID is 0 when no persistent identity is available.
type DetectionResult struct {
	Label      string
	Confidence float64
	X          int
	Y          int
	Width      int
	Height     int
	TrackID    int
}
