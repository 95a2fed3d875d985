package stream

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"trafficcam/internal/dto"
)

var (
	boxColor  = color.RGBA{R: 255, G: 0, B: 0, A: 0}
	fpsColor  = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	tallColor = color.RGBA{R: 0, G: 255, B: 255, A: 0}
	flowColor = color.RGBA{R: 255, G: 255, B: 0, A: 0}
)

// drawDetections draws each box with its label, track id and confidence.
func drawDetections(mat *gocv.Mat, detections []dto.DetectionResult) error {
	for _, d := range detections {
		rect := image.Rect(d.X, d.Y, d.X+d.Width, d.Y+d.Height)
		if err := gocv.Rectangle(mat, rect, boxColor, 2); err != nil {
			return fmt.Errorf("failed to draw rectangle: %w", err)
		}

		label := fmt.Sprintf("%s (%.2f)", d.Label, d.Confidence)
		if d.TrackID > 0 {
			label = fmt.Sprintf("#%d %s (%.2f)", d.TrackID, d.Label, d.Confidence)
		}
		if err := gocv.PutText(mat, label, image.Pt(d.X, d.Y-5), gocv.FontHersheySimplex, 0.5, boxColor, 1); err != nil {
			return fmt.Errorf("failed to draw text: %w", err)
		}
	}
	return nil
}

// drawStatus writes the fps, unique total and flow lines in the top-left corner.
func drawStatus(mat *gocv.Mat, fps float64, total, flow int) error {
	lines := []struct {
		text string
		c    color.RGBA
	}{
		{fmt.Sprintf("FPS: %d", int(fps)), fpsColor},
		{fmt.Sprintf("Total: %d", total), tallColor},
		{fmt.Sprintf("Flow: %d v/m", flow), flowColor},
	}
	for i, line := range lines {
		pt := image.Pt(10, 30+30*i)
		if err := gocv.PutText(mat, line.text, pt, gocv.FontHersheySimplex, 0.7, line.c, 2); err != nil {
			return fmt.Errorf("failed to draw status: %w", err)
		}
	}
	return nil
}

// encodeJPEG encodes mat at the given quality and returns a Go-owned copy of the bytes.
func encodeJPEG(mat gocv.Mat, quality int) ([]byte, error) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{int(gocv.IMWriteJpegQuality), quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	data := buf.GetBytes()
	if len(data) == 0 {
		return nil, fmt.Errorf("failed to encode frame: empty output")
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
