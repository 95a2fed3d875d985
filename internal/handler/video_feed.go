package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"trafficcam/internal/logger"
	"trafficcam/internal/repository"
	"trafficcam/internal/service/metrics"
	"trafficcam/internal/service/source"
	"trafficcam/internal/service/stream"
)

const partHeader = "--frame\r\nContent-Type: image/jpeg\r\n\r\n"

// VideoFeedHandler streams a camera's annotated frames as multipart MJPEG,
// starting the camera's pipeline on first use.
func VideoFeedHandler(cameras repository.CameraRepository, registry *stream.Registry, frameWait time.Duration,
	m *metrics.Metrics, logger *logger.Logger) http.HandlerFunc {
	if frameWait <= 0 {
		frameWait = time.Second
	}

	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseCameraID(r.PathValue("camera_id"))
		if !ok {
			writeError(w, http.StatusNotFound, CodeCameraNotFound, "Camera not found")
			return
		}

		cam, err := cameras.GetByID(id)
		if err != nil {
			logger.Error("Failed to load camera %d: %v", id, err)
			writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to load camera")
			return
		}
		if cam == nil {
			writeError(w, http.StatusNotFound, CodeCameraNotFound, "Camera not found")
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}

		key := strconv.FormatInt(cam.ID, 10)
		pipeline, err := registry.GetOrStart(r.Context(), key, cam.SourceURL)
		if err != nil {
			switch {
			case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
				return
			case errors.Is(err, stream.ErrCameraRemoved):
				writeError(w, http.StatusNotFound, CodeCameraNotFound, "Camera not found")
			case errors.Is(err, source.ErrSourceUnavailable), errors.Is(err, stream.ErrPipelineStopped):
				writeError(w, http.StatusServiceUnavailable, CodeSourceUnavailable, "Video source is unavailable")
			default:
				logger.Error("Failed to start pipeline for camera %s: %v", key, err)
				writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to start stream")
			}
			return
		}

		// The camera may have been deleted while its source was opening.
		if current, err := cameras.GetByID(id); err == nil && current == nil {
			registry.Discard(key, pipeline)
			writeError(w, http.StatusNotFound, CodeCameraNotFound, "Camera not found")
			return
		}

		w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		m.ViewerConnected()
		defer m.ViewerDisconnected()
		logger.Debug("Viewer attached to camera %s (session %s)", key, pipeline.SessionID())

		streamFrames(r.Context(), w, flusher, pipeline, frameWait)
		logger.Debug("Viewer detached from camera %s", key)
	}
}

// streamFrames writes each new frame once until the client leaves or the pipeline stops.
func streamFrames(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, pipeline *stream.Pipeline, wait time.Duration) {
	publisher := pipeline.Publisher()
	var lastSeq uint64

	for {
		if ctx.Err() != nil {
			return
		}

		frame, ok := publisher.Consume(wait)
		if !ok {
			if publisher.Closed() || !pipeline.Running() {
				return
			}
			continue
		}
		if frame.Seq == lastSeq {
			continue
		}
		lastSeq = frame.Seq

		if _, err := w.Write([]byte(partHeader)); err != nil {
			return
		}
		if _, err := w.Write(frame.Data); err != nil {
			return
		}
		if _, err := w.Write([]byte("\r\n")); err != nil {
			return
		}
		flusher.Flush()
	}
}
