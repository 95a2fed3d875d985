package handler

import (
	"net/http"

	"trafficcam/internal/logger"
	"trafficcam/internal/repository"
	"trafficcam/internal/service/trafficlog"
)

const defaultTrafficLogLimit = 100

// RecordTrafficHandler records the camera's current snapshot on demand.
func RecordTrafficHandler(recorder *trafficlog.Recorder, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cameraID := cameraKey(r.PathValue("camera_id"))

		recorded, err := recorder.RecordCamera(r.Context(), cameraID)
		if err != nil {
			logger.Error("Failed to record traffic for camera %s: %v", cameraID, err)
			writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to record traffic log")
			return
		}
		if !recorded {
			writeJSON(w, http.StatusOK, map[string]string{
				"status":  "no_data",
				"message": "No traffic data for camera " + cameraID,
			})
			return
		}

		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "success",
			"message": "Traffic logged for camera " + cameraID,
		})
	}
}

// TrafficLogsHandler returns the camera's recorded snapshots, newest first.
func TrafficLogsHandler(logs repository.TrafficLogRepository, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cameraID := cameraKey(r.PathValue("camera_id"))
		limit := atoiDefault(r.URL.Query().Get("limit"), defaultTrafficLogLimit)

		entries, err := logs.GetByCamera(cameraID, limit)
		if err != nil {
			logger.Error("Failed to load traffic logs for camera %s: %v", cameraID, err)
			writeError(w, http.StatusInternalServerError, CodeInternal, "Failed to load traffic logs")
			return
		}
		writeJSON(w, http.StatusOK, entries)
	}
}
