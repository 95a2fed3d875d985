package handler

import (
	"net/http"

	"trafficcam/internal/service/stats"
)

// StatsHandler returns the camera's current snapshot. Unknown cameras get zeros.
func StatsHandler(aggregator *stats.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := aggregator.Snapshot(cameraKey(r.PathValue("camera_id")))
		writeJSON(w, http.StatusOK, snapshot)
	}
}

// AllStatsHandler returns every camera's snapshot keyed by camera id.
func AllStatsHandler(aggregator *stats.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, aggregator.All())
	}
}
