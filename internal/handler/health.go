package handler

import (
	"net/http"
	"time"

	"trafficcam/internal/service/stream"
)

// HealthHandler reports liveness and the number of running pipelines.
func HealthHandler(registry *stream.Registry, started time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status":         "ok",
			"active_streams": len(registry.List()),
			"uptime_seconds": int(time.Since(started).Seconds()),
		})
	}
}

// StreamsHandler lists the active pipelines.
func StreamsHandler(registry *stream.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, registry.List())
	}
}
