package route

import (
	"net/http"
	"time"

	"trafficcam/internal/config"
	"trafficcam/internal/handler"
	"trafficcam/internal/logger"
	"trafficcam/internal/middleware"
	"trafficcam/internal/repository"
	"trafficcam/internal/service/metrics"
	"trafficcam/internal/service/stats"
	"trafficcam/internal/service/stream"
	"trafficcam/internal/service/trafficlog"
	"trafficcam/internal/service/websocket"
)

// Deps are the services the HTTP layer talks to.
type Deps struct {
	Config     *config.Config
	Logger     *logger.Logger
	Cameras    repository.CameraRepository
	TrafficLog repository.TrafficLogRepository
	Registry   *stream.Registry
	Stats      *stats.Aggregator
	Recorder   *trafficlog.Recorder
	Hub        *websocket.HubService
	Metrics    *metrics.Metrics
	Started    time.Time
}

// SetupRoutes registers every endpoint and wraps the mux with CORS.
func SetupRoutes(d Deps) http.Handler {
	mux := http.NewServeMux()

	// Streaming and stats
	mux.HandleFunc("GET /video_feed/{camera_id}",
		handler.VideoFeedHandler(d.Cameras, d.Registry, d.Config.FrameWaitTimeout, d.Metrics, d.Logger))
	mux.HandleFunc("GET /stats", handler.AllStatsHandler(d.Stats))
	mux.HandleFunc("GET /stats/{camera_id}", handler.StatsHandler(d.Stats))
	mux.HandleFunc("GET /streams", handler.StreamsHandler(d.Registry))

	// Traffic logs
	mux.HandleFunc("POST /traffic/log/{camera_id}", handler.RecordTrafficHandler(d.Recorder, d.Logger))
	mux.HandleFunc("GET /traffic/logs/{camera_id}", handler.TrafficLogsHandler(d.TrafficLog, d.Logger))

	// Camera registry
	mux.HandleFunc("POST /cameras/", handler.CreateCameraHandler(d.Cameras, d.Logger))
	mux.HandleFunc("GET /cameras/", handler.ListCamerasHandler(d.Cameras, d.Logger))
	mux.HandleFunc("GET /cameras/{id}", handler.GetCameraHandler(d.Cameras, d.Logger))
	mux.HandleFunc("DELETE /cameras/{id}", handler.DeleteCameraHandler(d.Cameras, d.Registry, d.Logger))

	// Dashboard push
	mux.HandleFunc("GET /ws/stats",
		handler.StatsWebsocketHandler(d.Hub, handler.NewUpgrader(d.Config.AllowedOrigins), handler.DefaultPongWait, d.Logger))

	// Log endpoints
	mux.HandleFunc("GET /logs/{level}", handler.ShowLogsHandler(d.Logger))
	mux.HandleFunc("POST /logs/{level}/clear", handler.ClearLogsHandler(d.Logger))

	// Operations
	mux.HandleFunc("GET /health", handler.HealthHandler(d.Registry, d.Started))
	mux.Handle("GET /metrics", d.Metrics.Handler())

	return middleware.CORSMiddleware(d.Config.AllowedOrigins, mux)
}
