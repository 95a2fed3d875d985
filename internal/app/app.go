package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"trafficcam/internal/config"
	"trafficcam/internal/logger"
	"trafficcam/internal/repository/sqlite"
	"trafficcam/internal/route"
	"trafficcam/internal/service/ai"
	"trafficcam/internal/service/metrics"
	"trafficcam/internal/service/source"
	"trafficcam/internal/service/stats"
	"trafficcam/internal/service/stream"
	"trafficcam/internal/service/trafficlog"
	"trafficcam/internal/service/websocket"
)

type App struct {
	config     *config.Config
	logger     *logger.Logger
	db         *sqlite.DB
	detector   *ai.DetectorService
	registry   *stream.Registry
	aggregator *stats.Aggregator
	recorder   *trafficlog.Recorder
	hub        *websocket.HubService
	server     *http.Server
}

// NewApp loads the configuration and wires every service.
func NewApp() (*App, error) {
	cfg := config.Load()
	log := logger.NewLogger(cfg)

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Close()
		return nil, err
	}
	cameraRepo := sqlite.NewCameraRepository(db)
	trafficRepo := sqlite.NewTrafficLogRepository(db)

	if cfg.CamerasFile != "" {
		seeds, err := config.LoadCameraSeeds(cfg.CamerasFile)
		if err != nil {
			db.Close()
			log.Close()
			return nil, err
		}
		added, err := SeedCameras(cameraRepo, seeds)
		if err != nil {
			db.Close()
			log.Close()
			return nil, err
		}
		log.Info("Seeded %d cameras from %s", added, cfg.CamerasFile)
	}

	m := metrics.New()
	detector := ai.NewDetectorService(cfg, log)
	detectors := func() ai.Detector {
		if cfg.TrackingEnabled {
			return ai.NewTracker(detector)
		}
		return detector
	}

	acquirer := source.NewAcquirer(source.NewYTDLPResolver(cfg.YTDLPPath, cfg.SourceResolveTimeout), nil, log)
	aggregator := stats.NewAggregator()
	registry := stream.NewRegistry(acquirer, detectors, aggregator, m, log, stream.Options{
		JPEGQuality:       cfg.JPEGQuality,
		ReadRetryInterval: cfg.ReadRetryInterval,
		MaxReadFailures:   cfg.MaxReadFailures,
	})

	sinks := []trafficlog.Sink{trafficlog.NewRepositorySink(trafficRepo)}
	if cfg.KafkaBrokers != "" {
		kafkaSink, err := trafficlog.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			log.Error("Kafka sink disabled: %v", err)
		} else {
			sinks = append(sinks, kafkaSink)
		}
	}
	sessions := func(cameraID string) string {
		if p, ok := registry.Get(cameraID); ok {
			return p.SessionID()
		}
		return ""
	}
	recorder := trafficlog.NewRecorder(aggregator, sinks, sessions, cfg.TrafficLogInterval, m, log)
	recorder.SetActiveCheck(func(cameraID string) bool {
		p, ok := registry.Get(cameraID)
		return ok && p.Running()
	})
	hub := websocket.NewHubService(log)

	router := route.SetupRoutes(route.Deps{
		Config:     cfg,
		Logger:     log,
		Cameras:    cameraRepo,
		TrafficLog: trafficRepo,
		Registry:   registry,
		Stats:      aggregator,
		Recorder:   recorder,
		Hub:        hub,
		Metrics:    m,
		Started:    time.Now(),
	})

	return &App{
		config:     cfg,
		logger:     log,
		db:         db,
		detector:   detector,
		registry:   registry,
		aggregator: aggregator,
		recorder:   recorder,
		hub:        hub,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// Run serves HTTP and the background tasks until SIGINT/SIGTERM, then shuts
// everything down in dependency order.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	background := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}
	background(a.hub.Run)
	background(a.recorder.Run)
	background(func(ctx context.Context) {
		a.hub.PublishStats(ctx, a.aggregator, a.config.StatsBroadcastInterval)
	})

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("Traffic stream server listening on http://localhost:%d", a.config.Port)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutdown signal received")
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
		stop()
	}

	a.shutdown()
	wg.Wait()
	a.close()
	return runErr
}

func (a *App) shutdown() {
	// Stop pipelines first so open MJPEG responses end and Shutdown can drain.
	a.registry.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), a.config.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Warning("HTTP server shutdown: %v", err)
	}
	// A viewer may have started a pipeline while the listener was closing.
	a.registry.StopAll()
}

func (a *App) close() {
	if err := a.recorder.Close(); err != nil {
		a.logger.Error("Failed to close traffic log sinks: %v", err)
	}
	if err := a.detector.Close(); err != nil {
		a.logger.Error("Failed to close detector: %v", err)
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database: %v", err)
	}
	a.logger.Info("Server stopped")
	a.logger.Close()
}
