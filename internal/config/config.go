package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port            int
	DatabasePath    string
	LogDirectory    string
	LogLevel        string
	ModelPath       string
	ConfigPath      string
	CamerasFile     string // optional YAML seed of cameras
	AllowedOrigins  []string
	TrackingEnabled bool

	JPEGQuality       int
	ReadRetryInterval time.Duration
	MaxReadFailures   int
	FrameWaitTimeout  time.Duration // how long a viewer waits for a fresh frame

	TrafficLogInterval     time.Duration
	StatsBroadcastInterval time.Duration
	ShutdownTimeout        time.Duration
	YTDLPPath              string
	SourceResolveTimeout   time.Duration

	KafkaBrokers string
	KafkaTopic   string
}

// Load reads an optional .env file and builds the configuration from the environment.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded, using environment: %v", err)
	}

	return &Config{
		Port:            getEnvAsInt("PORT", 8000),
		DatabasePath:    getEnv("DATABASE_PATH", filepath.Join(".", "data", "traffic.db")),
		LogDirectory:    getEnv("LOG_DIR", filepath.Join(".", "logs")),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		ModelPath:       getEnv("MODEL_PATH", filepath.Join(".", "models", "frozen_inference_graph.pb")),
		ConfigPath:      getEnv("CONFIG_PATH", filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt")),
		CamerasFile:     getEnv("CAMERAS_FILE", ""),
		AllowedOrigins:  getEnvAsList("ALLOWED_ORIGINS", []string{"*"}),
		TrackingEnabled: getEnvAsBool("TRACKING_ENABLED", true),

		JPEGQuality:       getEnvAsInt("JPEG_QUALITY", 95),
		ReadRetryInterval: getEnvAsDuration("READ_RETRY_INTERVAL", 50*time.Millisecond),
		MaxReadFailures:   getEnvAsInt("MAX_READ_FAILURES", 100),
		FrameWaitTimeout:  getEnvAsDuration("FRAME_WAIT_TIMEOUT", time.Second),

		TrafficLogInterval:     getEnvAsDuration("TRAFFIC_LOG_INTERVAL", 30*time.Second),
		StatsBroadcastInterval: getEnvAsDuration("STATS_BROADCAST_INTERVAL", time.Second),
		ShutdownTimeout:        getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		YTDLPPath:              getEnv("YTDLP_PATH", "yt-dlp"),
		SourceResolveTimeout:   getEnvAsDuration("SOURCE_RESOLVE_TIMEOUT", 30*time.Second),

		KafkaBrokers: getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "traffic-logs"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping blanks.
func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
