package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	_ "github.com/lib/pq" // PostgreSQL driver

	feedscan "github.com/zombar/feedscan"
	"github.com/zombar/feedscan/api"
	"github.com/zombar/feedscan/classifier"
	"github.com/zombar/feedscan/db"
	"github.com/zombar/feedscan/notify"
	"github.com/zombar/feedscan/snapshot"
	"github.com/zombar/feedscan/storage"
)

// envConfig is the full environment surface of the service. Database and
// broker settings are optional; leaving them unset selects the file-backed
// store and disables match events.
type envConfig struct {
	Port string `env:"PORT" envDefault:"8080"`

	AgentURL           string `env:"AGENT_URL"            envDefault:"http://localhost:8750"`
	ClassifierURL      string `env:"CLASSIFIER_URL"       envDefault:"http://localhost:8790"`
	ClassifierModelURL string `env:"CLASSIFIER_MODEL_URL"`
	ClassifierAssets   string `env:"CLASSIFIER_ASSETS_URL"`

	ScanIntervalMs      int     `env:"SCAN_INTERVAL_MS"     envDefault:"3500"`
	TargetCategory      string  `env:"TARGET_CATEGORY"      envDefault:"female"`
	ConfidenceThreshold float64 `env:"CONFIDENCE_THRESHOLD" envDefault:"0.7"`

	DBHost     string `env:"DB_HOST"`
	DBPort     string `env:"DB_PORT"     envDefault:"5432"`
	DBUser     string `env:"DB_USER"     envDefault:"feedscan"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"feedscan_dev_pass"`
	DBName     string `env:"DB_NAME"     envDefault:"feedscan"`

	StorageBasePath string `env:"STORAGE_BASE_PATH" envDefault:"./storage"`

	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"feedscan.matches"`

	S3Endpoint        string `env:"S3_ENDPOINT"`
	S3Region          string `env:"S3_REGION"`
	S3Bucket          string `env:"S3_BUCKET"`
	S3AccessKeyID     string `env:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY"`
	S3UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" envDefault:"false"`
}

func main() {
	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("feedscan service initializing", "version", "1.0.0")

	cfg := envConfig{}
	if err := env.Parse(&cfg); err != nil {
		logger.Error("failed to parse environment", "error", err)
		os.Exit(1)
	}

	// Command-line flags (override environment variables)
	port := flag.String("port", cfg.Port, "Server port")
	agentURL := flag.String("agent-url", cfg.AgentURL, "Snapshot agent base URL")
	classifierURL := flag.String("classifier-url", cfg.ClassifierURL, "Classifier service base URL")
	targetCategory := flag.String("target-category", cfg.TargetCategory, "Detection category that counts as a match")
	confidenceThreshold := flag.Float64("confidence-threshold", cfg.ConfidenceThreshold, "Minimum detection confidence (0.0-1.0)")
	scanIntervalMs := flag.Int("scan-interval-ms", cfg.ScanIntervalMs, "Delay between scan passes in milliseconds")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	flag.Parse()

	if *confidenceThreshold <= 0 || *confidenceThreshold > 1 {
		logger.Warn("confidence threshold out of range, using default", "provided", *confidenceThreshold, "default", 0.7)
		*confidenceThreshold = 0.7
	}

	// Snapshot agent client
	source := snapshot.NewClient(snapshot.Config{BaseURL: *agentURL})

	// Classifier client
	detector := classifier.NewClient(classifier.Config{
		BaseURL:   *classifierURL,
		ModelURL:  cfg.ClassifierModelURL,
		AssetsURL: cfg.ClassifierAssets,
	})

	// Thumbnail and export storage
	thumbs, err := storage.New(storage.Config{BasePath: cfg.StorageBasePath})
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}

	// Match list store: PostgreSQL when configured, single-file otherwise
	var store feedscan.MatchStore
	var apiStore api.MatchStore
	if cfg.DBHost != "" {
		dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
		pgStore, err := db.New(db.Config{DSN: dsn})
		if err != nil {
			logger.Error("failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer pgStore.Close()
		store, apiStore = pgStore, pgStore
		logger.Info("using PostgreSQL match store", "host", cfg.DBHost, "port", cfg.DBPort, "database", cfg.DBName)
	} else {
		fileStore, err := storage.NewFileStore(cfg.StorageBasePath + "/matches.json")
		if err != nil {
			logger.Error("failed to initialize file store", "error", err)
			os.Exit(1)
		}
		store, apiStore = fileStore, fileStore
		logger.Info("DB_HOST not set, using file-backed match store", "path", cfg.StorageBasePath+"/matches.json")
	}

	// Optional match event publisher
	var notifier feedscan.Notifier
	if cfg.AMQPURL != "" {
		publisher, err := notify.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			logger.Error("failed to connect to broker", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		notifier = publisher
		logger.Info("match events enabled", "exchange", cfg.AMQPExchange)
	}

	// Optional S3 export uploads
	var uploader *storage.S3Storage
	if cfg.S3Bucket != "" {
		uploader, err = storage.NewS3Storage(context.Background(), storage.S3Config{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
		if err != nil {
			logger.Error("failed to initialize S3 storage", "error", err)
			os.Exit(1)
		}
		logger.Info("export uploads enabled", "bucket", cfg.S3Bucket)
	}

	scanConfig := feedscan.DefaultConfig()
	scanConfig.ScanInterval = time.Duration(*scanIntervalMs) * time.Millisecond
	scanConfig.TargetCategory = *targetCategory
	scanConfig.ConfidenceThreshold = *confidenceThreshold

	scanner := feedscan.New(scanConfig, source, detector, store, thumbs, notifier)

	server := api.NewServer(api.Config{
		Addr:        ":" + *port,
		CORSEnabled: !*disableCORS,
	}, scanner, apiStore, thumbs, uploader)

	// Start server in a goroutine
	go func() {
		logger.Info("feedscan service starting",
			"port", *port,
			"agent_url", *agentURL,
			"classifier_url", *classifierURL,
			"target_category", *targetCategory,
			"confidence_threshold", *confidenceThreshold,
			"scan_interval_ms", *scanIntervalMs,
			"storage_path", cfg.StorageBasePath,
		)

		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logger.Info("shutting down gracefully")
	scanner.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
