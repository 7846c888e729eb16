// Worker entry point: consumes queued analysis jobs from Kafka, runs the
// fusion engine, and publishes results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/parcelview/geofusion/internal/application/analysis"
	"github.com/parcelview/geofusion/internal/config"
	"github.com/parcelview/geofusion/internal/infrastructure/database/postgres"
	"github.com/parcelview/geofusion/internal/infrastructure/database/postgres/repositories"
	rediscache "github.com/parcelview/geofusion/internal/infrastructure/database/redis"
	"github.com/parcelview/geofusion/internal/infrastructure/messaging/kafka"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/prometheus"
	"github.com/parcelview/geofusion/internal/infrastructure/storage"
	"github.com/parcelview/geofusion/internal/infrastructure/storage/localfs"
	"github.com/parcelview/geofusion/internal/infrastructure/storage/minio"
)

const defaultConfigPath = "configs/config.yaml"

var version = "dev"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("worker exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("starting geofusion worker",
		logging.String("version", version),
		logging.String("group_id", cfg.Kafka.GroupID),
	)

	conn, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer conn.Close()
	repo := repositories.NewLayerRepository(conn.Pool(), logger)

	redisClient, err := rediscache.NewClient(cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()
	cache := rediscache.NewCache(redisClient, logger,
		rediscache.WithPrefix(cfg.Redis.KeyPrefix),
		rediscache.WithDefaultTTL(cfg.Redis.DefaultTTL),
	)

	store, err := newDatasetStore(cfg, logger)
	if err != nil {
		return err
	}

	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace: "geofusion",
		Subsystem: "worker",
	}, logger)
	if err != nil {
		return err
	}
	appMetrics := prometheus.NewAppMetrics(collector)

	producer, err := kafka.NewProducer(cfg.Kafka, logger)
	if err != nil {
		return err
	}
	defer func() { _ = producer.Close() }()

	service := analysis.NewService(repo, store, cache, appMetrics, cfg.Fusion, logger)
	jobService := analysis.NewJobService(service, producer, cache, appMetrics, cfg.Fusion.CacheTTL, logger)

	// One group consumer per worker slot; the broker balances partitions
	// across them.
	concurrency := cfg.Worker.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	consumers := make([]*kafka.Consumer, 0, concurrency)
	for i := 0; i < concurrency; i++ {
		consumer, err := kafka.NewConsumer(cfg.Kafka, cfg.Worker, kafka.TopicAnalysisJobs, producer, logger)
		if err != nil {
			return err
		}
		if err := consumer.Start(ctx, jobService.HandleJob); err != nil {
			return err
		}
		consumers = append(consumers, consumer)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutdown signal received", logging.String("signal", sig.String()))

	var closeErr error
	for _, consumer := range consumers {
		if err := consumer.Close(); err != nil {
			closeErr = err
		}
	}
	return closeErr
}

func newDatasetStore(cfg *config.Config, logger logging.Logger) (storage.DatasetStore, error) {
	if cfg.Storage.Backend == "local" {
		return localfs.NewStore(cfg.Storage.LocalDir, logger)
	}
	return minio.NewStore(cfg.MinIO, logger)
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}

func newLogger(cfg config.LogConfig) (logging.Logger, error) {
	format := "json"
	if cfg.Format == "text" {
		format = "console"
	}
	output := cfg.Output
	if output == "" {
		output = "stdout"
	}
	return logging.NewLogger(logging.Config{
		Level:       cfg.Level,
		Format:      format,
		OutputPaths: []string{output},
	})
}
