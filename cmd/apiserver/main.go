// API server entry point: wires the catalog, dataset store, cache, broker,
// and fusion engine behind the REST API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

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
	httpserver "github.com/parcelview/geofusion/internal/interfaces/http"
	"github.com/parcelview/geofusion/internal/interfaces/http/handlers"
	"github.com/parcelview/geofusion/internal/interfaces/http/middleware"
)

const defaultConfigPath = "configs/config.yaml"

// Build-time variables injected via ldflags.
var version = "dev"

func main() {
	configPath := flag.String("config", defaultConfigPath, "path to configuration file")
	skipMigrations := flag.Bool("skip-migrations", false, "do not run schema migrations on startup")
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

	if err := run(cfg, logger, *skipMigrations); err != nil {
		logger.Error("apiserver exited with error", logging.Err(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger logging.Logger, skipMigrations bool) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("starting geofusion apiserver",
		logging.String("version", version),
		logging.Int("port", cfg.Server.Port),
		logging.String("storage_backend", cfg.Storage.Backend),
	)

	// Layer catalog.
	conn, err := postgres.NewConnection(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	if !skipMigrations && cfg.Database.MigrationPath != "" {
		if err := postgres.RunMigrations(postgres.BuildDSN(cfg.Database), cfg.Database.MigrationPath); err != nil {
			return err
		}
	}
	repo := repositories.NewLayerRepository(conn.Pool(), logger)

	// Feature cache.
	redisClient, err := rediscache.NewClient(cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer func() { _ = redisClient.Close() }()
	cache := rediscache.NewCache(redisClient, logger,
		rediscache.WithPrefix(cfg.Redis.KeyPrefix),
		rediscache.WithDefaultTTL(cfg.Redis.DefaultTTL),
	)

	// Dataset store.
	store, localStore, err := newDatasetStore(cfg, logger)
	if err != nil {
		return err
	}
	if localStore != nil {
		defer func() { _ = localStore.Close() }()
	}

	// Metrics.
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            "geofusion",
		EnableProcessMetrics: true,
		EnableGoMetrics:      true,
	}, logger)
	if err != nil {
		return err
	}
	appMetrics := prometheus.NewAppMetrics(collector)

	// Fusion services.
	service := analysis.NewService(repo, store, cache, appMetrics, cfg.Fusion, logger)

	var jobs handlers.JobRunner
	var producer *kafka.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err = kafka.NewProducer(cfg.Kafka, logger)
		if err != nil {
			return err
		}
		defer func() { _ = producer.Close() }()
		jobs = analysis.NewJobService(service, producer, cache, appMetrics, cfg.Fusion.CacheTTL, logger)
	} else {
		logger.Warn("kafka brokers not configured, async analysis disabled")
	}

	invalidate := func(datasetKey string) {
		if err := service.InvalidateLayer(context.Background(), datasetKey); err != nil {
			logger.Warn("failed to invalidate layer cache",
				logging.String("dataset_key", datasetKey), logging.Err(err))
		}
	}
	if localStore != nil && cfg.Storage.WatchLocal {
		if err := localStore.Watch(invalidate); err != nil {
			return err
		}
	}

	// HTTP surface.
	router := httpserver.NewRouter(httpserver.RouterDeps{
		Analysis: handlers.NewAnalysisHandler(service, jobs),
		Layers:   handlers.NewLayerHandler(repo, store, invalidate),
		Health: handlers.NewHealthHandler(version, map[string]handlers.Pinger{
			"postgres": handlers.PingerFunc(conn.Ping),
			"redis":    handlers.PingerFunc(redisClient.Ping),
		}),
		Metrics:   appMetrics,
		Collector: collector,
		Logger:    logger,
		CORS:      middleware.CORSConfig{},
	})
	server := httpserver.NewServer(cfg.Server, router, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutdown signal received", logging.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+time.Second)
	defer shutdownCancel()
	return server.Stop(shutdownCtx)
}

// newDatasetStore selects the dataset backend.  The second return value is
// non-nil only for the local backend, which supports file watching.
func newDatasetStore(cfg *config.Config, logger logging.Logger) (storage.DatasetStore, *localfs.Store, error) {
	switch cfg.Storage.Backend {
	case "local":
		store, err := localfs.NewStore(cfg.Storage.LocalDir, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		store, err := minio.NewStore(cfg.MinIO, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
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
