// Package config defines all configuration structures for the geofusion
// service.  No I/O or parsing logic lives here, only plain data types and
// validation.
package config

import (
	"fmt"
	"time"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters for the layer catalog.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// RedisConfig holds Redis connection parameters for the layer feature cache.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds Kafka producer/consumer parameters for async analysis
// jobs.
type KafkaConfig struct {
	Brokers         []string      `mapstructure:"brokers"`
	GroupID         string        `mapstructure:"group_id"`
	AutoOffsetReset string        `mapstructure:"auto_offset_reset"` // "earliest" | "latest"
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	ProducerRetries int           `mapstructure:"producer_retries"`
	MinBytes        int           `mapstructure:"min_bytes"`
	MaxBytes        int           `mapstructure:"max_bytes"`
}

// MinIOConfig holds MinIO / S3-compatible object-storage parameters for
// GeoJSON dataset storage.
type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

// StorageConfig selects and configures the dataset store backing layer
// feature sets.
type StorageConfig struct {
	// Backend is "minio" for object storage or "local" for a watched
	// directory of GeoJSON files (development).
	Backend string `mapstructure:"backend"`

	// LocalDir is the directory scanned by the local backend.
	LocalDir string `mapstructure:"local_dir"`

	// WatchLocal enables hot-reloading of changed GeoJSON files in
	// LocalDir.
	WatchLocal bool `mapstructure:"watch_local"`
}

// FusionConfig holds fusion-engine tunables.
type FusionConfig struct {
	// RelevanceThreshold is the minimum 0-100 layer relevance score for the
	// multi-layer gate; 0 selects the engine default.
	RelevanceThreshold float64 `mapstructure:"relevance_threshold"`

	// Parallelism bounds per-layer match workers; 0 selects GOMAXPROCS.
	Parallelism int `mapstructure:"parallelism"`

	// CacheTTL is how long fetched layer feature sets stay cached.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

// WorkerConfig holds analysis-job worker parameters.
type WorkerConfig struct {
	Concurrency    int           `mapstructure:"concurrency"`
	MaxRetries     int           `mapstructure:"max_retries"`
	RetryBackoff   time.Duration `mapstructure:"retry_backoff"`
	CommitInterval time.Duration `mapstructure:"commit_interval"`
}

// LogConfig holds structured-logging parameters.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // "debug" | "info" | "warn" | "error"
	Format string `mapstructure:"format"` // "json" | "text"
	Output string `mapstructure:"output"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure for the service.  Every
// infrastructure component and application service reads its settings from
// the relevant sub-struct.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Fusion   FusionConfig   `mapstructure:"fusion"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Log      LogConfig      `mapstructure:"log"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.  It
// returns the first error encountered; callers should treat any error as
// fatal and refuse to start.
func (c *Config) Validate() error {
	// Server
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	// Database
	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("config: database.max_conns must be >= 1, got %d", c.Database.MaxConns)
	}

	// Redis
	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
	}

	// Kafka
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("config: kafka.group_id is required")
	}

	// Storage
	switch c.Storage.Backend {
	case "minio", "local":
	default:
		return fmt.Errorf("config: storage.backend %q is invalid; expected minio|local", c.Storage.Backend)
	}
	if c.Storage.Backend == "local" && c.Storage.LocalDir == "" {
		return fmt.Errorf("config: storage.local_dir is required for the local backend")
	}
	if c.Storage.Backend == "minio" && c.MinIO.Bucket == "" {
		return fmt.Errorf("config: minio.bucket is required for the minio backend")
	}

	// Fusion
	if c.Fusion.RelevanceThreshold < 0 || c.Fusion.RelevanceThreshold > 100 {
		return fmt.Errorf("config: fusion.relevance_threshold %v is out of range [0, 100]", c.Fusion.RelevanceThreshold)
	}
	if c.Fusion.Parallelism < 0 {
		return fmt.Errorf("config: fusion.parallelism must be >= 0, got %d", c.Fusion.Parallelism)
	}

	// Worker
	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be >= 1, got %d", c.Worker.Concurrency)
	}

	// Log
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|text", c.Log.Format)
	}

	return nil
}
