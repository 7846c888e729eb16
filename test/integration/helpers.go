//go:build integration

// Package integration exercises the fusion service against real PostgreSQL
// and Redis instances.  Tests require Docker and are gated behind the
// "integration" build tag.
package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/parcelview/geofusion/internal/application/analysis"
	"github.com/parcelview/geofusion/internal/config"
	"github.com/parcelview/geofusion/internal/infrastructure/database/postgres"
	"github.com/parcelview/geofusion/internal/infrastructure/database/postgres/repositories"
	rediscache "github.com/parcelview/geofusion/internal/infrastructure/database/redis"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
	"github.com/parcelview/geofusion/internal/infrastructure/storage/localfs"
)

const startupTimeout = 60 * time.Second

// startPostgres launches a PostgreSQL 16 container, applies the layers
// migration, and returns a connected pool wrapper.
func startPostgres(t *testing.T) *postgres.Connection {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "geofusion_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).WithStartupTimeout(startupTimeout),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	conn, err := postgres.NewConnection(ctx, config.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		User:     "test",
		Password: "test",
		DBName:   "geofusion_test",
		SSLMode:  "disable",
		MaxConns: 4,
		MinConns: 1,
	}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	applyLayerSchema(t, conn)
	return conn
}

// applyLayerSchema runs the checked-in layers migration against the pool.
func applyLayerSchema(t *testing.T, conn *postgres.Connection) {
	t.Helper()
	ddl, err := os.ReadFile(filepath.Join("..", "..", "migrations", "0001_create_layers.up.sql"))
	require.NoError(t, err)
	_, err = conn.Pool().Exec(context.Background(), string(ddl))
	require.NoError(t, err)
}

// startRedis launches a Redis 7 container and returns a connected client.
func startRedis(t *testing.T) *rediscache.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(startupTimeout),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := rediscache.NewClient(config.RedisConfig{
		Addr: fmt.Sprintf("%s:%s", host, port.Port()),
	}, logging.NewNopLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return client
}

// stack bundles the wired service with its backing components so tests can
// reach into any level.
type stack struct {
	repo    *repositories.LayerRepository
	store   *localfs.Store
	cache   rediscache.Cache
	service *analysis.Service
}

// newStack wires a full analysis service: container-backed catalog and
// cache, a temp-dir dataset store, and the fusion pipeline.
func newStack(t *testing.T) *stack {
	t.Helper()
	log := logging.NewNopLogger()

	conn := startPostgres(t)
	repo := repositories.NewLayerRepository(conn.Pool(), log)

	client := startRedis(t)
	cache := rediscache.NewCache(client, log,
		rediscache.WithPrefix("geofusion:test:"),
		rediscache.WithDefaultTTL(time.Minute),
	)

	store, err := localfs.NewStore(t.TempDir(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	service := analysis.NewService(repo, store, cache, nil, config.FusionConfig{
		RelevanceThreshold: 60,
		Parallelism:        2,
		CacheTTL:           time.Minute,
	}, log)

	return &stack{repo: repo, store: store, cache: cache, service: service}
}
