// Package postgres manages the PostgreSQL connection pool and schema
// migrations for the layer catalog.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/parcelview/geofusion/internal/config"
	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
	"github.com/parcelview/geofusion/pkg/errors"
)

// Connection manages the pgx connection pool.
type Connection struct {
	pool   *pgxpool.Pool
	logger logging.Logger
}

// NewConnection opens a pool against cfg and verifies it with a ping.
func NewConnection(ctx context.Context, cfg config.DatabaseConfig, log logging.Logger) (*Connection, error) {
	poolCfg, err := pgxpool.ParseConfig(BuildDSN(cfg))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "invalid database configuration")
	}

	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to create connection pool")
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, errors.ErrCodeDatabaseError, "database connection failed")
	}

	log.Info("postgres pool connected",
		logging.String("host", cfg.Host),
		logging.String("database", cfg.DBName),
		logging.Int("max_conns", cfg.MaxConns),
	)

	return &Connection{pool: pool, logger: log}, nil
}

// Pool exposes the underlying pgx pool for repositories.
func (c *Connection) Pool() *pgxpool.Pool {
	return c.pool
}

// Ping verifies the pool is alive.
func (c *Connection) Ping(ctx context.Context) error {
	return c.pool.Ping(ctx)
}

// Close drains and closes the pool.
func (c *Connection) Close() {
	c.pool.Close()
	c.logger.Info("postgres pool closed")
}

// BuildDSN assembles a postgres connection string from cfg.
func BuildDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.DBName, cfg.SSLMode)
}
