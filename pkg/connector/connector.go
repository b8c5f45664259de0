// Package connector opens the warehouse and trip store connections.
package connector

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/config"
)

// DatabaseConnector is what the factory hands out for either backend
type DatabaseConnector interface {
	DB() *sql.DB
	DriverName() string
	// Validate checks the connection can do what the pipeline needs from it
	Validate(ctx context.Context) error
	Close() error
}

var (
	_ DatabaseConnector = (*PostgresConnector)(nil)
	_ DatabaseConnector = (*SnowflakeConnector)(nil)
)

// Execer is satisfied by *sql.DB, *sql.Tx and *sqlx.DB
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// poolOptions describes how to open one connection pool
type poolOptions struct {
	name        string // label for logs and errors
	driver      string
	dsn         string
	pool        config.PoolConfig
	session     string // statement run once after opening; empty for none
	pingTimeout time.Duration
}

// openPool opens a pool, applies its limits and session settings and pings
// it. The pool is closed again when the ping fails.
func openPool(ctx context.Context, opts poolOptions, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open(opts.driver, opts.dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s connection: %w", opts.name, err)
	}
	applyPool(db, opts.pool)

	if opts.session != "" {
		if _, err := db.ExecContext(ctx, opts.session); err != nil {
			logger.Warn("Failed to apply session settings",
				zap.String("database", opts.name),
				zap.Error(err))
		}
	}

	if err := PingWithTimeout(ctx, db, opts.pingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", opts.name, err)
	}

	logPoolStats(logger, opts.name, db)
	return db, nil
}

func applyPool(db *sql.DB, pool config.PoolConfig) {
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}
}

// logPoolStats logs connection pool statistics at debug level
func logPoolStats(logger *zap.Logger, name string, db *sql.DB) {
	stats := db.Stats()
	logger.Debug("Connection pool stats",
		zap.String("database", name),
		zap.Int("open_connections", stats.OpenConnections),
		zap.Int("in_use", stats.InUse),
		zap.Int("idle", stats.Idle),
		zap.Int("max_open", stats.MaxOpenConnections),
		zap.Int64("wait_count", stats.WaitCount),
		zap.Duration("wait_duration", stats.WaitDuration),
	)
}

// PingWithTimeout pings db, giving up after timeout
func PingWithTimeout(ctx context.Context, db *sql.DB, timeout time.Duration) error {
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		if pingCtx.Err() != nil {
			return fmt.Errorf("ping timed out after %v: %w", timeout, pingCtx.Err())
		}
		return err
	}
	return nil
}

func execWithTimeout(ctx context.Context, db Execer, query string, timeout time.Duration, args ...interface{}) (sql.Result, error) {
	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return db.ExecContext(queryCtx, query, args...)
}
