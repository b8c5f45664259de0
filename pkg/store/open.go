package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/config"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/connector"
)

// Open returns the trip store selected by cfg.Storage.Driver
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (TripStore, error) {
	if cfg == nil || cfg.Storage == nil {
		return nil, errors.New("storage configuration cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	storage := cfg.Storage

	switch storage.Driver {
	case config.DriverSQLite:
		if dir := filepath.Dir(storage.SQLitePath); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		db, err := OpenSQLite(storage.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Opened SQLite trip store", zap.String("path", storage.SQLitePath))
		return NewGormStore(db, storage.LoadBatchSize, logger.Named("gorm-store"))

	case config.DriverPostgres, config.DriverPgx:
		conn, err := connector.NewConnectorFactory(cfg, logger).CreatePostgresConnector(ctx)
		if err != nil {
			return nil, err
		}
		db := sqlx.NewDb(conn.DB(), conn.DriverName())
		return NewSQLStore(db, storage.LoadBatchSize, storage.UseCopy, logger.Named("sql-store"))

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", storage.Driver)
	}
}
