package connector

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/config"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/converter"
)

// ConnectorFactory opens the connections named by the process configuration
type ConnectorFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewConnectorFactory creates a new connector factory
func NewConnectorFactory(cfg *config.Config, logger *zap.Logger) *ConnectorFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConnectorFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateSnowflakeConnector connects to the raw trip warehouse
func (f *ConnectorFactory) CreateSnowflakeConnector(ctx context.Context) (*SnowflakeConnector, error) {
	if f.cfg.Snowflake == nil {
		return nil, errors.New("snowflake source is not configured")
	}
	f.logger.Info("Creating Snowflake connector", zap.String("table", f.cfg.Snowflake.TripsTable))

	conn, err := NewSnowflakeConnector(ctx, f.cfg.Snowflake, f.logger.Named("snowflake-connector"))
	if err != nil {
		return nil, fmt.Errorf("failed to create Snowflake connector: %w", err)
	}
	return conn, nil
}

// CreatePostgresConnector connects to the PostgreSQL trip store with the
// configured storage driver
func (f *ConnectorFactory) CreatePostgresConnector(ctx context.Context) (*PostgresConnector, error) {
	if f.cfg.Storage == nil || f.cfg.Storage.Postgres == nil {
		return nil, errors.New("postgreSQL storage is not configured")
	}
	f.logger.Info("Creating PostgreSQL connector", zap.String("driver", f.cfg.Storage.Driver))

	conn, err := NewPostgresConnector(ctx, f.cfg.Storage.Postgres, f.cfg.Storage.Driver, f.logger.Named("postgres-connector"))
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL connector: %w", err)
	}
	return conn, nil
}

// CreateRawTripSource connects to Snowflake and returns a source over the
// configured trips table. The connector must be closed by the caller.
func (f *ConnectorFactory) CreateRawTripSource(ctx context.Context, conv *converter.TypeConverter) (*RawTripSource, *SnowflakeConnector, error) {
	conn, err := f.CreateSnowflakeConnector(ctx)
	if err != nil {
		return nil, nil, err
	}

	if err := conn.Validate(ctx); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("snowflake validation failed: %w", err)
	}

	source, err := NewRawTripSource(conn, conn.TripsTable(), conv, f.logger.Named("raw-trip-source"))
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	return source, conn, nil
}
