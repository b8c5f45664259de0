// pkg/connector/snowflake.go
package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sf "github.com/snowflakedb/gosnowflake"
	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/config"
)

// SnowflakeConnector is a connection to the raw trip warehouse
type SnowflakeConnector struct {
	db     *sql.DB
	logger *zap.Logger
	cfg    *config.SnowflakeConfig
}

// NewSnowflakeConnector creates a new Snowflake connection
func NewSnowflakeConnector(ctx context.Context, cfg *config.SnowflakeConfig, logger *zap.Logger) (*SnowflakeConnector, error) {
	if cfg == nil {
		return nil, errors.New("snowflake configuration cannot be nil")
	}

	if logger == nil {
		logger = zap.L().Named("snowflake-connector")
	}

	sfConfig := &sf.Config{
		Account:       cfg.Account,
		User:          cfg.User,
		Password:      cfg.Password,
		Database:      cfg.Database,
		Schema:        cfg.Schema,
		Warehouse:     cfg.Warehouse,
		Role:          cfg.Role,
		Authenticator: cfg.Authenticator,
	}

	// Log connection attempt (without credentials)
	logger.Info("Connecting to Snowflake",
		zap.String("account", cfg.Account),
		zap.String("user", cfg.User),
		zap.String("database", cfg.Database),
		zap.String("schema", cfg.Schema),
		zap.String("warehouse", cfg.Warehouse),
		zap.String("role", cfg.Role))

	dsn, err := sf.DSN(sfConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to build Snowflake DSN: %w", err)
	}

	var session string
	if cfg.QueryTimeout > 0 {
		session = fmt.Sprintf("ALTER SESSION SET STATEMENT_TIMEOUT_IN_SECONDS = %d", int(cfg.QueryTimeout.Seconds()))
	}

	db, err := openPool(ctx, poolOptions{
		name:        "Snowflake",
		driver:      "snowflake",
		dsn:         dsn,
		pool:        cfg.Pool,
		session:     session,
		pingTimeout: 10 * time.Second,
	}, logger)
	if err != nil {
		return nil, err
	}

	return NewSnowflakeConnectorFromDB(db, cfg, logger), nil
}

// NewSnowflakeConnectorFromDB wraps an already opened connection
func NewSnowflakeConnectorFromDB(db *sql.DB, cfg *config.SnowflakeConfig, logger *zap.Logger) *SnowflakeConnector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnowflakeConnector{
		db:     db,
		logger: logger,
		cfg:    cfg,
	}
}

// DB returns the underlying database connection
func (c *SnowflakeConnector) DB() *sql.DB {
	return c.db
}

// DriverName returns the database/sql driver name
func (c *SnowflakeConnector) DriverName() string {
	return "snowflake"
}

// Validate verifies the Snowflake connection and that the trips table exists
func (c *SnowflakeConnector) Validate(ctx context.Context) error {
	var role, database, warehouse sql.NullString
	err := c.db.QueryRowContext(ctx, "SELECT CURRENT_ROLE(), CURRENT_DATABASE(), CURRENT_WAREHOUSE()").Scan(
		&role, &database, &warehouse)
	if err != nil {
		return fmt.Errorf("failed to verify Snowflake access: %w", err)
	}

	c.logger.Info("Connected to Snowflake",
		zap.String("role", role.String),
		zap.String("database", database.String),
		zap.String("warehouse", warehouse.String))

	if !strings.EqualFold(database.String, c.cfg.Database) {
		return fmt.Errorf("connected to wrong database: %s (expected: %s)",
			database.String, c.cfg.Database)
	}

	exists, err := c.tableExists(ctx, c.cfg.Schema, c.cfg.TripsTable)
	if err != nil {
		return fmt.Errorf("failed to verify trips table: %w", err)
	}
	if !exists {
		return fmt.Errorf("trips table %s.%s not found", c.cfg.Schema, c.cfg.TripsTable)
	}

	return nil
}

func (c *SnowflakeConnector) tableExists(ctx context.Context, schema, table string) (bool, error) {
	var count int
	err := c.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?",
		strings.ToUpper(schema), strings.ToUpper(table),
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Close closes the database connection
func (c *SnowflakeConnector) Close() error {
	c.logger.Info("Closing Snowflake connection")
	logPoolStats(c.logger, c.cfg.Database, c.db)
	return c.db.Close()
}

// StreamQuery runs query once and hands every row to processor, logging
// progress every progressEvery rows. A single statement keeps the read
// consistent; the driver fetches result chunks as rows are consumed.
func (c *SnowflakeConnector) StreamQuery(
	ctx context.Context,
	query string,
	progressEvery int,
	processor func(*sql.Rows) error,
) (int64, error) {
	if progressEvery <= 0 {
		progressEvery = 10000
	}

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var rowCount int64
	for rows.Next() {
		if err := processor(rows); err != nil {
			return rowCount, fmt.Errorf("row processing failed at row %d: %w", rowCount, err)
		}
		rowCount++
		if rowCount%int64(progressEvery) == 0 {
			c.logger.Debug("Fetched rows", zap.Int64("rows", rowCount))
		}
	}
	if err := rows.Err(); err != nil {
		return rowCount, fmt.Errorf("error iterating rows after %d: %w", rowCount, err)
	}
	return rowCount, nil
}

// TripsTable returns the fully qualified raw trips table name
func (c *SnowflakeConnector) TripsTable() string {
	return fmt.Sprintf("%s.%s", c.cfg.Schema, c.cfg.TripsTable)
}
