// pkg/connector/postgres.go
package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/config"
)

// PostgresConnector is a PostgreSQL trip store connection
type PostgresConnector struct {
	db     *sql.DB
	driver string
	logger *zap.Logger
	cfg    *config.PostgresConfig
}

// NewPostgresConnector creates and initializes a new PostgreSQL connector.
// driver is config.DriverPgx or config.DriverPostgres.
func NewPostgresConnector(ctx context.Context, cfg *config.PostgresConfig, driver string, logger *zap.Logger) (*PostgresConnector, error) {
	if cfg == nil {
		return nil, errors.New("postgreSQL configuration cannot be nil")
	}
	if driver != config.DriverPgx && driver != config.DriverPostgres {
		return nil, fmt.Errorf("unsupported PostgreSQL driver %q", driver)
	}

	if logger == nil {
		logger = zap.L().Named("postgres-connector")
	}

	logger.Info("Connecting to PostgreSQL",
		zap.String("driver", driver),
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Database),
		zap.String("user", cfg.User))

	var session string
	if cfg.StatementTimeout > 0 {
		session = fmt.Sprintf("SET statement_timeout = %d", cfg.StatementTimeout.Milliseconds())
	}

	db, err := openPool(ctx, poolOptions{
		name:        "PostgreSQL",
		driver:      driver,
		dsn:         cfg.ConnectionString(),
		pool:        cfg.Pool,
		session:     session,
		pingTimeout: 5 * time.Second,
	}, logger)
	if err != nil {
		return nil, err
	}

	return &PostgresConnector{
		db:     db,
		driver: driver,
		logger: logger,
		cfg:    cfg,
	}, nil
}

// DB returns the underlying database connection
func (c *PostgresConnector) DB() *sql.DB {
	return c.db
}

// DriverName returns the database/sql driver name
func (c *PostgresConnector) DriverName() string {
	return c.driver
}

// Validate verifies the PostgreSQL connection and write permissions
func (c *PostgresConnector) Validate(ctx context.Context) error {
	var version string
	if err := c.db.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		return fmt.Errorf("failed to query PostgreSQL version: %w", err)
	}
	c.logger.Info("Connected to PostgreSQL", zap.String("version", version))

	_, err := c.db.ExecContext(ctx, `
		DO $$
		BEGIN
			CREATE TEMP TABLE _permission_check (id serial, test text);
			INSERT INTO _permission_check (test) VALUES ('test');
			DROP TABLE _permission_check;
		EXCEPTION WHEN OTHERS THEN
			RAISE EXCEPTION 'Permission check failed: %', SQLERRM;
		END $$;
	`)
	if err != nil {
		return fmt.Errorf("permission validation failed: %w", err)
	}

	c.logger.Info("PostgreSQL connection validated",
		zap.String("database", c.cfg.Database),
		zap.String("host", c.cfg.Host),
		zap.Int("port", c.cfg.Port))

	return nil
}

// Close closes the database connection
func (c *PostgresConnector) Close() error {
	c.logger.Info("Closing PostgreSQL connection")
	logPoolStats(c.logger, c.cfg.Database, c.db)
	return c.db.Close()
}

// BatchInsert performs a multi-row insert into a table, batchSize rows per
// statement. Placeholders use the $n form.
func BatchInsert(
	ctx context.Context,
	db Execer,
	table string,
	columns []string,
	valueRows [][]interface{},
	batchSize int,
) (int64, error) {
	if len(valueRows) == 0 {
		return 0, nil
	}

	if batchSize <= 0 {
		batchSize = 1000
	}
	// PostgreSQL caps bind parameters at 65535 per statement.
	if maxRows := 65535 / len(columns); batchSize > maxRows {
		batchSize = maxRows
	}

	columnStr := strings.Join(columns, ", ")
	var totalRowsInserted int64

	for i := 0; i < len(valueRows); i += batchSize {
		end := i + batchSize
		if end > len(valueRows) {
			end = len(valueRows)
		}

		currentBatch := valueRows[i:end]

		placeholders := make([]string, len(currentBatch))
		args := make([]interface{}, 0, len(currentBatch)*len(columns))

		for j, row := range currentBatch {
			if len(row) != len(columns) {
				return totalRowsInserted, fmt.Errorf("row %d has %d values, expected %d", i+j, len(row), len(columns))
			}
			rowPlaceholders := make([]string, len(columns))
			for k, val := range row {
				rowPlaceholders[k] = fmt.Sprintf("$%d", j*len(columns)+k+1)
				args = append(args, val)
			}
			placeholders[j] = fmt.Sprintf("(%s)", strings.Join(rowPlaceholders, ", "))
		}

		query := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s",
			table, columnStr, strings.Join(placeholders, ", "))

		result, err := execWithTimeout(ctx, db, query, 30*time.Second, args...)
		if err != nil {
			return totalRowsInserted, fmt.Errorf("batch insert failed: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			rowsAffected = int64(len(currentBatch))
		}
		totalRowsInserted += rowsAffected
	}

	return totalRowsInserted, nil
}

// TxBeginner is satisfied by *sql.DB and *sqlx.DB
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// CopyIn bulk loads rows with COPY FROM STDIN in one transaction. It only
// works on connections opened with the lib/pq driver.
func CopyIn(
	ctx context.Context,
	db TxBeginner,
	table string,
	columns []string,
	valueRows [][]interface{},
) (n int64, err error) {
	if len(valueRows) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, pq.CopyIn(table, columns...))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare copy: %w", err)
	}

	for i, row := range valueRows {
		if _, err = stmt.ExecContext(ctx, row...); err != nil {
			stmt.Close()
			return 0, fmt.Errorf("failed to copy row %d: %w", i, err)
		}
	}

	// Flush buffered rows
	if _, err = stmt.ExecContext(ctx); err != nil {
		stmt.Close()
		return 0, fmt.Errorf("failed to flush copy: %w", err)
	}
	if err = stmt.Close(); err != nil {
		return 0, fmt.Errorf("failed to close copy statement: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return int64(len(valueRows)), nil
}
