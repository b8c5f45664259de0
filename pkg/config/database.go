// pkg/config/database.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/snowflakedb/gosnowflake"
)

// Storage drivers
const (
	DriverPostgres = "postgres" // lib/pq
	DriverPgx      = "pgx"      // jackc/pgx stdlib
	DriverSQLite   = "sqlite"   // gorm sqlite
)

// StorageConfig selects and configures the trip store
type StorageConfig struct {
	Driver        string
	SQLitePath    string
	Postgres      *PostgresConfig
	LoadBatchSize int  // Rows per insert batch and progress log interval
	UseCopy       bool // Bulk load with COPY when the driver supports it
}

// SnowflakeConfig holds Snowflake connection parameters
type SnowflakeConfig struct {
	User          string
	Password      string
	Account       string
	Warehouse     string
	Database      string
	Schema        string
	TripsTable    string
	Role          string
	Authenticator gosnowflake.AuthType

	Pool PoolConfig

	// Query timeout
	QueryTimeout time.Duration
}

// PostgresConfig holds PostgreSQL connection parameters
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	Pool PoolConfig

	// Statement timeout
	StatementTimeout time.Duration
}

// PoolConfig holds database/sql connection pool limits. Zero values keep
// the driver defaults.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// loadPoolConfig reads pool limits from <prefix>_MAX_OPEN_CONNS and friends
func loadPoolConfig(prefix string, defaults PoolConfig) PoolConfig {
	seconds := func(key string, def time.Duration) time.Duration {
		return time.Duration(getEnvAsInt(prefix+key, int(def.Seconds()))) * time.Second
	}
	return PoolConfig{
		MaxOpenConns:    getEnvAsInt(prefix+"_MAX_OPEN_CONNS", defaults.MaxOpenConns),
		MaxIdleConns:    getEnvAsInt(prefix+"_MAX_IDLE_CONNS", defaults.MaxIdleConns),
		ConnMaxLifetime: seconds("_CONN_MAX_LIFETIME_SECONDS", defaults.ConnMaxLifetime),
		ConnMaxIdleTime: seconds("_CONN_MAX_IDLE_TIME_SECONDS", defaults.ConnMaxIdleTime),
	}
}

// LoadStorageConfig loads trip store configuration from environment variables
func LoadStorageConfig() (*StorageConfig, error) {
	cfg := &StorageConfig{
		Driver:        getEnv("STORAGE_DRIVER", DriverSQLite),
		SQLitePath:    getEnv("SQLITE_PATH", "db/nyc.sqlite"),
		LoadBatchSize: getEnvAsInt("LOAD_BATCH_SIZE", 10000),
		UseCopy:       getEnvAsBool("POSTGRES_USE_COPY", true),
	}

	if cfg.Driver == DriverPostgres || cfg.Driver == DriverPgx {
		pgConfig, err := LoadPostgresConfig()
		if err != nil {
			return nil, err
		}
		cfg.Postgres = pgConfig
	}

	return cfg, nil
}

// Validate checks the storage settings for the selected driver
func (c *StorageConfig) Validate() error {
	switch c.Driver {
	case DriverSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite path is required")
		}
	case DriverPostgres, DriverPgx:
		if c.Postgres == nil {
			return errors.New("postgreSQL configuration is required")
		}
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Driver)
	}
	if c.LoadBatchSize <= 0 {
		return errors.New("load batch size must be positive")
	}
	return nil
}

// LoadSnowflakeConfig loads Snowflake configuration from environment
// variables. It returns nil without error when SNOWFLAKE_ACCOUNT is unset.
func LoadSnowflakeConfig() (*SnowflakeConfig, error) {
	account := os.Getenv("SNOWFLAKE_ACCOUNT")
	if account == "" {
		return nil, nil
	}

	user := os.Getenv("SNOWFLAKE_USER")
	if user == "" {
		return nil, errors.New("SNOWFLAKE_USER environment variable is required")
	}

	password := os.Getenv("SNOWFLAKE_PASSWORD")
	if password == "" {
		return nil, errors.New("SNOWFLAKE_PASSWORD environment variable is required")
	}

	warehouse := os.Getenv("SNOWFLAKE_WAREHOUSE")
	if warehouse == "" {
		return nil, errors.New("SNOWFLAKE_WAREHOUSE environment variable is required")
	}

	cfg := &SnowflakeConfig{
		User:          user,
		Password:      password,
		Account:       account,
		Warehouse:     warehouse,
		Database:      getEnv("SNOWFLAKE_DATABASE", "MOBILITY"),
		Schema:        getEnv("SNOWFLAKE_SCHEMA", "PUBLIC"),
		TripsTable:    getEnv("SNOWFLAKE_TRIPS_TABLE", "RAW_TRIPS"),
		Role:          getEnv("SNOWFLAKE_ROLE", ""),
		Authenticator: parseAuthenticator(getEnv("SNOWFLAKE_AUTHENTICATOR", "snowflake")),

		Pool: loadPoolConfig("SNOWFLAKE", PoolConfig{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 10 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		}),
		QueryTimeout: time.Duration(getEnvAsInt("SNOWFLAKE_QUERY_TIMEOUT_SECONDS", 300)) * time.Second,
	}

	return cfg, nil
}

func parseAuthenticator(name string) gosnowflake.AuthType {
	switch name {
	case "oauth":
		return gosnowflake.AuthTypeOAuth
	case "externalbrowser":
		return gosnowflake.AuthTypeExternalBrowser
	case "username_password_mfa":
		return gosnowflake.AuthTypeUsernamePasswordMFA
	case "jwt":
		return gosnowflake.AuthTypeJwt
	case "token":
		return gosnowflake.AuthTypeTokenAccessor
	case "okta":
		return gosnowflake.AuthTypeOkta
	default:
		return gosnowflake.AuthTypeSnowflake
	}
}

// LoadPostgresConfig loads PostgreSQL configuration from environment variables
func LoadPostgresConfig() (*PostgresConfig, error) {
	user := os.Getenv("POSTGRES_USER")
	if user == "" {
		return nil, errors.New("POSTGRES_USER environment variable is required")
	}

	database := os.Getenv("POSTGRES_DB")
	if database == "" {
		return nil, errors.New("POSTGRES_DB environment variable is required")
	}

	cfg := &PostgresConfig{
		Host:     getEnv("POSTGRES_HOST", "localhost"),
		Port:     getEnvAsInt("POSTGRES_PORT", 5432),
		User:     user,
		Password: os.Getenv("POSTGRES_PASSWORD"),
		Database: database,
		SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		Pool: loadPoolConfig("POSTGRES", PoolConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    10,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 10 * time.Minute,
		}),
		StatementTimeout: time.Duration(getEnvAsInt("POSTGRES_STATEMENT_TIMEOUT_SECONDS", 300)) * time.Second,
	}

	return cfg, nil
}

// ConnectionString returns a formatted Snowflake DSN
func (c *SnowflakeConfig) ConnectionString() string {
	dsn := fmt.Sprintf("%s:%s@%s/%s/%s?warehouse=%s&authenticator=%s",
		c.User,
		c.Password,
		c.Account,
		c.Database,
		c.Schema,
		c.Warehouse,
		c.Authenticator,
	)

	if c.Role != "" {
		dsn += "&role=" + c.Role
	}

	return dsn
}

// ConnectionString returns a formatted PostgreSQL connection string
func (c *PostgresConfig) ConnectionString() string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		c.Host,
		c.Port,
		c.User,
		c.Database,
		c.SSLMode,
	)
	if c.Password != "" {
		dsn += " password=" + c.Password
	}
	return dsn
}
