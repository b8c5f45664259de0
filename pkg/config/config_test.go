package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/snowflakedb/gosnowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "")
	t.Setenv("SNOWFLAKE_ACCOUNT", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Nil(t, cfg.Storage.Postgres)
	assert.Nil(t, cfg.Snowflake)
	assert.Equal(t, ":5000", cfg.API.Addr)
	assert.Equal(t, []string{"*"}, cfg.API.CORSOrigins)
	assert.Equal(t, 100, cfg.API.DefaultLimit)
	assert.Equal(t, 500, cfg.API.MaxAnomalies)
	assert.Equal(t, 3.5, cfg.API.QueryThreshold)
	assert.Equal(t, 5.0, cfg.Pipeline.AnomalyThreshold)
	assert.Equal(t, 10000, cfg.Storage.LoadBatchSize)

	cc, err := cfg.Pipeline.CleanerConfig()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, cc.Location)
	assert.Equal(t, 200.0, cc.MaxSpeedKmh)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PIPELINE_TIMEZONE", "America/New_York")
	t.Setenv("PIPELINE_ANOMALY_THRESHOLD", "4.5")
	t.Setenv("API_CORS_ORIGINS", ` http://a.test , "http://b.test" `)
	t.Setenv("API_CACHE_TTL", "90")
	t.Setenv("WORKER_POOL_SIZE", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.API.CORSOrigins)
	assert.Equal(t, 90*time.Second, cfg.API.CacheTTL)
	assert.Equal(t, 3, cfg.WorkerPoolSize)

	cc, err := cfg.Pipeline.CleanerConfig()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", cc.Location.String())
	assert.Equal(t, 4.5, cc.AnomalyThreshold)
}

func TestLoadConfigInvalidTimezone(t *testing.T) {
	t.Setenv("PIPELINE_TIMEZONE", "Mars/Olympus")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigPostgresRequiresCredentials(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", DriverPgx)
	t.Setenv("POSTGRES_USER", "")
	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("POSTGRES_USER", "mobility")
	t.Setenv("POSTGRES_DB", "trips")
	t.Setenv("POSTGRES_PORT", "6543")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg.Storage.Postgres)
	assert.Equal(t, 6543, cfg.Storage.Postgres.Port)
	assert.Equal(t, "host=localhost port=6543 user=mobility dbname=trips sslmode=disable", cfg.Storage.Postgres.ConnectionString())
}

func TestLoadConfigUnknownDriver(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "mysql")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadSnowflakeConfig(t *testing.T) {
	t.Setenv("SNOWFLAKE_ACCOUNT", "acme-xy123")
	t.Setenv("SNOWFLAKE_USER", "loader")
	t.Setenv("SNOWFLAKE_PASSWORD", "secret")
	t.Setenv("SNOWFLAKE_WAREHOUSE", "WH")
	t.Setenv("SNOWFLAKE_AUTHENTICATOR", "oauth")

	cfg, err := LoadSnowflakeConfig()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, gosnowflake.AuthTypeOAuth, cfg.Authenticator)
	assert.Equal(t, "RAW_TRIPS", cfg.TripsTable)
	assert.Contains(t, cfg.ConnectionString(), "loader:secret@acme-xy123/MOBILITY/PUBLIC?warehouse=WH")

	t.Setenv("SNOWFLAKE_PASSWORD", "")
	_, err = LoadSnowflakeConfig()
	assert.Error(t, err)
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("TRIPCLEAN_TEST_VALUE=from-file\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("TRIPCLEAN_TEST_VALUE") })

	require.NoError(t, LoadEnvFiles(filepath.Join(dir, "missing.env"), path))
	assert.Equal(t, "from-file", os.Getenv("TRIPCLEAN_TEST_VALUE"))
}

func TestValidate(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	cfg.ChunkSize = 0
	assert.Error(t, cfg.Validate())

	cfg, err = LoadConfig()
	require.NoError(t, err)
	cfg.API.MaxLimit = 1
	assert.Error(t, cfg.Validate())
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("HELPER_INT", "nope")
	assert.Equal(t, 7, getEnvAsInt("HELPER_INT", 7))

	t.Setenv("HELPER_DURATION", "1m")
	assert.Equal(t, time.Minute, getEnvAsDuration("HELPER_DURATION", time.Second))

	t.Setenv("HELPER_BOOL", "false")
	assert.False(t, getEnvAsBool("HELPER_BOOL", true))

	t.Setenv("HELPER_SLICE", " , ")
	assert.Equal(t, []string{"d"}, getEnvAsStringSlice("HELPER_SLICE", []string{"d"}))
}
