// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/cleaner"
)

// Config represents the application configuration
type Config struct {
	Pipeline  *PipelineConfig
	Storage   *StorageConfig
	Snowflake *SnowflakeConfig // nil when no Snowflake source is configured
	API       *APIConfig

	// Batch settings
	ChunkSize      int
	RetryAttempts  int
	RetryDelay     time.Duration
	WorkerPoolSize int

	// Logging
	LogLevel  string
	LogFormat string
}

// PipelineConfig holds the enrichment model settings
type PipelineConfig struct {
	Timezone         string
	AnomalyThreshold float64
	MaxSpeedKmh      float64
	MaxFarePerKm     float64
	BaseFare         float64
	PerKmRate        float64
	PerMinuteRate    float64
}

// APIConfig holds HTTP query layer settings
type APIConfig struct {
	Addr            string
	GinMode         string
	CORSOrigins     []string
	StaticDir       string
	CacheSize       int
	CacheTTL        time.Duration
	DefaultLimit    int
	MaxLimit        int
	DefaultTopK     int
	QueryThreshold  float64
	MaxAnomalies    int
	ShutdownTimeout time.Duration
}

// LoadEnvFiles loads .env style files into the environment. Missing files
// are skipped; with no arguments ".env" is tried.
func LoadEnvFiles(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	defaults := cleaner.DefaultConfig()

	cfg := &Config{
		Pipeline: &PipelineConfig{
			Timezone:         getEnv("PIPELINE_TIMEZONE", "UTC"),
			AnomalyThreshold: getEnvAsFloat("PIPELINE_ANOMALY_THRESHOLD", defaults.AnomalyThreshold),
			MaxSpeedKmh:      getEnvAsFloat("PIPELINE_MAX_SPEED_KMH", defaults.MaxSpeedKmh),
			MaxFarePerKm:     getEnvAsFloat("PIPELINE_MAX_FARE_PER_KM", defaults.MaxFarePerKm),
			BaseFare:         getEnvAsFloat("FARE_BASE", defaults.BaseFare),
			PerKmRate:        getEnvAsFloat("FARE_PER_KM", defaults.PerKmRate),
			PerMinuteRate:    getEnvAsFloat("FARE_PER_MINUTE", defaults.PerMinuteRate),
		},
		API: &APIConfig{
			Addr:            getEnv("API_ADDR", ":5000"),
			GinMode:         getEnv("GIN_MODE", "release"),
			CORSOrigins:     getEnvAsStringSlice("API_CORS_ORIGINS", []string{"*"}),
			StaticDir:       getEnv("API_STATIC_DIR", ""),
			CacheSize:       getEnvAsInt("API_CACHE_SIZE", 256),
			CacheTTL:        getEnvAsDuration("API_CACHE_TTL", 30*time.Second),
			DefaultLimit:    getEnvAsInt("API_DEFAULT_LIMIT", 100),
			MaxLimit:        getEnvAsInt("API_MAX_LIMIT", 10000),
			DefaultTopK:     getEnvAsInt("API_DEFAULT_TOPK", 10),
			QueryThreshold:  getEnvAsFloat("API_ANOMALY_THRESHOLD", 3.5),
			MaxAnomalies:    getEnvAsInt("API_MAX_ANOMALIES", 500),
			ShutdownTimeout: getEnvAsDuration("API_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		ChunkSize:      getEnvAsInt("CHUNK_SIZE", 10000),
		RetryAttempts:  getEnvAsInt("RETRY_ATTEMPTS", 3),
		RetryDelay:     time.Duration(getEnvAsInt("RETRY_DELAY_MS", 1000)) * time.Millisecond,
		WorkerPoolSize: getEnvAsInt("WORKER_POOL_SIZE", 0), // 0 means use runtime.NumCPU()
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
	}

	storage, err := LoadStorageConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load storage configuration: %w", err)
	}
	cfg.Storage = storage

	snowConfig, err := LoadSnowflakeConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load Snowflake configuration: %w", err)
	}
	cfg.Snowflake = snowConfig

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate ensures all required configuration is present and valid
func (c *Config) Validate() error {
	if c.Pipeline == nil {
		return errors.New("pipeline configuration is required")
	}
	if c.Storage == nil {
		return errors.New("storage configuration is required")
	}
	if c.API == nil {
		return errors.New("api configuration is required")
	}

	if c.ChunkSize <= 0 {
		return errors.New("chunk size must be positive")
	}
	if c.RetryAttempts < 0 {
		return errors.New("retry attempts cannot be negative")
	}
	if c.WorkerPoolSize < 0 {
		return errors.New("worker pool size cannot be negative")
	}

	if _, err := c.Pipeline.CleanerConfig(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}

	if c.API.DefaultLimit <= 0 || c.API.MaxLimit < c.API.DefaultLimit {
		return errors.New("api limits must be positive and max >= default")
	}
	if c.API.MaxAnomalies <= 0 {
		return errors.New("api max anomalies must be positive")
	}

	return nil
}

// CleanerConfig turns pipeline settings into the enrichment configuration
func (p *PipelineConfig) CleanerConfig() (cleaner.Config, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return cleaner.Config{}, fmt.Errorf("invalid pipeline timezone %q: %w", p.Timezone, err)
	}

	cfg := cleaner.DefaultConfig()
	cfg.Location = loc
	cfg.AnomalyThreshold = p.AnomalyThreshold
	cfg.MaxSpeedKmh = p.MaxSpeedKmh
	cfg.MaxFarePerKm = p.MaxFarePerKm
	cfg.BaseFare = p.BaseFare
	cfg.PerKmRate = p.PerKmRate
	cfg.PerMinuteRate = p.PerMinuteRate

	if err := cfg.Validate(); err != nil {
		return cleaner.Config{}, fmt.Errorf("invalid pipeline configuration: %w", err)
	}
	return cfg, nil
}

// Helper functions for environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration accepts Go duration strings ("30s") or plain seconds
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsStringSlice parses a comma separated list, trimming whitespace
// and quotes around each entry
func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var result []string
	for _, v := range strings.Split(value, ",") {
		v = strings.Trim(strings.TrimSpace(v), `"`)
		if v != "" {
			result = append(result, v)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}
	return result
}
