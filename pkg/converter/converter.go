// pkg/converter/converter.go
package converter

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/model"
)

// TypeConverter handles mapping of raw cells to typed trip fields
type TypeConverter struct {
	logger *zap.Logger
	// Configuration options
	config TypeConverterConfig
}

// TypeConverterConfig provides configuration options for type conversion
type TypeConverterConfig struct {
	// Cell values treated as missing, compared after trimming
	NullTokens []string
	// Whether to trim surrounding whitespace from cells
	TrimSpace bool
	// Whether unparsable numeric cells are logged at debug level
	LogParseFailures bool
}

// DefaultConfig returns the default configuration
func DefaultConfig() TypeConverterConfig {
	return TypeConverterConfig{
		NullTokens:       DefaultNullTokens(),
		TrimSpace:        true,
		LogParseFailures: false,
	}
}

// NewTypeConverter creates a new TypeConverter with default configuration
func NewTypeConverter(logger *zap.Logger) *TypeConverter {
	return NewTypeConverterWithConfig(logger, DefaultConfig())
}

// NewTypeConverterWithConfig creates a TypeConverter with custom configuration
func NewTypeConverterWithConfig(logger *zap.Logger, config TypeConverterConfig) *TypeConverter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.NullTokens == nil {
		config.NullTokens = DefaultNullTokens()
	}
	return &TypeConverter{
		logger: logger,
		config: config,
	}
}

// GenerateColumnDefinitions creates PostgreSQL column definitions
func GenerateColumnDefinitions(metadata *model.TableMetadata) []string {
	definitions := make([]string, 0, len(metadata.Columns))

	for _, col := range metadata.Columns {
		pgType := col.PgType
		if pgType == "" {
			pgType = "TEXT"
		}

		nullability := "NULL"
		if col.IsPrimaryKey || !col.Nullable {
			nullability = "NOT NULL"
		}

		definitions = append(definitions, fmt.Sprintf("%s %s %s",
			QuoteIdentifier(col.Name),
			pgType,
			nullability))
	}

	return definitions
}

// CreateTableSQL builds an idempotent CREATE TABLE statement for metadata
func CreateTableSQL(metadata *model.TableMetadata) string {
	defs := GenerateColumnDefinitions(metadata)
	if len(metadata.PrimaryKeys) > 0 {
		keys := make([]string, len(metadata.PrimaryKeys))
		for i, k := range metadata.PrimaryKeys {
			keys[i] = QuoteIdentifier(k)
		}
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(keys, ", ")))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)",
		QuoteIdentifier(metadata.Table),
		strings.Join(defs, ",\n\t"))
}

// QuoteIdentifier properly quotes and escapes a SQL identifier
func QuoteIdentifier(name string) string {
	return fmt.Sprintf("\"%s\"", strings.ToLower(strings.ReplaceAll(name, "\"", "\"\"")))
}
