// pkg/converter/values.go
package converter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultNullTokens returns the cell values read as missing.
func DefaultNullTokens() []string {
	return []string{"", "NaN", "NA", "null", "NULL", "nil"}
}

// IsNull determines if a cell should be treated as NULL
func (c *TypeConverter) IsNull(value string) bool {
	if c.config.TrimSpace {
		value = strings.TrimSpace(value)
	}
	for _, token := range c.config.NullTokens {
		if value == token {
			return true
		}
	}
	return false
}

func (c *TypeConverter) clean(value string) string {
	if c.config.TrimSpace {
		return strings.TrimSpace(value)
	}
	return value
}

// ToNullableFloat parses a numeric cell. Null tokens, unparsable text and
// non-finite values give nil.
func (c *TypeConverter) ToNullableFloat(value string) *float64 {
	if c.IsNull(value) {
		return nil
	}
	f, err := strconv.ParseFloat(c.clean(value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		if c.config.LogParseFailures {
			c.logger.Debug("Unparsable numeric cell", zap.String("value", value))
		}
		return nil
	}
	return &f
}

// ToNullableInt parses an integer cell. Whole floats such as "2.0" are
// accepted since exports often write counts that way.
func (c *TypeConverter) ToNullableInt(value string) *int64 {
	if c.IsNull(value) {
		return nil
	}
	cleaned := c.clean(value)
	if i, err := strconv.ParseInt(cleaned, 10, 64); err == nil {
		return &i
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) ||
		f > math.MaxInt64 || f < math.MinInt64 {
		if c.config.LogParseFailures {
			c.logger.Debug("Unparsable integer cell", zap.String("value", value))
		}
		return nil
	}
	i := int64(f)
	return &i
}

// ToNullableString returns the cell, or nil for a null token
func (c *TypeConverter) ToNullableString(value string) *string {
	if c.IsNull(value) {
		return nil
	}
	s := c.clean(value)
	return &s
}

// ToCell renders a database driver value as CSV cell text
func ToCell(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case float64:
		return FormatFloat(&v)
	case float32:
		f := float64(v)
		return FormatFloat(&f)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case bool:
		return FormatBool(v)
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	case *string:
		return FormatString(v)
	case *float64:
		return FormatFloat(v)
	case *int64:
		return FormatInt(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// FormatFloat renders a nullable float with the shortest representation
// that round-trips, so repeated writes are byte-identical.
func FormatFloat(v *float64) string {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// FormatInt renders a nullable integer
func FormatInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

// FormatString renders a nullable string
func FormatString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// FormatBool renders a flag as true/false
func FormatBool(v bool) string {
	return strconv.FormatBool(v)
}
