// pkg/cleaner/timestamp.go
package cleaner

import (
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

// dayFirstLayouts cover dotted European dates, which dateparse rejects.
var dayFirstLayouts = []string{
	"2.1.2006 15:04:05",
	"2.1.2006 15:04",
	"2.1.2006",
}

// ParseTimestamp parses a free-form timestamp. Strings without a zone are
// read in loc. It never fails loudly: anything unparsable gives ok=false.
func ParseTimestamp(value string, loc *time.Location) (t time.Time, ok bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	if loc == nil {
		loc = time.UTC
	}

	// dateparse has panicked on malformed input in the past.
	defer func() {
		if r := recover(); r != nil {
			t, ok = time.Time{}, false
		}
	}()

	parsed, err := dateparse.ParseIn(value, loc)
	if err == nil {
		return parsed, true
	}
	for _, layout := range dayFirstLayouts {
		if parsed, err := time.ParseInLocation(layout, value, loc); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// DurationSeconds returns dropoff - pickup in seconds, or nil when either
// timestamp is unparsable or the elapsed time is not strictly positive.
func DurationSeconds(pickup, dropoff string, loc *time.Location) *float64 {
	start, ok := ParseTimestamp(pickup, loc)
	if !ok {
		return nil
	}
	end, ok := ParseTimestamp(dropoff, loc)
	if !ok {
		return nil
	}

	seconds := end.Sub(start).Seconds()
	if seconds <= 0 {
		return nil
	}
	return &seconds
}
