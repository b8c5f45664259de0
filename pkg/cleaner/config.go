// pkg/cleaner/config.go
package cleaner

import (
	"errors"
	"time"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/geo"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/stats"
)

// Config holds the constants of the enrichment model. Every pure function in
// this package takes it explicitly so tests can vary any of them.
type Config struct {
	// Geometry
	EarthRadiusKm float64
	KmPerMile     float64

	// Fare model: BaseFare + PerKmRate*km + PerMinuteRate*minutes.
	// This is an approximation, not any city's real tariff.
	BaseFare      float64
	PerKmRate     float64
	PerMinuteRate float64
	FareDecimals  int32

	// Plausibility bounds for derived metrics
	MaxSpeedKmh  float64
	MaxFarePerKm float64

	// Robust z-score threshold for flagging suspicious speeds
	AnomalyThreshold float64

	// Location used for timestamps without an explicit zone
	Location *time.Location
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		EarthRadiusKm:    geo.EarthRadiusKm,
		KmPerMile:        geo.KmPerMile,
		BaseFare:         2.50,
		PerKmRate:        0.50,
		PerMinuteRate:    0.35,
		FareDecimals:     2,
		MaxSpeedKmh:      200,
		MaxFarePerKm:     50,
		AnomalyThreshold: stats.DefaultBatchThreshold,
		Location:         time.UTC,
	}
}

// Validate ensures the configuration can produce meaningful output
func (c Config) Validate() error {
	if c.EarthRadiusKm <= 0 {
		return errors.New("earth radius must be positive")
	}
	if c.KmPerMile <= 0 {
		return errors.New("km per mile must be positive")
	}
	if c.MaxSpeedKmh <= 0 || c.MaxFarePerKm <= 0 {
		return errors.New("plausibility bounds must be positive")
	}
	if c.AnomalyThreshold <= 0 {
		return errors.New("anomaly threshold must be positive")
	}
	if c.FareDecimals < 0 {
		return errors.New("fare decimals cannot be negative")
	}
	return nil
}

func (c Config) location() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}
