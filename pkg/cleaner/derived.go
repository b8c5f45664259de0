// pkg/cleaner/derived.go
package cleaner

// DerivedMetrics are the per-trip ratios computed after backfilling.
type DerivedMetrics struct {
	// SpeedKmh is the reported speed, nil outside (0, MaxSpeedKmh].
	SpeedKmh *float64
	// RawSpeedKmh is the speed before clamping, nil only when it cannot be
	// computed. The exclusion rules look at this one.
	RawSpeedKmh *float64
	// FarePerKm is nil outside (0, MaxFarePerKm].
	FarePerKm *float64
}

// ComputeDerived computes speed and fare per km from effective distance
// (miles), duration (seconds) and fare. Values outside the plausibility
// bounds are treated as estimation artifacts and nulled, not flagged.
func ComputeDerived(distanceMiles, durationSec, fare *float64, cfg Config) DerivedMetrics {
	var m DerivedMetrics

	if distanceMiles != nil && durationSec != nil && *durationSec > 0 {
		km := *distanceMiles * cfg.KmPerMile
		hours := *durationSec / 3600
		raw := km / hours
		m.RawSpeedKmh = &raw
		if raw > 0 && raw <= cfg.MaxSpeedKmh {
			speed := raw
			m.SpeedKmh = &speed
		}
	}

	if fare != nil && distanceMiles != nil && *distanceMiles != 0 {
		km := *distanceMiles * cfg.KmPerMile
		fpk := *fare / km
		if fpk > 0 && fpk <= cfg.MaxFarePerKm {
			m.FarePerKm = &fpk
		}
	}

	return m
}
