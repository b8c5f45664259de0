// pkg/cleaner/operations.go
package cleaner

import (
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/converter"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/model"
)

// Backfill reasons recorded with each CleaningOperation
const (
	ReasonMissingDistance     = "missing_distance"
	ReasonNonPositiveDistance = "nonpositive_distance"
	ReasonMissingFare         = "missing_fare"
	ReasonNonPositiveFare     = "nonpositive_fare"
)

// needsBackfill reports whether a raw value must be replaced by an estimate
func needsBackfill(v *float64) bool {
	return v == nil || *v <= 0
}

// backfillDistance replaces a missing or non-positive distance with the
// great-circle estimate converted to miles. Without an estimate the raw
// value is kept.
func backfillDistance(raw, estimateKm *float64, cfg Config) (*float64, *model.CleaningOperation) {
	if !needsBackfill(raw) || estimateKm == nil {
		return raw, nil
	}

	miles := *estimateKm / cfg.KmPerMile
	reason := ReasonMissingDistance
	if raw != nil {
		reason = ReasonNonPositiveDistance
	}

	return &miles, &model.CleaningOperation{
		ColumnName:        model.ColTripDistance,
		OriginalValue:     originalValue(raw),
		NewValue:          converter.FormatFloat(&miles),
		CleaningOperation: model.OperationDistanceBackfill,
		CleaningReason:    reason,
	}
}

// backfillFare replaces a missing or non-positive fare with the linear
// estimate. Unknown distance or duration count as zero.
func backfillFare(raw, distanceMiles, durationSec *float64, cfg Config) (*float64, *model.CleaningOperation) {
	if !needsBackfill(raw) {
		return raw, nil
	}

	miles := 0.0
	if distanceMiles != nil && *distanceMiles > 0 {
		miles = *distanceMiles
	}
	seconds := 0.0
	if durationSec != nil {
		seconds = *durationSec
	}

	fare := EstimateFare(miles, seconds, cfg)
	reason := ReasonMissingFare
	if raw != nil {
		reason = ReasonNonPositiveFare
	}

	return &fare, &model.CleaningOperation{
		ColumnName:        model.ColFareAmount,
		OriginalValue:     originalValue(raw),
		NewValue:          converter.FormatFloat(&fare),
		CleaningOperation: model.OperationFareBackfill,
		CleaningReason:    reason,
	}
}

func originalValue(v *float64) *string {
	if v == nil {
		return nil
	}
	s := converter.FormatFloat(v)
	return &s
}
