// pkg/cleaner/cleaner.go
package cleaner

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/geo"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/model"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/stats"
)

// EnrichRecord turns one raw trip into an enriched trip. It is pure and
// deterministic; the returned operations describe every backfilled value
// (RowNumber and BatchID are left for the caller).
func EnrichRecord(raw model.RawTrip, cfg Config) (model.EnrichedTrip, []model.CleaningOperation) {
	var operations []model.CleaningOperation

	duration := DurationSeconds(raw.PickupDatetime, raw.DropoffDatetime, cfg.location())
	estimateKm := geo.DistanceKm(raw.PickupLat, raw.PickupLon, raw.DropoffLat, raw.DropoffLon, cfg.EarthRadiusKm)

	distance, op := backfillDistance(raw.TripDistance, estimateKm, cfg)
	if op != nil {
		operations = append(operations, *op)
	}

	fare, op := backfillFare(raw.FareAmount, distance, duration, cfg)
	if op != nil {
		operations = append(operations, *op)
	}

	derived := ComputeDerived(distance, duration, fare, cfg)

	trip := model.EnrichedTrip{
		Raw:           raw,
		TripDistance:  distance,
		FareAmount:    fare,
		DurationSec:   duration,
		DistanceKmEst: estimateKm,
		SpeedKmh:      derived.SpeedKmh,
		FarePerKm:     derived.FarePerKm,
		Exclusion:     Classify(&raw, duration, derived.RawSpeedKmh, cfg),
	}
	return trip, operations
}

// BatchResult is the outcome of cleaning one batch of raw trips
type BatchResult struct {
	BatchID    string
	Trips      []model.EnrichedTrip // Every input record, in input order
	Operations []model.CleaningOperation
	Log        model.CleaningLog
	Suspicious int
}

// CleanTrips returns the retained trips in input order
func (r *BatchResult) CleanTrips() []model.EnrichedTrip {
	clean := make([]model.EnrichedTrip, 0, r.Log.RowsClean)
	for _, t := range r.Trips {
		if !t.Excluded() {
			clean = append(clean, t)
		}
	}
	return clean
}

// Process enriches every record, flags speed outliers among the retained
// trips and builds the cleaning log.
func Process(batchID string, raws []model.RawTrip, cfg Config) *BatchResult {
	result := &BatchResult{
		BatchID: batchID,
		Trips:   make([]model.EnrichedTrip, len(raws)),
	}

	for i, raw := range raws {
		trip, ops := EnrichRecord(raw, cfg)
		for _, op := range ops {
			op.BatchID = batchID
			op.RowNumber = i
			result.Operations = append(result.Operations, op)
		}
		result.Trips[i] = trip
	}

	result.Suspicious = MarkSuspicious(result.Trips, cfg.AnomalyThreshold)
	result.Log = BuildCleaningLog(result.Trips)
	return result
}

// MarkSuspicious flags retained trips whose speed is a robust outlier and
// returns how many were flagged. Trips without a speed are not scored.
func MarkSuspicious(trips []model.EnrichedTrip, threshold float64) int {
	indexes := make([]int, 0, len(trips))
	speeds := make([]float64, 0, len(trips))
	for i := range trips {
		if trips[i].Excluded() || trips[i].SpeedKmh == nil {
			continue
		}
		indexes = append(indexes, i)
		speeds = append(speeds, *trips[i].SpeedKmh)
	}

	flagged := stats.FlagAnomalies(speeds, threshold)
	for _, j := range flagged {
		trips[indexes[j]].Suspicious = true
	}
	return len(flagged)
}

// BuildCleaningLog counts trips per exclusion reason. Reasons are listed in
// rule priority order and zero counts are omitted.
func BuildCleaningLog(trips []model.EnrichedTrip) model.CleaningLog {
	counts := make(map[model.ExclusionReason]int, len(model.ExclusionReasons))
	clean := 0
	for i := range trips {
		if trips[i].Excluded() {
			counts[trips[i].Exclusion]++
			continue
		}
		clean++
	}

	excluded := make([]model.ReasonCount, 0, len(model.ExclusionReasons))
	for _, reason := range model.ExclusionReasons {
		if n := counts[reason]; n > 0 {
			excluded = append(excluded, model.ReasonCount{Reason: reason, Count: n})
		}
	}

	return model.CleaningLog{
		RowsTotal: len(trips),
		RowsClean: clean,
		Excluded:  excluded,
	}
}

// DataCleaner runs batch enrichment with logging
type DataCleaner struct {
	config Config
	logger *zap.Logger
}

// NewDataCleaner creates a new DataCleaner instance
func NewDataCleaner(config Config, logger *zap.Logger) (*DataCleaner, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cleaner configuration: %w", err)
	}

	return &DataCleaner{
		config: config,
		logger: logger,
	}, nil
}

// Config returns the cleaner's configuration
func (c *DataCleaner) Config() Config {
	return c.config
}

// CleanBatch enriches a batch of raw trips and logs a summary
func (c *DataCleaner) CleanBatch(batchID string, raws []model.RawTrip) *BatchResult {
	start := time.Now()
	result := Process(batchID, raws, c.config)

	fields := []zap.Field{
		zap.String("batchID", batchID),
		zap.Int("rowsTotal", result.Log.RowsTotal),
		zap.Int("rowsClean", result.Log.RowsClean),
		zap.Int("backfilled", len(result.Operations)),
		zap.Int("suspicious", result.Suspicious),
		zap.Duration("duration", time.Since(start)),
	}
	for _, rc := range result.Log.Excluded {
		fields = append(fields, zap.Int("excluded."+string(rc.Reason), rc.Count))
	}
	c.logger.Info(fmt.Sprintf("clean rows %d / %d", result.Log.RowsClean, result.Log.RowsTotal), fields...)

	return result
}
