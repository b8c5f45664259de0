package transfer

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/cleaner"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/converter"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/model"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/tripio"
)

// LoadCounts are the stored row counts around one batch load. Before and
// After are taken while the load lock is held, so other batches cannot
// change the table in between.
type LoadCounts struct {
	Before int64
	Loaded int64
	After  int64
}

// IntegrityIssue is a value in the written output that breaks an
// enrichment guarantee
type IntegrityIssue struct {
	Row    int
	Column string
	Value  float64
	Issue  string
}

// VerificationReport contains the results of verifying one batch
type VerificationReport struct {
	Input            string
	OutputPath       string
	ExpectedRows     int64
	OutputRows       int64
	RowCountMatches  bool
	LogConsistent    bool
	LoadChecked      bool
	StoredBefore     int64
	StoredAfter      int64
	Loaded           int64
	LoadMatches      bool
	IntegrityIssues  []IntegrityIssue
	VerificationTime time.Time
	Duration         time.Duration
}

// Passed reports whether every check that ran succeeded
func (r *VerificationReport) Passed() bool {
	if !r.RowCountMatches || !r.LogConsistent || len(r.IntegrityIssues) > 0 {
		return false
	}
	return !r.LoadChecked || r.LoadMatches
}

// Verifier checks written outputs and loaded row counts
type Verifier struct {
	conv      *converter.TypeConverter
	cfg       cleaner.Config
	logger    *zap.Logger
	maxIssues int
}

// NewVerifier creates a new verifier
func NewVerifier(conv *converter.TypeConverter, cfg cleaner.Config, logger *zap.Logger) *Verifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if conv == nil {
		conv = converter.NewTypeConverter(logger)
	}
	return &Verifier{
		conv:      conv,
		cfg:       cfg,
		logger:    logger,
		maxIssues: 20,
	}
}

// VerifyRowCount checks that the store grew by exactly the loaded rows
func (v *Verifier) VerifyRowCount(counts LoadCounts) bool {
	matches := counts.After == counts.Before+counts.Loaded
	if matches {
		v.logger.Info("Row count verification successful",
			zap.Int64("loaded", counts.Loaded),
			zap.Int64("stored", counts.After))
	} else {
		v.logger.Warn("Row count mismatch",
			zap.Int64("before", counts.Before),
			zap.Int64("loaded", counts.Loaded),
			zap.Int64("after", counts.After),
			zap.Int64("difference", counts.Before+counts.Loaded-counts.After))
	}
	return matches
}

// VerifyCleaningLog checks that the per-reason counts add up
func VerifyCleaningLog(log model.CleaningLog) error {
	if log.RowsClean < 0 || log.RowsClean > log.RowsTotal {
		return fmt.Errorf("invalid cleaning log: %d clean of %d rows", log.RowsClean, log.RowsTotal)
	}
	for _, rc := range log.Excluded {
		if rc.Count <= 0 {
			return fmt.Errorf("invalid cleaning log: reason %s has count %d", rc.Reason, rc.Count)
		}
	}
	if excluded := log.ExcludedTotal(); excluded != log.RowsTotal-log.RowsClean {
		return fmt.Errorf("invalid cleaning log: %d excluded but %d rows dropped",
			excluded, log.RowsTotal-log.RowsClean)
	}
	return nil
}

// VerifyOutput re-reads an enriched CSV and checks its row count and value
// bounds
func (v *Verifier) VerifyOutput(path string, expectedRows int64) (int64, []IntegrityIssue, error) {
	trips, err := tripio.ReadEnrichedTripsFile(path, v.conv)
	if err != nil {
		return 0, nil, err
	}

	issues := make([]IntegrityIssue, 0)
	for i, t := range trips {
		issues = v.checkTrip(i, t, issues)
		if len(issues) >= v.maxIssues {
			break
		}
	}

	if int64(len(trips)) != expectedRows {
		v.logger.Warn("Output row count mismatch",
			zap.String("path", path),
			zap.Int64("expected", expectedRows),
			zap.Int("written", len(trips)))
	}
	return int64(len(trips)), issues, nil
}

// checkTrip appends the guarantees an output row breaks
func (v *Verifier) checkTrip(row int, t model.StoredTrip, issues []IntegrityIssue) []IntegrityIssue {
	add := func(column string, value float64, issue string) {
		issues = append(issues, IntegrityIssue{Row: row, Column: column, Value: value, Issue: issue})
	}

	if t.DurationSec == nil {
		add(model.ColDurationSec, 0, "retained trip without duration")
	} else if *t.DurationSec <= 0 {
		add(model.ColDurationSec, *t.DurationSec, "duration not positive")
	}
	if t.SpeedKmh != nil && (*t.SpeedKmh <= 0 || *t.SpeedKmh > v.cfg.MaxSpeedKmh) {
		add(model.ColSpeedKmh, *t.SpeedKmh, "speed outside plausibility bounds")
	}
	if t.FarePerKm != nil && (*t.FarePerKm <= 0 || *t.FarePerKm > v.cfg.MaxFarePerKm) {
		add(model.ColFarePerKm, *t.FarePerKm, "fare per km outside plausibility bounds")
	}
	if t.FareAmount != nil && *t.FareAmount < 0 {
		add(model.ColFareAmount, *t.FareAmount, "negative fare")
	}
	if t.TripDistance != nil && *t.TripDistance < 0 {
		add(model.ColTripDistance, *t.TripDistance, "negative distance")
	}
	return issues
}

// GenerateVerificationReport verifies one finished batch. load is nil when
// the batch was not loaded.
func (v *Verifier) GenerateVerificationReport(
	job BatchJob,
	log model.CleaningLog,
	load *LoadCounts,
) (*VerificationReport, error) {
	startTime := time.Now()
	report := &VerificationReport{
		Input:            job.Input,
		OutputPath:       job.OutputCSV,
		ExpectedRows:     int64(log.RowsClean),
		VerificationTime: startTime,
	}

	if err := VerifyCleaningLog(log); err != nil {
		v.logger.Warn("Cleaning log verification failed", zap.Error(err))
	} else {
		report.LogConsistent = true
	}

	written, issues, err := v.VerifyOutput(job.OutputCSV, report.ExpectedRows)
	if err != nil {
		return nil, fmt.Errorf("failed to verify output: %w", err)
	}
	report.OutputRows = written
	report.RowCountMatches = written == report.ExpectedRows
	report.IntegrityIssues = issues

	if load != nil {
		report.LoadChecked = true
		report.StoredBefore = load.Before
		report.StoredAfter = load.After
		report.Loaded = load.Loaded
		report.LoadMatches = v.VerifyRowCount(*load)
	}

	report.Duration = time.Since(startTime)

	v.logger.Info("Verification report completed",
		zap.String("input", job.Name()),
		zap.Duration("duration", report.Duration),
		zap.Bool("rowCountMatch", report.RowCountMatches),
		zap.Bool("logConsistent", report.LogConsistent),
		zap.Int("integrityIssues", len(report.IntegrityIssues)),
		zap.Bool("passed", report.Passed()))

	return report, nil
}
