package transfer

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/model"
)

// Collectors are the Prometheus series exported by the batch pipeline
type Collectors struct {
	RowsRead      prometheus.Counter
	RowsClean     prometheus.Counter
	RowsExcluded  *prometheus.CounterVec
	RowsLoaded    prometheus.Counter
	Suspicious    prometheus.Counter
	CleaningOps   prometheus.Counter
	Batches       *prometheus.CounterVec
	BatchDuration prometheus.Histogram
}

// NewCollectors registers the pipeline series with reg
func NewCollectors(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		RowsRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "tripclean_rows_read_total",
			Help: "Raw trip records read",
		}),
		RowsClean: factory.NewCounter(prometheus.CounterOpts{
			Name: "tripclean_rows_clean_total",
			Help: "Trip records retained after exclusion rules",
		}),
		RowsExcluded: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tripclean_rows_excluded_total",
			Help: "Trip records excluded, by reason",
		}, []string{"reason"}),
		RowsLoaded: factory.NewCounter(prometheus.CounterOpts{
			Name: "tripclean_rows_loaded_total",
			Help: "Enriched trips loaded into the trip store",
		}),
		Suspicious: factory.NewCounter(prometheus.CounterOpts{
			Name: "tripclean_suspicious_total",
			Help: "Retained trips flagged with an outlier speed",
		}),
		CleaningOps: factory.NewCounter(prometheus.CounterOpts{
			Name: "tripclean_cleaning_operations_total",
			Help: "Values backfilled during enrichment",
		}),
		Batches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tripclean_batches_total",
			Help: "Batch jobs finished, by status",
		}, []string{"status"}),
		BatchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tripclean_batch_duration_seconds",
			Help:    "Wall time of one batch job",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~163s
		}),
	}
}

func (c *Collectors) observe(result TransferResult) {
	status := "failed"
	if result.Success {
		status = "succeeded"
	}
	c.Batches.WithLabelValues(status).Inc()
	c.BatchDuration.Observe(result.Duration.Seconds())
	if !result.Success {
		return
	}

	c.RowsRead.Add(float64(result.RowsRead))
	c.RowsClean.Add(float64(result.RowsClean))
	c.RowsLoaded.Add(float64(result.RowsLoaded))
	c.Suspicious.Add(float64(result.Suspicious))
	c.CleaningOps.Add(float64(result.CleaningOperations))
	for _, rc := range result.Excluded {
		c.RowsExcluded.WithLabelValues(string(rc.Reason)).Add(float64(rc.Count))
	}
}

// TransferMetrics tracks metrics for a batch run
type TransferMetrics struct {
	mu                sync.Mutex
	logger            *zap.Logger
	collectors        *Collectors
	StartTime         time.Time
	EndTime           time.Time
	SuccessfulJobs    int
	FailedJobs        int
	TotalRowsRead     int64
	TotalRowsClean    int64
	TotalRowsLoaded   int64
	TotalSuspicious   int
	TotalCleaningOps  int
	PeakMemoryUsage   int64
	Excluded          map[model.ExclusionReason]int
	ErrorCounts       map[ErrorCategory]int
	WorkerUtilization map[int]time.Duration
}

// NewTransferMetrics creates a new TransferMetrics instance. collectors may
// be nil when nothing is exported.
func NewTransferMetrics(logger *zap.Logger, collectors *Collectors) *TransferMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransferMetrics{
		logger:            logger,
		collectors:        collectors,
		StartTime:         time.Now(),
		Excluded:          make(map[model.ExclusionReason]int),
		ErrorCounts:       make(map[ErrorCategory]int),
		WorkerUtilization: make(map[int]time.Duration),
	}
}

// RecordResult records metrics for a finished job
func (tm *TransferMetrics) RecordResult(result TransferResult) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if result.Success {
		tm.SuccessfulJobs++
		tm.TotalRowsRead += result.RowsRead
		tm.TotalRowsClean += result.RowsClean
		tm.TotalRowsLoaded += result.RowsLoaded
		tm.TotalSuspicious += result.Suspicious
		tm.TotalCleaningOps += result.CleaningOperations
		for _, rc := range result.Excluded {
			tm.Excluded[rc.Reason] += rc.Count
		}
	} else {
		tm.FailedJobs++
		for _, err := range result.Errors {
			tm.ErrorCounts[err.Category]++
		}
	}

	tm.WorkerUtilization[result.WorkerID] += result.Duration
	tm.sampleMemory()

	if tm.collectors != nil {
		tm.collectors.observe(result)
	}

	tm.logger.Info("Batch completed",
		zap.String("input", result.Input),
		zap.Bool("success", result.Success),
		zap.Int64("rowsRead", result.RowsRead),
		zap.Int64("rowsClean", result.RowsClean),
		zap.Int64("rowsLoaded", result.RowsLoaded),
		zap.Duration("duration", result.Duration),
		zap.Int("worker", result.WorkerID))
}

// sampleMemory keeps the peak heap allocation seen so far
func (tm *TransferMetrics) sampleMemory() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)
	if alloc := int64(memStats.Alloc); alloc > tm.PeakMemoryUsage {
		tm.PeakMemoryUsage = alloc
	}
}

// Complete marks the run as complete
func (tm *TransferMetrics) Complete() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.EndTime = time.Now()
	tm.sampleMemory()

	tm.logger.Info("Batch run completed",
		zap.Duration("totalDuration", tm.duration()),
		zap.Int("successfulJobs", tm.SuccessfulJobs),
		zap.Int("failedJobs", tm.FailedJobs),
		zap.Int64("rowsRead", tm.TotalRowsRead),
		zap.Int64("rowsClean", tm.TotalRowsClean),
		zap.Float64("throughput", tm.throughput()))
}

func (tm *TransferMetrics) duration() time.Duration {
	if tm.EndTime.IsZero() {
		return time.Since(tm.StartTime)
	}
	return tm.EndTime.Sub(tm.StartTime)
}

// throughput is rows read per second
func (tm *TransferMetrics) throughput() float64 {
	seconds := tm.duration().Seconds()
	if seconds <= 0 {
		return 0
	}
	return float64(tm.TotalRowsRead) / seconds
}

// GenerateTransferSummary creates a TransferSummary from metrics
func (tm *TransferMetrics) GenerateTransferSummary() *TransferSummary {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	endTime := tm.EndTime
	if endTime.IsZero() {
		endTime = time.Now()
	}

	excluded := make(map[model.ExclusionReason]int, len(tm.Excluded))
	for reason, n := range tm.Excluded {
		excluded[reason] = n
	}
	categories := make(map[ErrorCategory]int, len(tm.ErrorCounts))
	for category, n := range tm.ErrorCounts {
		categories[category] = n
	}

	return &TransferSummary{
		TotalJobs:        tm.SuccessfulJobs + tm.FailedJobs,
		SuccessfulJobs:   tm.SuccessfulJobs,
		FailedJobs:       tm.FailedJobs,
		TotalRowsRead:    tm.TotalRowsRead,
		TotalRowsClean:   tm.TotalRowsClean,
		TotalRowsLoaded:  tm.TotalRowsLoaded,
		TotalSuspicious:  tm.TotalSuspicious,
		TotalCleaningOps: tm.TotalCleaningOps,
		Excluded:         excluded,
		ErrorCategories:  categories,
		Duration:         tm.duration(),
		StartTime:        tm.StartTime,
		EndTime:          endTime,
		Throughput:       tm.throughput(),
		PeakMemoryUsage:  tm.PeakMemoryUsage,
	}
}

// formatDuration formats a duration to a human-readable string
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// GenerateMetricsReport creates a plain-text report of the run
func (tm *TransferMetrics) GenerateMetricsReport() string {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	total := tm.SuccessfulJobs + tm.FailedJobs
	var sb strings.Builder

	fmt.Fprintf(&sb, `
Batch Run Report
================
Duration:                %s

Jobs
----
Total Jobs:              %d
Successful Jobs:         %d (%.1f%%)
Failed Jobs:             %d (%.1f%%)

Rows
----
Rows Read:               %d
Rows Clean:              %d
Rows Loaded:             %d
Suspicious Trips:        %d
Backfilled Values:       %d
Average Throughput:      %.2f rows/sec
Peak Memory Usage:       %.1f MB
`,
		formatDuration(tm.duration()),
		total,
		tm.SuccessfulJobs, percentage(tm.SuccessfulJobs, total),
		tm.FailedJobs, percentage(tm.FailedJobs, total),
		tm.TotalRowsRead,
		tm.TotalRowsClean,
		tm.TotalRowsLoaded,
		tm.TotalSuspicious,
		tm.TotalCleaningOps,
		tm.throughput(),
		float64(tm.PeakMemoryUsage)/(1024*1024),
	)

	if len(tm.Excluded) > 0 {
		sb.WriteString("\nExcluded Rows\n-------------\n")
		for _, reason := range model.ExclusionReasons {
			if n := tm.Excluded[reason]; n > 0 {
				fmt.Fprintf(&sb, "- %s: %d\n", reason, n)
			}
		}
	}

	if len(tm.ErrorCounts) > 0 {
		sb.WriteString("\nErrors\n------\n")
		categories := make([]ErrorCategory, 0, len(tm.ErrorCounts))
		for category := range tm.ErrorCounts {
			categories = append(categories, category)
		}
		sort.Slice(categories, func(i, j int) bool { return categories[i] < categories[j] })
		for _, category := range categories {
			fmt.Fprintf(&sb, "- %s: %d\n", category, tm.ErrorCounts[category])
		}
	}

	return sb.String()
}

// percentage safely calculates a percentage, avoiding division by zero
func percentage(value, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(value) / float64(total) * 100
}
