package transfer

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/model"
)

// SourceKind says where a batch reads its raw trips from
type SourceKind string

const (
	SourceFile      SourceKind = "file"
	SourceSnowflake SourceKind = "snowflake"
)

// BatchJob is one independent batch: one input enriched into one output
// CSV and one cleaning log
type BatchJob struct {
	ID         string     // Unique job identifier, also the cleaning batch id
	Source     SourceKind // Where raw trips come from
	Input      string     // File path, or table name for Snowflake
	OutputCSV  string     // Enriched CSV destination
	LogPath    string     // Cleaning log destination
	Load       bool       // Also load clean trips into the trip store
	Priority   int        // Job priority (higher = more important)
	CreatedAt  time.Time  // Job creation timestamp
	RetryCount int        // Number of retries attempted
	MaxRetries int        // Maximum allowed retries
}

// NewFileJob creates a job reading a raw CSV file
func NewFileJob(input, outputCSV, logPath string) BatchJob {
	return newJob(SourceFile, input, outputCSV, logPath)
}

// NewSnowflakeJob creates a job reading the configured Snowflake table
func NewSnowflakeJob(table, outputCSV, logPath string) BatchJob {
	return newJob(SourceSnowflake, table, outputCSV, logPath)
}

func newJob(source SourceKind, input, outputCSV, logPath string) BatchJob {
	return BatchJob{
		ID:         uuid.New().String(),
		Source:     source,
		Input:      input,
		OutputCSV:  outputCSV,
		LogPath:    logPath,
		Priority:   1,
		CreatedAt:  time.Now(),
		MaxRetries: 3,
	}
}

// WithLoad marks the job to load its clean trips into the store
func (j BatchJob) WithLoad(load bool) BatchJob {
	j.Load = load
	return j
}

// WithPriority sets the job priority and returns the modified job
func (j BatchJob) WithPriority(priority int) BatchJob {
	j.Priority = priority
	return j
}

// WithMaxRetries sets the maximum retry count and returns the modified job
func (j BatchJob) WithMaxRetries(maxRetries int) BatchJob {
	j.MaxRetries = maxRetries
	return j
}

// IsRetryable checks if the job can be retried
func (j BatchJob) IsRetryable() bool {
	return j.RetryCount < j.MaxRetries
}

// Retry increments the retry count and returns the modified job
func (j BatchJob) Retry() BatchJob {
	j.RetryCount++
	return j
}

// Name returns a short label for logs
func (j BatchJob) Name() string {
	if j.Source == SourceFile {
		return filepath.Base(j.Input)
	}
	return string(j.Source) + ":" + j.Input
}

// OutputPaths derives per-input output paths when several inputs share one
// output directory: <dir>/<input base>.enriched.csv and .cleaning_log.json.
func OutputPaths(dir, input string) (csvPath, logPath string) {
	base := filepath.Base(input)
	base = base[:len(base)-len(filepath.Ext(base))]
	return filepath.Join(dir, base+".enriched.csv"), filepath.Join(dir, base+".cleaning_log.json")
}

// TransferResult represents the result of one batch job
type TransferResult struct {
	JobID              string
	Input              string
	Source             SourceKind
	Success            bool
	RowsRead           int64
	RowsClean          int64
	RowsLoaded         int64
	Suspicious         int
	CleaningOperations int
	Excluded           []model.ReasonCount
	Verification       *VerificationReport
	Errors             []ErrorRecord
	Warnings           []string
	StartTime          time.Time
	EndTime            time.Time
	Duration           time.Duration
	RetryCount         int
	WorkerID           int
}

// NewTransferResult initializes a result for a job
func NewTransferResult(job BatchJob, workerID int) *TransferResult {
	return &TransferResult{
		JobID:      job.ID,
		Input:      job.Input,
		Source:     job.Source,
		StartTime:  time.Now(),
		RetryCount: job.RetryCount,
		WorkerID:   workerID,
		Errors:     make([]ErrorRecord, 0),
		Warnings:   make([]string, 0),
	}
}

// Complete marks the job as complete and calculates duration
func (r *TransferResult) Complete(success bool) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	r.Success = success
}

// AddError adds an error to the result
func (r *TransferResult) AddError(err ErrorRecord) {
	r.Errors = append(r.Errors, err)
	r.Success = false
}

// AddWarning adds a warning to the result
func (r *TransferResult) AddWarning(warning string) {
	r.Warnings = append(r.Warnings, warning)
}

// HasErrors checks if any errors occurred
func (r *TransferResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// RowsExcluded returns the number of excluded rows
func (r *TransferResult) RowsExcluded() int64 {
	return r.RowsRead - r.RowsClean
}

// TransferSummary represents the totals of a run
type TransferSummary struct {
	Inputs           []string
	TotalJobs        int
	SuccessfulJobs   int
	FailedJobs       int
	TotalRowsRead    int64
	TotalRowsClean   int64
	TotalRowsLoaded  int64
	TotalSuspicious  int
	TotalCleaningOps int
	Excluded         map[model.ExclusionReason]int
	ErrorCategories  map[ErrorCategory]int
	Duration         time.Duration
	StartTime        time.Time
	EndTime          time.Time
	Throughput       float64 // rows/second
	PeakMemoryUsage  int64
}

// NewTransferSummary initializes a new transfer summary
func NewTransferSummary() *TransferSummary {
	return &TransferSummary{
		Inputs:          make([]string, 0),
		StartTime:       time.Now(),
		Excluded:        make(map[model.ExclusionReason]int),
		ErrorCategories: make(map[ErrorCategory]int),
	}
}

// AddResult incorporates a job result into the summary
func (s *TransferSummary) AddResult(result TransferResult) {
	s.Inputs = append(s.Inputs, result.Input)
	s.TotalJobs++
	if !result.Success {
		s.FailedJobs++
		for _, err := range result.Errors {
			s.ErrorCategories[err.Category]++
		}
		return
	}

	s.SuccessfulJobs++
	s.TotalRowsRead += result.RowsRead
	s.TotalRowsClean += result.RowsClean
	s.TotalRowsLoaded += result.RowsLoaded
	s.TotalSuspicious += result.Suspicious
	s.TotalCleaningOps += result.CleaningOperations
	for _, rc := range result.Excluded {
		s.Excluded[rc.Reason] += rc.Count
	}
}

// Complete marks the run as complete and calculates throughput
func (s *TransferSummary) Complete() {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
	if s.Duration.Seconds() > 0 {
		s.Throughput = float64(s.TotalRowsRead) / s.Duration.Seconds()
	}
}

// SuccessRate returns the percentage of jobs that succeeded
func (s *TransferSummary) SuccessRate() float64 {
	if s.TotalJobs == 0 {
		return 0
	}
	return float64(s.SuccessfulJobs) / float64(s.TotalJobs) * 100
}
