package transfer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/tripio"
)

// Action defines the recommended action after an error
type Action int

const (
	// ActionContinue indicates processing should continue despite the error
	ActionContinue Action = iota
	// ActionRetry indicates the failed stage should be retried
	ActionRetry
	// ActionSkipBatch indicates the current batch should be given up
	ActionSkipBatch
	// ActionAbort indicates the whole run should be aborted
	ActionAbort
)

// String returns a string representation of the action
func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "Continue"
	case ActionRetry:
		return "Retry"
	case ActionSkipBatch:
		return "SkipBatch"
	case ActionAbort:
		return "Abort"
	default:
		return fmt.Sprintf("Unknown(%d)", a)
	}
}

// ErrorCategory defines categories of errors during a batch run
type ErrorCategory int

const (
	// Error categories with increasing severity
	ErrorCategoryNone ErrorCategory = iota
	ErrorCategoryWarning
	ErrorCategoryDataConversion
	ErrorCategoryValidation
	ErrorCategoryBatchLevel
	ErrorCategoryConnectionLevel
	ErrorCategorySystemLevel
	ErrorCategoryCritical
)

// String returns a string representation of the error category
func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryNone:
		return "None"
	case ErrorCategoryWarning:
		return "Warning"
	case ErrorCategoryDataConversion:
		return "DataConversion"
	case ErrorCategoryValidation:
		return "Validation"
	case ErrorCategoryBatchLevel:
		return "BatchLevel"
	case ErrorCategoryConnectionLevel:
		return "ConnectionLevel"
	case ErrorCategorySystemLevel:
		return "SystemLevel"
	case ErrorCategoryCritical:
		return "Critical"
	default:
		return fmt.Sprintf("Unknown(%d)", ec)
	}
}

// Stage names the step of a batch that failed
type Stage string

const (
	StageRead   Stage = "read"
	StageClean  Stage = "clean"
	StageWrite  Stage = "write"
	StageLoad   Stage = "load"
	StageVerify Stage = "verify"
)

// ErrorRecord represents a single error during a batch run
type ErrorRecord struct {
	Category    ErrorCategory
	JobID       string
	Input       string
	Stage       Stage
	Error       error
	Message     string // Derived from Error but stored for serialization
	Timestamp   time.Time
	RetryCount  int
	Recoverable bool
}

// NewErrorRecord creates a new error record with current timestamp
func NewErrorRecord(err error, category ErrorCategory) ErrorRecord {
	record := ErrorRecord{
		Category:    category,
		Error:       err,
		Timestamp:   time.Now(),
		Recoverable: category < ErrorCategoryBatchLevel || category == ErrorCategoryConnectionLevel,
	}

	if err != nil {
		record.Message = err.Error()
	}

	return record
}

// WithJob adds job information to the error record
func (r ErrorRecord) WithJob(job BatchJob) ErrorRecord {
	r.JobID = job.ID
	r.Input = job.Name()
	return r
}

// WithStage records the stage that failed
func (r ErrorRecord) WithStage(stage Stage) ErrorRecord {
	r.Stage = stage
	return r
}

// WithRetry sets retry information
func (r ErrorRecord) WithRetry(retryCount int) ErrorRecord {
	r.RetryCount = retryCount
	return r
}

// String returns a formatted error message
func (r ErrorRecord) String() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] ", r.Category))

	if r.Input != "" {
		sb.WriteString(fmt.Sprintf("Input: %s ", r.Input))
	}

	if r.Stage != "" {
		sb.WriteString(fmt.Sprintf("Stage: %s ", r.Stage))
	}

	if r.Error != nil {
		sb.WriteString(fmt.Sprintf("Error: %s", r.Error.Error()))
	} else if r.Message != "" {
		sb.WriteString(fmt.Sprintf("Error: %s", r.Message))
	}

	if r.RetryCount > 0 {
		sb.WriteString(fmt.Sprintf(" (Retry: %d)", r.RetryCount))
	}

	return sb.String()
}

// ErrorHandler manages error handling during a batch run
type ErrorHandler struct {
	logger          *zap.Logger
	errorThresholds map[ErrorCategory]int
	errorCounts     map[ErrorCategory]int
	sampleErrors    map[ErrorCategory][]ErrorRecord
	inputErrors     map[string]int
	maxRetries      int
	maxSamples      int
	mu              sync.Mutex
}

// NewErrorHandler creates a new error handler. maxRetries bounds retries of
// recoverable errors.
func NewErrorHandler(logger *zap.Logger, maxRetries int) *ErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &ErrorHandler{
		logger: logger,
		errorThresholds: map[ErrorCategory]int{
			ErrorCategoryWarning:         1000,
			ErrorCategoryDataConversion:  100,
			ErrorCategoryValidation:      100,
			ErrorCategoryBatchLevel:      50,
			ErrorCategoryConnectionLevel: 5,
			ErrorCategorySystemLevel:     1,
			ErrorCategoryCritical:        1,
		},
		errorCounts:  make(map[ErrorCategory]int),
		sampleErrors: make(map[ErrorCategory][]ErrorRecord),
		inputErrors:  make(map[string]int),
		maxRetries:   maxRetries,
		maxSamples:   5,
	}
}

// CategorizeError determines the category of an error
func (eh *ErrorHandler) CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}

	var (
		category ErrorCategory
		parseErr *csv.ParseError
		pathErr  *fs.PathError
		msg      = strings.ToLower(err.Error())
	)

	switch {
	case errors.Is(err, context.Canceled):
		category = ErrorCategoryCritical

	case errors.Is(err, context.DeadlineExceeded):
		category = ErrorCategoryConnectionLevel

	case errors.Is(err, tripio.ErrNoHeader), errors.As(err, &parseErr):
		category = ErrorCategoryDataConversion

	case errors.Is(err, fs.ErrNotExist):
		category = ErrorCategoryBatchLevel

	case errors.Is(err, fs.ErrPermission):
		category = ErrorCategorySystemLevel

	case errors.As(err, &pathErr):
		category = ErrorCategoryBatchLevel

	case strings.Contains(msg, "connection") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "eof"):
		category = ErrorCategoryConnectionLevel

	case strings.Contains(msg, "convert") ||
		strings.Contains(msg, "parse") ||
		strings.Contains(msg, "unmarshal"):
		category = ErrorCategoryDataConversion

	case strings.Contains(msg, "validat") ||
		strings.Contains(msg, "constraint") ||
		strings.Contains(msg, "invalid") ||
		strings.Contains(msg, "missing required"):
		category = ErrorCategoryValidation

	case strings.Contains(msg, "disk") ||
		strings.Contains(msg, "memory") ||
		strings.Contains(msg, "permission"):
		category = ErrorCategorySystemLevel

	case strings.Contains(msg, "fatal") ||
		strings.Contains(msg, "panic"):
		category = ErrorCategoryCritical

	default:
		category = ErrorCategoryBatchLevel
	}

	eh.logger.Debug("Categorized error",
		zap.String("error", err.Error()),
		zap.String("category", category.String()))

	return category
}

// HandleError records an error and determines the action to take
func (eh *ErrorHandler) HandleError(record ErrorRecord) Action {
	eh.RecordError(record)

	switch record.Category {
	case ErrorCategoryNone, ErrorCategoryWarning:
		return ActionContinue

	case ErrorCategoryDataConversion, ErrorCategoryValidation, ErrorCategoryBatchLevel:
		return ActionSkipBatch

	case ErrorCategoryConnectionLevel:
		if eh.ShouldRetry(record) {
			eh.logger.Warn("Retrying after connection error",
				zap.String("input", record.Input),
				zap.String("stage", string(record.Stage)),
				zap.Int("retry", record.RetryCount+1),
				zap.String("error", record.Message))
			return ActionRetry
		}
		return ActionSkipBatch

	case ErrorCategorySystemLevel, ErrorCategoryCritical:
		eh.logger.Error("Critical error during batch run",
			zap.String("category", record.Category.String()),
			zap.String("error", record.Message))
		return ActionAbort

	default:
		return ActionContinue
	}
}

// ShouldRetry determines if the failed stage should be retried
func (eh *ErrorHandler) ShouldRetry(record ErrorRecord) bool {
	if record.RetryCount >= eh.maxRetries {
		return false
	}
	// Loads are not idempotent once rows have been committed.
	if record.Stage == StageLoad {
		return false
	}
	return record.Recoverable &&
		(record.Category == ErrorCategoryConnectionLevel || IsRetryableError(record.Error))
}

// ShouldAbort reports whether recorded errors warrant stopping the run
func (eh *ErrorHandler) ShouldAbort() bool {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	for _, category := range []ErrorCategory{
		ErrorCategoryCritical,
		ErrorCategorySystemLevel,
		ErrorCategoryConnectionLevel,
	} {
		if count := eh.errorCounts[category]; count >= eh.errorThresholds[category] {
			eh.logger.Error("Aborting run due to error threshold",
				zap.String("category", category.String()),
				zap.Int("errorCount", count),
				zap.Int("threshold", eh.errorThresholds[category]))
			return true
		}
	}

	return false
}

// RecordError saves an error occurrence
func (eh *ErrorHandler) RecordError(record ErrorRecord) {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	eh.errorCounts[record.Category]++

	samples := eh.sampleErrors[record.Category]
	if len(samples) < eh.maxSamples {
		eh.sampleErrors[record.Category] = append(samples, record)
	}

	if record.Input != "" {
		eh.inputErrors[record.Input]++
	}

	var logLevel zapcore.Level
	switch record.Category {
	case ErrorCategoryWarning, ErrorCategoryConnectionLevel, ErrorCategoryBatchLevel:
		logLevel = zap.WarnLevel
	case ErrorCategorySystemLevel, ErrorCategoryCritical:
		logLevel = zap.ErrorLevel
	default:
		logLevel = zap.InfoLevel
	}

	eh.logger.Log(logLevel, "Batch error",
		zap.String("category", record.Category.String()),
		zap.String("input", record.Input),
		zap.String("stage", string(record.Stage)),
		zap.String("error", record.Message),
		zap.Bool("recoverable", record.Recoverable),
		zap.Int("retryCount", record.RetryCount))
}

// GetErrorSummary returns error counts per category
func (eh *ErrorHandler) GetErrorSummary() map[ErrorCategory]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	summary := make(map[ErrorCategory]int, len(eh.errorCounts))
	for category, count := range eh.errorCounts {
		summary[category] = count
	}
	return summary
}

// GetErrorSamples returns sample errors for each category
func (eh *ErrorHandler) GetErrorSamples() map[ErrorCategory][]ErrorRecord {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	samples := make(map[ErrorCategory][]ErrorRecord, len(eh.sampleErrors))
	for category, records := range eh.sampleErrors {
		categorySamples := make([]ErrorRecord, len(records))
		copy(categorySamples, records)
		samples[category] = categorySamples
	}
	return samples
}

// GetInputErrorCounts returns error counts by input
func (eh *ErrorHandler) GetInputErrorCounts() map[string]int {
	eh.mu.Lock()
	defer eh.mu.Unlock()

	counts := make(map[string]int, len(eh.inputErrors))
	for input, count := range eh.inputErrors {
		counts[input] = count
	}
	return counts
}

// IsRetryableError checks if an error looks transient
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "temporary") ||
		strings.Contains(msg, "try again")
}
