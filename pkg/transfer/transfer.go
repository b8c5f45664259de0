// Package transfer runs trip batches through enrichment on a worker pool.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/cleaner"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/converter"
)

// ErrAborted is returned when error thresholds stop a run early
var ErrAborted = errors.New("batch run aborted after error threshold")

// TransferManager fans batch jobs out to a pool of workers
type TransferManager struct {
	dataCleaner   *cleaner.DataCleaner
	typeConverter *converter.TypeConverter
	source        RawTripReader
	store         TripLoader
	verifier      *Verifier
	errorHandler  *ErrorHandler
	metrics       *TransferMetrics
	logger        *zap.Logger
	workerCount   int
	maxRetries    int
	retryDelay    time.Duration
	pageSize      int
	loadLock      sync.Mutex
}

// NewTransferManager creates a new transfer manager. source and store are
// optional; metrics may be nil.
func NewTransferManager(
	dataCleaner *cleaner.DataCleaner,
	typeConverter *converter.TypeConverter,
	source RawTripReader,
	store TripLoader,
	metrics *TransferMetrics,
	logger *zap.Logger,
) (*TransferManager, error) {
	if dataCleaner == nil {
		return nil, errors.New("data cleaner cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if typeConverter == nil {
		typeConverter = converter.NewTypeConverter(logger.Named("converter"))
	}
	if metrics == nil {
		metrics = NewTransferMetrics(logger, nil)
	}

	tm := &TransferManager{
		dataCleaner:   dataCleaner,
		typeConverter: typeConverter,
		source:        source,
		store:         store,
		metrics:       metrics,
		logger:        logger,
		workerCount:   calculateOptimalWorkerCount(),
		maxRetries:    3,
		retryDelay:    time.Second,
		pageSize:      10000,
	}
	tm.errorHandler = NewErrorHandler(logger.Named("errors"), tm.maxRetries)

	tm.verifier = NewVerifier(typeConverter, dataCleaner.Config(), logger.Named("verifier"))

	return tm, nil
}

// WithWorkerCount sets the number of worker goroutines
func (tm *TransferManager) WithWorkerCount(count int) *TransferManager {
	if count > 0 {
		tm.workerCount = count
	}
	return tm
}

// WithRetry sets how often and after what pause a transient failure is
// retried
func (tm *TransferManager) WithRetry(attempts int, delay time.Duration) *TransferManager {
	if attempts >= 0 {
		tm.maxRetries = attempts
		tm.errorHandler = NewErrorHandler(tm.logger.Named("errors"), attempts)
	}
	if delay >= 0 {
		tm.retryDelay = delay
	}
	return tm
}

// WithPageSize sets how many rows a remote read fetches between progress logs
func (tm *TransferManager) WithPageSize(size int) *TransferManager {
	if size > 0 {
		tm.pageSize = size
	}
	return tm
}

func (tm *TransferManager) newWorker(id int) *Worker {
	return NewWorker(
		id,
		tm.dataCleaner,
		tm.typeConverter,
		tm.source,
		tm.store,
		tm.verifier,
		tm.errorHandler,
		tm.logger,
	).WithPageSize(tm.pageSize).
		WithRetryDelay(tm.retryDelay).
		WithLoadLock(&tm.loadLock)
}

// Run processes every job and returns the run summary. Jobs run in
// priority order; each job is independent of the others.
func (tm *TransferManager) Run(ctx context.Context, jobs []BatchJob) (*TransferSummary, error) {
	if len(jobs) == 0 {
		return nil, errors.New("no batch jobs provided")
	}

	queued := make([]BatchJob, len(jobs))
	for i, job := range jobs {
		queued[i] = job.WithMaxRetries(tm.maxRetries)
	}
	sort.SliceStable(queued, func(i, j int) bool {
		return queued[i].Priority > queued[j].Priority
	})

	workerCount := tm.workerCount
	if workerCount > len(queued) {
		workerCount = len(queued)
	}

	tm.logger.Info("Starting batch run",
		zap.Int("jobs", len(queued)),
		zap.Int("workers", workerCount))

	summary := NewTransferSummary()

	jobQueue := make(chan BatchJob, len(queued))
	for _, job := range queued {
		jobQueue <- job
	}
	close(jobQueue)

	resultQueue := make(chan TransferResult, len(queued))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func(worker *Worker) {
			defer wg.Done()
			worker.Start(runCtx, jobQueue, resultQueue)
		}(tm.newWorker(i))
	}

	go func() {
		wg.Wait()
		close(resultQueue)
	}()

	aborted := false
	for result := range resultQueue {
		tm.metrics.RecordResult(result)
		summary.AddResult(result)

		if !result.Success && !aborted && tm.errorHandler.ShouldAbort() {
			tm.logger.Error("Aborting batch run due to error threshold",
				zap.String("input", result.Input))
			aborted = true
			cancel()
		}
	}

	summary.Complete()
	tm.metrics.Complete()

	if skipped := len(queued) - summary.TotalJobs; skipped > 0 {
		tm.logger.Warn("Jobs not processed", zap.Int("skipped", skipped))
	}

	tm.logger.Info("Batch run completed",
		zap.Int("successfulJobs", summary.SuccessfulJobs),
		zap.Int("failedJobs", summary.FailedJobs),
		zap.Int64("rowsRead", summary.TotalRowsRead),
		zap.Int64("rowsClean", summary.TotalRowsClean),
		zap.Duration("duration", summary.Duration))

	switch {
	case aborted:
		return summary, ErrAborted
	case ctx.Err() != nil:
		return summary, fmt.Errorf("batch run cancelled: %w", ctx.Err())
	}
	return summary, nil
}

// RunOne processes a single job on a dedicated worker
func (tm *TransferManager) RunOne(ctx context.Context, job BatchJob) TransferResult {
	result := tm.newWorker(-1).ProcessJob(ctx, job.WithMaxRetries(tm.maxRetries))
	tm.metrics.RecordResult(result)
	return result
}

// GetMetrics returns the transfer metrics
func (tm *TransferManager) GetMetrics() *TransferMetrics {
	return tm.metrics
}

// GetErrorSummary returns a summary of errors
func (tm *TransferManager) GetErrorSummary() map[ErrorCategory]int {
	return tm.errorHandler.GetErrorSummary()
}

// GenerateReport generates a plain-text run report
func (tm *TransferManager) GenerateReport() string {
	return tm.metrics.GenerateMetricsReport()
}

// calculateOptimalWorkerCount sizes the pool from the CPU count. Workers
// are CPU bound during enrichment and share one store connection pool.
func calculateOptimalWorkerCount() int {
	workerCount := runtime.NumCPU()
	if workerCount < 1 {
		workerCount = 1
	} else if workerCount > 8 {
		workerCount = 8
	}
	return workerCount
}
