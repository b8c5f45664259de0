package transfer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/cleaner"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/converter"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/model"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/tripio"
)

// RawTripReader reads every raw trip of a remote source in pages
type RawTripReader interface {
	ReadAll(ctx context.Context, batchSize int) ([]model.RawTrip, error)
}

// TripLoader is the part of the trip store a worker loads into
type TripLoader interface {
	CountTrips(ctx context.Context) (int64, error)
	EnsureSchema(ctx context.Context) error
	LoadTrips(ctx context.Context, trips []model.StoredTrip) (int64, error)
	RecordCleaningOperations(ctx context.Context, ops []model.CleaningOperation) error
}

// WorkerState represents the current state of a worker
type WorkerState string

const (
	WorkerStateIdle      WorkerState = "idle"
	WorkerStateWorking   WorkerState = "working"
	WorkerStateCompleted WorkerState = "completed"
)

// Worker runs batch jobs: read, enrich, write outputs, load, verify
type Worker struct {
	ID            int
	dataCleaner   *cleaner.DataCleaner
	typeConverter *converter.TypeConverter
	source        RawTripReader
	store         TripLoader
	verifier      *Verifier
	errorHandler  *ErrorHandler
	logger        *zap.Logger
	state         WorkerState
	currentJob    *BatchJob
	pageSize      int
	retryDelay    time.Duration
	loadLock      *sync.Mutex
	stateLock     sync.RWMutex
}

// NewWorker creates a new worker. source and store may be nil when no job
// needs them.
func NewWorker(
	id int,
	dataCleaner *cleaner.DataCleaner,
	typeConverter *converter.TypeConverter,
	source RawTripReader,
	store TripLoader,
	verifier *Verifier,
	errorHandler *ErrorHandler,
	logger *zap.Logger,
) *Worker {
	return &Worker{
		ID:            id,
		dataCleaner:   dataCleaner,
		typeConverter: typeConverter,
		source:        source,
		store:         store,
		verifier:      verifier,
		errorHandler:  errorHandler,
		logger:        logger.With(zap.Int("workerID", id)),
		state:         WorkerStateIdle,
		pageSize:      10000,
		retryDelay:    time.Second,
		loadLock:      &sync.Mutex{},
	}
}

// WithPageSize sets how many rows a remote read fetches between progress logs
func (w *Worker) WithPageSize(pageSize int) *Worker {
	if pageSize > 0 {
		w.pageSize = pageSize
	}
	return w
}

// WithRetryDelay sets the pause before a stage is retried
func (w *Worker) WithRetryDelay(delay time.Duration) *Worker {
	w.retryDelay = delay
	return w
}

// WithLoadLock shares the lock that serialises loads into the trip store.
// Workers of one pool must share it for row count checks to hold.
func (w *Worker) WithLoadLock(lock *sync.Mutex) *Worker {
	if lock != nil {
		w.loadLock = lock
	}
	return w
}

// GetState returns the current state of the worker
func (w *Worker) GetState() WorkerState {
	w.stateLock.RLock()
	defer w.stateLock.RUnlock()
	return w.state
}

func (w *Worker) setState(state WorkerState) {
	w.stateLock.Lock()
	defer w.stateLock.Unlock()

	prevState := w.state
	w.state = state

	if prevState != state {
		w.logger.Debug("Worker state changed",
			zap.String("from", string(prevState)),
			zap.String("to", string(state)))
	}
}

// GetCurrentJob returns the job currently being processed
func (w *Worker) GetCurrentJob() *BatchJob {
	w.stateLock.RLock()
	defer w.stateLock.RUnlock()
	return w.currentJob
}

func (w *Worker) setCurrentJob(job *BatchJob) {
	w.stateLock.Lock()
	defer w.stateLock.Unlock()
	w.currentJob = job
}

// Start processes jobs until the channel closes or ctx is cancelled
func (w *Worker) Start(ctx context.Context, jobs <-chan BatchJob, results chan<- TransferResult) {
	w.logger.Debug("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Worker stopping due to context cancellation")
			w.setState(WorkerStateCompleted)
			return

		case job, ok := <-jobs:
			if !ok {
				w.setState(WorkerStateCompleted)
				return
			}

			result := w.ProcessJob(ctx, job)

			select {
			case results <- result:
			case <-ctx.Done():
				w.logger.Warn("Context cancelled while sending result",
					zap.String("input", job.Name()))
				w.setState(WorkerStateCompleted)
				return
			}
		}
	}
}

// ProcessJob runs a single batch job
func (w *Worker) ProcessJob(ctx context.Context, job BatchJob) TransferResult {
	w.setCurrentJob(&job)
	w.setState(WorkerStateWorking)
	defer func() {
		w.setCurrentJob(nil)
		w.setState(WorkerStateIdle)
	}()

	result := NewTransferResult(job, w.ID)

	w.logger.Info("Starting batch",
		zap.String("jobID", job.ID),
		zap.String("input", job.Name()),
		zap.String("source", string(job.Source)))

	success := w.runBatch(ctx, job, result)
	result.Complete(success)

	if success {
		w.logger.Info("Batch completed successfully",
			zap.String("input", job.Name()),
			zap.Int64("rowsRead", result.RowsRead),
			zap.Int64("rowsClean", result.RowsClean),
			zap.Int64("rowsLoaded", result.RowsLoaded),
			zap.Duration("duration", result.Duration))
	} else {
		w.logger.Warn("Batch failed",
			zap.String("input", job.Name()),
			zap.Int("errors", len(result.Errors)),
			zap.Duration("duration", result.Duration))
	}

	return *result
}

// runBatch executes the stages of one job and reports success
func (w *Worker) runBatch(ctx context.Context, job BatchJob, result *TransferResult) bool {
	// Step 1: Read raw trips
	var raws []model.RawTrip
	err := w.withRetry(ctx, job, StageRead, func() error {
		var readErr error
		raws, readErr = w.readTrips(ctx, job)
		return readErr
	})
	if err != nil {
		w.fail(job, result, StageRead, err)
		return false
	}
	result.RowsRead = int64(len(raws))

	// Step 2: Enrich, exclude and flag
	batch := w.dataCleaner.CleanBatch(job.ID, raws)
	result.RowsClean = int64(batch.Log.RowsClean)
	result.Suspicious = batch.Suspicious
	result.CleaningOperations = len(batch.Operations)
	result.Excluded = batch.Log.Excluded

	// Step 3: Write the enriched CSV and cleaning log
	if err := tripio.WriteOutputs(job.OutputCSV, job.LogPath, batch.Trips, batch.Log); err != nil {
		w.fail(job, result, StageWrite, err)
		return false
	}

	// Step 4: Optionally load into the trip store
	var counts *LoadCounts
	if job.Load {
		var loadErr error
		counts, loadErr = w.load(ctx, batch)
		if loadErr != nil {
			w.fail(job, result, StageLoad, loadErr)
			return false
		}
		result.RowsLoaded = counts.Loaded
	}

	// Step 5: Verify outputs and loaded counts
	if w.verifier != nil {
		report, err := w.verifier.GenerateVerificationReport(job, batch.Log, counts)
		if err != nil {
			result.AddWarning(fmt.Sprintf("Verification failed with error: %v", err))
		} else {
			result.Verification = report
			if !report.Passed() {
				result.AddWarning(fmt.Sprintf(
					"Verification failed: output=%d expected=%d integrityIssues=%d stored=%d",
					report.OutputRows, report.ExpectedRows, len(report.IntegrityIssues), report.StoredAfter))
			}
		}
	}

	return !result.HasErrors()
}

// readTrips reads the raw trips of a job from its source
func (w *Worker) readTrips(ctx context.Context, job BatchJob) ([]model.RawTrip, error) {
	switch job.Source {
	case SourceFile:
		return tripio.ReadRawTripsFile(job.Input, w.typeConverter)
	case SourceSnowflake:
		if w.source == nil {
			return nil, errors.New("snowflake source is not configured")
		}
		return w.source.ReadAll(ctx, w.pageSize)
	default:
		return nil, fmt.Errorf("unknown source %q", job.Source)
	}
}

// load stores the cleaning audit and the retained trips of a batch. The
// audit goes first so a failed audit leaves no trips behind. The stored
// row count is taken before and after under the load lock.
func (w *Worker) load(ctx context.Context, batch *cleaner.BatchResult) (*LoadCounts, error) {
	if w.store == nil {
		return nil, errors.New("no trip store configured")
	}

	if err := w.store.EnsureSchema(ctx); err != nil {
		return nil, err
	}

	clean := batch.CleanTrips()
	rows := make([]model.StoredTrip, len(clean))
	for i, t := range clean {
		rows[i] = model.FromEnriched("", t)
	}

	w.loadLock.Lock()
	defer w.loadLock.Unlock()

	before, err := w.store.CountTrips(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count stored trips: %w", err)
	}

	if err := w.store.RecordCleaningOperations(ctx, batch.Operations); err != nil {
		return nil, err
	}

	loaded, err := w.store.LoadTrips(ctx, rows)
	if err != nil {
		return nil, err
	}

	after, err := w.store.CountTrips(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count stored trips: %w", err)
	}

	return &LoadCounts{Before: before, Loaded: loaded, After: after}, nil
}

// withRetry runs fn and retries it while the error handler allows
func (w *Worker) withRetry(ctx context.Context, job BatchJob, stage Stage, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}

		record := NewErrorRecord(err, w.errorHandler.CategorizeError(err)).
			WithJob(job).
			WithStage(stage).
			WithRetry(attempt)
		if attempt >= job.MaxRetries || !w.errorHandler.ShouldRetry(record) {
			return err
		}
		w.errorHandler.RecordError(record)

		w.logger.Warn("Retrying stage",
			zap.String("input", job.Name()),
			zap.String("stage", string(stage)),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.retryDelay):
		}
	}
}

// fail records a stage failure on the result
func (w *Worker) fail(job BatchJob, result *TransferResult, stage Stage, err error) {
	record := NewErrorRecord(err, w.errorHandler.CategorizeError(err)).
		WithJob(job).
		WithStage(stage).
		WithRetry(result.RetryCount)
	w.errorHandler.HandleError(record)
	result.AddError(record)
}
