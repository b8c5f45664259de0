package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/model"
)

// sqliteMaxBatch keeps inserts under SQLite's bound variable limit
const sqliteMaxBatch = 500

// cleaningOperationRow is the gorm mapping of a cleaning operation
type cleaningOperationRow struct {
	ID                uint `gorm:"primaryKey"`
	BatchID           string
	RowNumber         int
	ColumnName        string
	OriginalValue     *string
	NewValue          string
	CleaningOperation string
	CleaningReason    string
	CleanedAt         time.Time
}

func (cleaningOperationRow) TableName() string {
	return "cleaning_operations"
}

// GormStore is a TripStore over SQLite through gorm
type GormStore struct {
	db        *gorm.DB
	batchSize int
	logger    *zap.Logger
}

// OpenSQLite opens (or creates) a SQLite database file. dsn may also be an
// in-memory URI such as "file:trips?mode=memory&cache=shared".
func OpenSQLite(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.New(
			zap.NewStdLog(logger.Named("gorm")),
			gormlogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	return db, nil
}

// NewGormStore wraps db
func NewGormStore(db *gorm.DB, batchSize int, logger *zap.Logger) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if batchSize <= 0 {
		batchSize = 10000
	}
	return &GormStore{db: db, batchSize: batchSize, logger: logger}, nil
}

// EnsureSchema migrates the trips and cleaning_operations tables
func (s *GormStore) EnsureSchema(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&model.StoredTrip{}, &cleaningOperationRow{}); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	s.logger.Info("Ensured trips schema exists")
	return nil
}

// LoadTrips inserts trips in chunks, logging progress after each one
func (s *GormStore) LoadTrips(ctx context.Context, trips []model.StoredTrip) (int64, error) {
	assignRowIDs(trips)

	insertBatch := s.batchSize
	if insertBatch > sqliteMaxBatch {
		insertBatch = sqliteMaxBatch
	}

	var total int64
	for _, w := range chunks(len(trips), s.batchSize) {
		chunk := trips[w[0]:w[1]]
		result := s.db.WithContext(ctx).CreateInBatches(&chunk, insertBatch)
		if result.Error != nil {
			return total, fmt.Errorf("failed to load trips %d-%d: %w", w[0], w[1], result.Error)
		}
		total += result.RowsAffected
		s.logger.Info("Loaded rows", zap.Int64("rows", total), zap.Int("of", len(trips)))
	}
	return total, nil
}

// RecordCleaningOperations inserts audit records in one transaction
func (s *GormStore) RecordCleaningOperations(ctx context.Context, ops []model.CleaningOperation) error {
	if len(ops) == 0 {
		return nil
	}

	now := time.Now().UTC()
	rows := make([]cleaningOperationRow, len(ops))
	for i, op := range ops {
		cleanedAt := op.CleanedAt
		if cleanedAt.IsZero() {
			cleanedAt = now
		}
		rows[i] = cleaningOperationRow{
			BatchID:           op.BatchID,
			RowNumber:         op.RowNumber,
			ColumnName:        op.ColumnName,
			OriginalValue:     op.OriginalValue,
			NewValue:          op.NewValue,
			CleaningOperation: op.CleaningOperation,
			CleaningReason:    op.CleaningReason,
			CleanedAt:         cleanedAt,
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&rows, sqliteMaxBatch).Error
	})
	if err != nil {
		return fmt.Errorf("failed to record cleaning operations: %w", err)
	}

	s.logger.Info("Recorded cleaning operations", zap.Int("count", len(ops)))
	return nil
}

// CountTrips returns the number of stored trips
func (s *GormStore) CountTrips(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.StoredTrip{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count trips: %w", err)
	}
	return n, nil
}

// ListTrips returns a page of trips ordered by pickup time
func (s *GormStore) ListTrips(ctx context.Context, filter Filter, page Page) ([]model.StoredTrip, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}

	trips := []model.StoredTrip{}
	err := s.filtered(ctx, filter).
		Order(tripOrder).
		Limit(page.Limit).
		Offset(page.Offset).
		Find(&trips).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	return trips, nil
}

// Summary aggregates matching trips
func (s *GormStore) Summary(ctx context.Context, filter Filter) (Summary, error) {
	var row summaryRow
	if err := s.filtered(ctx, filter).Select(summarySelect).Scan(&row).Error; err != nil {
		return Summary{}, fmt.Errorf("failed to summarise trips: %w", err)
	}
	return row.summary(), nil
}

// PickupZones returns the non-null pickup zones of matching trips
func (s *GormStore) PickupZones(ctx context.Context, filter Filter) ([]string, error) {
	zones := []string{}
	err := s.filtered(ctx, filter).
		Where("pickup_zone IS NOT NULL").
		Order(tripOrder).
		Pluck("pickup_zone", &zones).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select pickup zones: %w", err)
	}
	return zones, nil
}

// Speeds returns the non-null speeds of matching trips
func (s *GormStore) Speeds(ctx context.Context, filter Filter) ([]SpeedRow, error) {
	rows := []SpeedRow{}
	err := s.filtered(ctx, filter).
		Select("row_id, speed_kmh").
		Where("speed_kmh IS NOT NULL").
		Order(tripOrder).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to select speeds: %w", err)
	}
	return rows, nil
}

// Close closes the underlying connection
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) filtered(ctx context.Context, filter Filter) *gorm.DB {
	q := s.db.WithContext(ctx).Model(&model.StoredTrip{})
	conds, args := filter.conditions()
	for i, cond := range conds {
		q = q.Where(cond, args[i])
	}
	return q
}
