package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/config"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/connector"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/converter"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/model"
)

const createCleaningOperationsSQL = `
	CREATE TABLE IF NOT EXISTS cleaning_operations (
		id SERIAL PRIMARY KEY,
		batch_id TEXT NOT NULL,
		row_number INTEGER NOT NULL,
		column_name TEXT NOT NULL,
		original_value TEXT,
		new_value TEXT NOT NULL,
		cleaning_operation TEXT NOT NULL,
		cleaning_reason TEXT NOT NULL,
		cleaned_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
	)
`

const insertCleaningOperationSQL = `
	INSERT INTO cleaning_operations
	(batch_id, row_number, column_name, original_value, new_value,
	 cleaning_operation, cleaning_reason)
	VALUES (:batch_id, :row_number, :column_name, :original_value, :new_value,
	 :cleaning_operation, :cleaning_reason)
`

// SQLStore is a TripStore over PostgreSQL through sqlx
type SQLStore struct {
	db        *sqlx.DB
	useCopy   bool
	batchSize int
	logger    *zap.Logger
	columns   []string
}

// NewSQLStore wraps db. COPY is only used when db was opened with the
// lib/pq driver.
func NewSQLStore(db *sqlx.DB, batchSize int, useCopy bool, logger *zap.Logger) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if batchSize <= 0 {
		batchSize = 10000
	}

	return &SQLStore{
		db:        db,
		useCopy:   useCopy && db.DriverName() == config.DriverPostgres,
		batchSize: batchSize,
		logger:    logger,
		columns:   model.TripsTable().ColumnNames(),
	}, nil
}

// EnsureSchema creates the trips and cleaning_operations tables
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	statements := []string{
		converter.CreateTableSQL(model.TripsTable()),
		"CREATE INDEX IF NOT EXISTS idx_trips_pickup_datetime ON trips (pickup_datetime)",
		createCleaningOperationsSQL,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to ensure schema: %w", err)
		}
	}

	s.logger.Info("Ensured trips schema exists")
	return nil
}

// LoadTrips bulk inserts trips in chunks, logging progress after each one
func (s *SQLStore) LoadTrips(ctx context.Context, trips []model.StoredTrip) (int64, error) {
	assignRowIDs(trips)

	var total int64
	for _, w := range chunks(len(trips), s.batchSize) {
		rows := make([][]interface{}, 0, w[1]-w[0])
		for _, t := range trips[w[0]:w[1]] {
			rows = append(rows, tripValues(t))
		}

		var (
			n   int64
			err error
		)
		if s.useCopy {
			n, err = connector.CopyIn(ctx, s.db, "trips", s.columns, rows)
		} else {
			n, err = connector.BatchInsert(ctx, s.db, "trips", s.columns, rows, len(rows))
		}
		if err != nil {
			return total, fmt.Errorf("failed to load trips %d-%d: %w", w[0], w[1], err)
		}

		total += n
		s.logger.Info("Loaded rows", zap.Int64("rows", total), zap.Int("of", len(trips)))
	}

	return total, nil
}

// RecordCleaningOperations batch inserts cleaning operations in one transaction
func (s *SQLStore) RecordCleaningOperations(ctx context.Context, ops []model.CleaningOperation) (err error) {
	if len(ops) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				s.logger.Error("Failed to rollback transaction",
					zap.Error(rbErr),
					zap.NamedError("cause", err))
			}
		}
	}()

	stmt, err := tx.PrepareNamedContext(ctx, insertCleaningOperationSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, op := range ops {
		if _, err = stmt.ExecContext(ctx, op); err != nil {
			return fmt.Errorf("failed to insert cleaning operation: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.logger.Info("Recorded cleaning operations", zap.Int("count", len(ops)))
	return nil
}

// CountTrips returns the number of stored trips
func (s *SQLStore) CountTrips(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM trips"); err != nil {
		return 0, fmt.Errorf("failed to count trips: %w", err)
	}
	return n, nil
}

// ListTrips returns a page of trips ordered by pickup time
func (s *SQLStore) ListTrips(ctx context.Context, filter Filter, page Page) ([]model.StoredTrip, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}

	clause, args := s.where(filter)
	query := s.db.Rebind(fmt.Sprintf("SELECT %s FROM trips%s ORDER BY %s LIMIT ? OFFSET ?",
		strings.Join(s.columns, ", "), clause, tripOrder))
	args = append(args, page.Limit, page.Offset)

	trips := []model.StoredTrip{}
	if err := s.db.SelectContext(ctx, &trips, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}
	return trips, nil
}

// Summary aggregates matching trips
func (s *SQLStore) Summary(ctx context.Context, filter Filter) (Summary, error) {
	clause, args := s.where(filter)
	query := s.db.Rebind(fmt.Sprintf("SELECT %s FROM trips%s", summarySelect, clause))

	var row summaryRow
	if err := s.db.GetContext(ctx, &row, query, args...); err != nil {
		return Summary{}, fmt.Errorf("failed to summarise trips: %w", err)
	}
	return row.summary(), nil
}

// PickupZones returns the non-null pickup zones of matching trips
func (s *SQLStore) PickupZones(ctx context.Context, filter Filter) ([]string, error) {
	clause, args := s.where(filter, "pickup_zone IS NOT NULL")
	query := s.db.Rebind(fmt.Sprintf("SELECT pickup_zone FROM trips%s ORDER BY %s", clause, tripOrder))

	zones := []string{}
	if err := s.db.SelectContext(ctx, &zones, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select pickup zones: %w", err)
	}
	return zones, nil
}

// Speeds returns the non-null speeds of matching trips
func (s *SQLStore) Speeds(ctx context.Context, filter Filter) ([]SpeedRow, error) {
	clause, args := s.where(filter, "speed_kmh IS NOT NULL")
	query := s.db.Rebind(fmt.Sprintf("SELECT row_id, speed_kmh FROM trips%s ORDER BY %s", clause, tripOrder))

	rows := []SpeedRow{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to select speeds: %w", err)
	}
	return rows, nil
}

// Close closes the underlying connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) where(filter Filter, extra ...string) (string, []interface{}) {
	conds, args := filter.conditions()
	conds = append(extra, conds...)
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// tripValues lays out a trip in TripsTable column order
func tripValues(t model.StoredTrip) []interface{} {
	return []interface{}{
		t.RowID,
		t.PickupDatetime,
		t.DropoffDatetime,
		t.PickupLon,
		t.PickupLat,
		t.DropoffLon,
		t.DropoffLat,
		t.TripDistance,
		t.DurationSec,
		t.FareAmount,
		t.TipAmount,
		t.FarePerKm,
		t.SpeedKmh,
		t.PaymentType,
		t.PassengerCount,
		t.PickupZone,
		t.DropoffZone,
		t.Suspicious,
	}
}
