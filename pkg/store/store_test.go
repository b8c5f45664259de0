package store

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/config"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/model"
)

func newMockStore(t *testing.T) (*SQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s, err := NewSQLStore(sqlx.NewDb(db, config.DriverPostgres), 2, false, zap.NewNop())
	require.NoError(t, err)
	return s, mock
}

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := OpenSQLite("file:"+uuid.New().String()+"?mode=memory&cache=shared", zap.NewNop())
	require.NoError(t, err)

	s, err := NewGormStore(db, 2, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func sampleTrips() []model.StoredTrip {
	return []model.StoredTrip{
		{
			RowID:          "c",
			PickupDatetime: "2024-01-01 10:00:00",
			SpeedKmh:       model.Float64(30),
			FarePerKm:      model.Float64(2),
			FareAmount:     model.Float64(10),
			PickupZone:     model.String("A"),
		},
		{
			RowID:          "a",
			PickupDatetime: "2024-01-01 08:00:00",
			SpeedKmh:       model.Float64(10),
			FarePerKm:      model.Float64(4),
			FareAmount:     model.Float64(5),
			PickupZone:     model.String("B"),
		},
		{
			RowID:          "b",
			PickupDatetime: "2024-01-02 09:00:00",
			FareAmount:     model.Float64(7.5),
			PickupZone:     model.String("A"),
		},
		{
			PickupDatetime: "2024-01-03 09:00:00",
			SpeedKmh:       model.Float64(20),
		},
	}
}

func TestNewSQLStoreValidation(t *testing.T) {
	_, err := NewSQLStore(nil, 10, false, zap.NewNop())
	assert.Error(t, err)

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	_, err = NewSQLStore(sqlx.NewDb(db, config.DriverPostgres), 10, false, nil)
	assert.Error(t, err)
}

func TestSQLStoreCopyOnlyForLibPQ(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	pq, err := NewSQLStore(sqlx.NewDb(db, config.DriverPostgres), 10, true, zap.NewNop())
	require.NoError(t, err)
	assert.True(t, pq.useCopy)

	pgx, err := NewSQLStore(sqlx.NewDb(db, config.DriverPgx), 10, true, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, pgx.useCopy)
}

func TestSQLStoreEnsureSchema(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "trips"`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_trips_pickup_datetime").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS cleaning_operations").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreLoadTripsChunks(t *testing.T) {
	s, mock := newMockStore(t)
	trips := sampleTrips()[:3]

	mock.ExpectExec(`INSERT INTO trips \(row_id, .*\) VALUES \(\$1, .*\), \(\$19, .*\)`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`INSERT INTO trips \(row_id, .*\) VALUES \(\$1, [^(]*\)$`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := s.LoadTrips(context.Background(), trips)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreRecordCleaningOperations(t *testing.T) {
	s, mock := newMockStore(t)
	ops := []model.CleaningOperation{
		{BatchID: "b1", RowNumber: 3, ColumnName: model.ColFareAmount, NewValue: "7.61",
			CleaningOperation: model.OperationFareBackfill, CleaningReason: "missing_fare"},
	}

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO cleaning_operations")
	prep.ExpectExec().
		WithArgs("b1", 3, model.ColFareAmount, nil, "7.61", model.OperationFareBackfill, "missing_fare").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, s.RecordCleaningOperations(context.Background(), ops))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreRecordCleaningOperationsRollback(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO cleaning_operations").
		ExpectExec().
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err := s.RecordCleaningOperations(context.Background(), []model.CleaningOperation{{BatchID: "b1"}})
	assert.ErrorIs(t, err, assert.AnError)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreListTripsFilters(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta(
		"FROM trips WHERE pickup_datetime >= $1 AND pickup_datetime <= $2 ORDER BY pickup_datetime, row_id LIMIT $3 OFFSET $4")).
		WithArgs("2024-01-01", "2024-01-31", 10, 5).
		WillReturnRows(sqlmock.NewRows([]string{"row_id", "pickup_datetime", "speed_kmh"}).
			AddRow("a", "2024-01-02 08:00:00", 12.5))

	trips, err := s.ListTrips(context.Background(),
		Filter{Start: "2024-01-01", End: "2024-01-31"}, Page{Limit: 10, Offset: 5})
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, "a", trips[0].RowID)
	require.NotNil(t, trips[0].SpeedKmh)
	assert.Equal(t, 12.5, *trips[0].SpeedKmh)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreListTripsRejectsNegativePage(t *testing.T) {
	s, _ := newMockStore(t)
	_, err := s.ListTrips(context.Background(), Filter{}, Page{Limit: -1})
	assert.ErrorIs(t, err, ErrInvalidPage)
}

func TestSQLStoreSummaryNulls(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) AS trips")).
		WillReturnRows(sqlmock.NewRows([]string{"trips", "avg_speed_kmh", "avg_fare_per_km", "total_fare"}).
			AddRow(0, nil, nil, nil))

	sum, err := s.Summary(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Zero(t, sum.Trips)
	assert.Nil(t, sum.AvgSpeedKmh)
	assert.Nil(t, sum.AvgFarePerKm)
	assert.Nil(t, sum.TotalFare)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStoreSpeedsAndZones(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT row_id, speed_kmh FROM trips WHERE speed_kmh IS NOT NULL AND pickup_datetime >= $1")).
		WithArgs("2024-01-01").
		WillReturnRows(sqlmock.NewRows([]string{"row_id", "speed_kmh"}).AddRow("a", 10.0).AddRow("b", 20.0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT pickup_zone FROM trips WHERE pickup_zone IS NOT NULL ORDER BY")).
		WillReturnRows(sqlmock.NewRows([]string{"pickup_zone"}).AddRow("A").AddRow("B"))

	speeds, err := s.Speeds(context.Background(), Filter{Start: "2024-01-01"})
	require.NoError(t, err)
	assert.Equal(t, []SpeedRow{{RowID: "a", SpeedKmh: 10}, {RowID: "b", SpeedKmh: 20}}, speeds)

	zones, err := s.PickupZones(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, zones)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStoreRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	trips := sampleTrips()
	n, err := s.LoadTrips(ctx, trips)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NotEmpty(t, trips[3].RowID)

	count, err := s.CountTrips(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	listed, err := s.ListTrips(ctx, Filter{}, Page{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "c", listed[0].RowID)
	assert.Equal(t, "b", listed[1].RowID)
	assert.Nil(t, listed[1].SpeedKmh)
}

func TestGormStoreSummary(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	_, err := s.LoadTrips(ctx, sampleTrips())
	require.NoError(t, err)

	sum, err := s.Summary(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), sum.Trips)
	require.NotNil(t, sum.AvgSpeedKmh)
	assert.InDelta(t, 20, *sum.AvgSpeedKmh, 1e-9)
	require.NotNil(t, sum.AvgFarePerKm)
	assert.InDelta(t, 3, *sum.AvgFarePerKm, 1e-9)
	require.NotNil(t, sum.TotalFare)
	assert.InDelta(t, 22.5, *sum.TotalFare, 1e-9)

	day, err := s.Summary(ctx, Filter{Start: "2024-01-01", End: "2024-01-01 23:59:59"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), day.Trips)

	none, err := s.Summary(ctx, Filter{Start: "2030-01-01"})
	require.NoError(t, err)
	assert.Zero(t, none.Trips)
	assert.Nil(t, none.AvgSpeedKmh)
	assert.Nil(t, none.TotalFare)
}

func TestGormStoreZonesAndSpeeds(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()
	trips := sampleTrips()
	_, err := s.LoadTrips(ctx, trips)
	require.NoError(t, err)

	zones, err := s.PickupZones(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A", "A"}, zones)

	speeds, err := s.Speeds(ctx, Filter{End: "2024-01-02 23:59:59"})
	require.NoError(t, err)
	assert.Equal(t, []SpeedRow{{RowID: "a", SpeedKmh: 10}, {RowID: "c", SpeedKmh: 30}}, speeds)
}

func TestGormStoreRecordCleaningOperations(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	ops := []model.CleaningOperation{
		{BatchID: "b1", RowNumber: 0, ColumnName: model.ColTripDistance, NewValue: "1.2",
			CleaningOperation: model.OperationDistanceBackfill, CleaningReason: "missing_distance"},
		{BatchID: "b1", RowNumber: 4, ColumnName: model.ColFareAmount, OriginalValue: model.String("0"),
			NewValue: "3.05", CleaningOperation: model.OperationFareBackfill, CleaningReason: "nonpositive_fare"},
	}
	require.NoError(t, s.RecordCleaningOperations(ctx, ops))
	require.NoError(t, s.RecordCleaningOperations(ctx, nil))

	var rows []cleaningOperationRow
	require.NoError(t, s.db.Order("id").Find(&rows).Error)
	require.Len(t, rows, 2)
	assert.Equal(t, 4, rows[1].RowNumber)
	require.NotNil(t, rows[1].OriginalValue)
	assert.Equal(t, "0", *rows[1].OriginalValue)
	assert.Nil(t, rows[0].OriginalValue)
	assert.False(t, rows[0].CleanedAt.IsZero())
}

func TestOpenSQLite(t *testing.T) {
	cfg := &config.Config{Storage: &config.StorageConfig{
		Driver:        config.DriverSQLite,
		SQLitePath:    t.TempDir() + "/db/trips.sqlite",
		LoadBatchSize: 100,
	}}

	s, err := Open(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.EnsureSchema(context.Background()))
	n, err := s.CountTrips(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestOpenRejectsBadConfig(t *testing.T) {
	_, err := Open(context.Background(), nil, zap.NewNop())
	assert.Error(t, err)

	_, err = Open(context.Background(), &config.Config{Storage: &config.StorageConfig{Driver: "mysql"}}, zap.NewNop())
	assert.Error(t, err)
}

func TestChunks(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 2}, {2, 4}, {4, 5}}, chunks(5, 2))
	assert.Nil(t, chunks(0, 2))
	assert.Equal(t, [][2]int{{0, 3}}, chunks(3, 0))
}
