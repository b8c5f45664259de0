// Package store persists enriched trips and serves the query layer.
package store

import (
	"context"
	"database/sql"
	"errors"
	"math"

	"github.com/google/uuid"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/model"
)

// ErrInvalidPage is returned for a negative limit or offset.
var ErrInvalidPage = errors.New("limit and offset must be non-negative")

// TripStore is the storage used by the loader and the HTTP layer
type TripStore interface {
	// EnsureSchema creates the trips and cleaning_operations tables if missing
	EnsureSchema(ctx context.Context) error
	// LoadTrips bulk inserts trips, assigning row ids where empty
	LoadTrips(ctx context.Context, trips []model.StoredTrip) (int64, error)
	// RecordCleaningOperations inserts audit records in one transaction
	RecordCleaningOperations(ctx context.Context, ops []model.CleaningOperation) error
	CountTrips(ctx context.Context) (int64, error)
	ListTrips(ctx context.Context, filter Filter, page Page) ([]model.StoredTrip, error)
	Summary(ctx context.Context, filter Filter) (Summary, error)
	// PickupZones returns the non-null pickup zones of matching trips
	PickupZones(ctx context.Context, filter Filter) ([]string, error)
	// Speeds returns the non-null speeds of matching trips
	Speeds(ctx context.Context, filter Filter) ([]SpeedRow, error)
	Close() error
}

// Filter restricts queries to a pickup time range. Bounds are compared as
// strings against pickup_datetime and are inclusive; empty means open.
type Filter struct {
	Start string
	End   string
}

// Page is a limit/offset window
type Page struct {
	Limit  int
	Offset int
}

// Validate rejects negative windows
func (p Page) Validate() error {
	if p.Limit < 0 || p.Offset < 0 {
		return ErrInvalidPage
	}
	return nil
}

// Summary holds aggregate metrics. Averages and totals are nil when no
// matching trip has a value.
type Summary struct {
	Trips        int64
	AvgSpeedKmh  *float64
	AvgFarePerKm *float64
	TotalFare    *float64
}

// SpeedRow is one trip's speed with its row id
type SpeedRow struct {
	RowID    string  `db:"row_id" json:"rowid"`
	SpeedKmh float64 `db:"speed_kmh" json:"speed_kmh"`
}

// summaryRow is the raw aggregate scanned from either backend
type summaryRow struct {
	Trips        int64           `db:"trips"`
	AvgSpeedKmh  sql.NullFloat64 `db:"avg_speed_kmh"`
	AvgFarePerKm sql.NullFloat64 `db:"avg_fare_per_km"`
	TotalFare    sql.NullFloat64 `db:"total_fare"`
}

func (r summaryRow) summary() Summary {
	return Summary{
		Trips:        r.Trips,
		AvgSpeedKmh:  nullable(r.AvgSpeedKmh),
		AvgFarePerKm: nullable(r.AvgFarePerKm),
		TotalFare:    nullable(r.TotalFare),
	}
}

const summarySelect = "COUNT(*) AS trips, AVG(speed_kmh) AS avg_speed_kmh, " +
	"AVG(fare_per_km) AS avg_fare_per_km, SUM(fare_amount) AS total_fare"

const tripOrder = "pickup_datetime, row_id"

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid || math.IsNaN(v.Float64) {
		return nil
	}
	f := v.Float64
	return &f
}

// conditions returns the WHERE fragments and their ? bound arguments
func (f Filter) conditions() ([]string, []interface{}) {
	var (
		where []string
		args  []interface{}
	)
	if f.Start != "" {
		where = append(where, "pickup_datetime >= ?")
		args = append(args, f.Start)
	}
	if f.End != "" {
		where = append(where, "pickup_datetime <= ?")
		args = append(args, f.End)
	}
	return where, args
}

// assignRowIDs fills empty row ids with random UUIDs
func assignRowIDs(trips []model.StoredTrip) {
	for i := range trips {
		if trips[i].RowID == "" {
			trips[i].RowID = uuid.New().String()
		}
	}
}

// chunks splits n items into [start,end) windows of at most size
func chunks(n, size int) [][2]int {
	if size <= 0 {
		size = n
	}
	var out [][2]int
	for start := 0; start < n; start += size {
		end := start + size
		if end > n {
			end = n
		}
		out = append(out, [2]int{start, end})
	}
	return out
}
