// pkg/model/metadata.go
package model

import "strings"

// TableMetadata contains the structure information for a trips table
type TableMetadata struct {
	Table       string   // Table name
	Columns     []Column // Column definitions, in output order
	PrimaryKeys []string // List of primary key column names
}

// Column represents metadata about an enriched trip column
type Column struct {
	Name         string // Column name
	PgType       string // PostgreSQL type
	Nullable     bool   // Whether column allows NULL values
	IsPrimaryKey bool   // Whether column is part of primary key
}

// Raw CSV column names.
const (
	ColPickupDatetime  = "pickup_datetime"
	ColDropoffDatetime = "dropoff_datetime"
	ColPickupLon       = "pickup_longitude"
	ColPickupLat       = "pickup_latitude"
	ColDropoffLon      = "dropoff_longitude"
	ColDropoffLat      = "dropoff_latitude"
	ColTripDistance    = "trip_distance"
	ColFareAmount      = "fare_amount"
	ColTipAmount       = "tip_amount"
	ColPaymentType     = "payment_type"
	ColPassengerCount  = "passenger_count"
	ColPULocationID    = "PULocationID"
	ColDOLocationID    = "DOLocationID"

	ColPickupZone  = "pickup_zone"
	ColDropoffZone = "dropoff_zone"
	ColDurationSec = "duration_sec"
	ColFarePerKm   = "fare_per_km"
	ColSpeedKmh    = "speed_kmh"
	ColSuspicious  = "suspicious"
	ColRowID       = "row_id"
)

// RawColumns is the raw input schema.
var RawColumns = []string{
	ColPickupDatetime, ColDropoffDatetime,
	ColPickupLon, ColPickupLat,
	ColDropoffLon, ColDropoffLat,
	ColTripDistance, ColFareAmount, ColTipAmount,
	ColPaymentType, ColPassengerCount,
	ColPULocationID, ColDOLocationID,
}

// TripsTable describes the enriched trips table. Column order matches the
// enriched CSV, with the row identifier first.
func TripsTable() *TableMetadata {
	return &TableMetadata{
		Table: "trips",
		Columns: []Column{
			{Name: ColRowID, PgType: "TEXT", IsPrimaryKey: true},
			{Name: ColPickupDatetime, PgType: "TEXT", Nullable: true},
			{Name: ColDropoffDatetime, PgType: "TEXT", Nullable: true},
			{Name: ColPickupLon, PgType: "DOUBLE PRECISION", Nullable: true},
			{Name: ColPickupLat, PgType: "DOUBLE PRECISION", Nullable: true},
			{Name: ColDropoffLon, PgType: "DOUBLE PRECISION", Nullable: true},
			{Name: ColDropoffLat, PgType: "DOUBLE PRECISION", Nullable: true},
			{Name: ColTripDistance, PgType: "DOUBLE PRECISION", Nullable: true},
			{Name: ColDurationSec, PgType: "DOUBLE PRECISION", Nullable: true},
			{Name: ColFareAmount, PgType: "DOUBLE PRECISION", Nullable: true},
			{Name: ColTipAmount, PgType: "DOUBLE PRECISION", Nullable: true},
			{Name: ColFarePerKm, PgType: "DOUBLE PRECISION", Nullable: true},
			{Name: ColSpeedKmh, PgType: "DOUBLE PRECISION", Nullable: true},
			{Name: ColPaymentType, PgType: "TEXT", Nullable: true},
			{Name: ColPassengerCount, PgType: "BIGINT", Nullable: true},
			{Name: ColPickupZone, PgType: "TEXT", Nullable: true},
			{Name: ColDropoffZone, PgType: "TEXT", Nullable: true},
			{Name: ColSuspicious, PgType: "BOOLEAN"},
		},
		PrimaryKeys: []string{ColRowID},
	}
}

// EnrichedColumns returns the enriched CSV header (table columns without
// the row identifier).
func EnrichedColumns() []string {
	cols := TripsTable().Columns
	names := make([]string, 0, len(cols)-1)
	for _, col := range cols {
		if col.IsPrimaryKey {
			continue
		}
		names = append(names, col.Name)
	}
	return names
}

// ColumnNames returns all column names in order.
func (tm *TableMetadata) ColumnNames() []string {
	names := make([]string, len(tm.Columns))
	for i, col := range tm.Columns {
		names[i] = col.Name
	}
	return names
}

// GetColumnByName returns a column by name (case-insensitive)
// Returns nil if column not found
func (tm *TableMetadata) GetColumnByName(name string) *Column {
	normalizedName := normalizeColumnName(name)
	for i, col := range tm.Columns {
		if normalizeColumnName(col.Name) == normalizedName {
			return &tm.Columns[i]
		}
	}
	return nil
}

func normalizeColumnName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
