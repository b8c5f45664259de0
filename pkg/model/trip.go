// pkg/model/trip.go
package model

// RawTrip is a single trip record exactly as read from the source.
// Nullable fields are pointers; nil means the value was missing or unparsable.
type RawTrip struct {
	PickupDatetime  string   // Free-form pickup timestamp
	DropoffDatetime string   // Free-form dropoff timestamp
	PickupLon       *float64 // Degrees
	PickupLat       *float64 // Degrees
	DropoffLon      *float64 // Degrees
	DropoffLat      *float64 // Degrees
	TripDistance    *float64 // Miles
	FareAmount      *float64 // Currency units
	TipAmount       *float64
	PaymentType     *string
	PassengerCount  *int64
	PickupZone      *string // PULocationID in the raw schema
	DropoffZone     *string // DOLocationID in the raw schema
}

// ExclusionReason names the rule that removed a trip from the clean set.
type ExclusionReason string

const (
	ReasonNone            ExclusionReason = ""
	ReasonBadTime         ExclusionReason = "bad_time"
	ReasonSpeedImpossible ExclusionReason = "speed_impossible"
	ReasonNegativeValues  ExclusionReason = "neg_values"
)

// ExclusionReasons lists every reason in rule priority order.
var ExclusionReasons = []ExclusionReason{
	ReasonBadTime,
	ReasonSpeedImpossible,
	ReasonNegativeValues,
}

// EnrichedTrip is the output of enrichment for one RawTrip.
// It is built once and never mutated afterwards, except for the Suspicious
// flag which is set by the batch pass before the record is handed out.
type EnrichedTrip struct {
	Raw RawTrip

	TripDistance *float64 // Effective distance in miles (raw, or backfilled from coordinates)
	FareAmount   *float64 // Effective fare (raw, or estimated)

	DurationSec   *float64 // Strictly positive or nil
	DistanceKmEst *float64 // Great-circle estimate from coordinates
	SpeedKmh      *float64 // Within (0, MaxSpeedKmh] or nil
	FarePerKm     *float64 // Within (0, MaxFarePerKm] or nil

	Exclusion  ExclusionReason
	Suspicious bool
}

// Excluded reports whether the trip was removed by an exclusion rule.
func (t *EnrichedTrip) Excluded() bool {
	return t.Exclusion != ReasonNone
}

// StoredTrip is a row of the trips table as served by the query layer.
type StoredTrip struct {
	RowID           string   `db:"row_id" json:"rowid" gorm:"column:row_id;primaryKey"`
	PickupDatetime  string   `db:"pickup_datetime" json:"pickup_datetime" gorm:"column:pickup_datetime;index"`
	DropoffDatetime string   `db:"dropoff_datetime" json:"dropoff_datetime" gorm:"column:dropoff_datetime"`
	PickupLon       *float64 `db:"pickup_longitude" json:"pickup_longitude" gorm:"column:pickup_longitude"`
	PickupLat       *float64 `db:"pickup_latitude" json:"pickup_latitude" gorm:"column:pickup_latitude"`
	DropoffLon      *float64 `db:"dropoff_longitude" json:"dropoff_longitude" gorm:"column:dropoff_longitude"`
	DropoffLat      *float64 `db:"dropoff_latitude" json:"dropoff_latitude" gorm:"column:dropoff_latitude"`
	TripDistance    *float64 `db:"trip_distance" json:"trip_distance" gorm:"column:trip_distance"`
	DurationSec     *float64 `db:"duration_sec" json:"duration_sec" gorm:"column:duration_sec"`
	FareAmount      *float64 `db:"fare_amount" json:"fare_amount" gorm:"column:fare_amount"`
	TipAmount       *float64 `db:"tip_amount" json:"tip_amount" gorm:"column:tip_amount"`
	FarePerKm       *float64 `db:"fare_per_km" json:"fare_per_km" gorm:"column:fare_per_km"`
	SpeedKmh        *float64 `db:"speed_kmh" json:"speed_kmh" gorm:"column:speed_kmh"`
	PaymentType     *string  `db:"payment_type" json:"payment_type" gorm:"column:payment_type"`
	PassengerCount  *int64   `db:"passenger_count" json:"passenger_count" gorm:"column:passenger_count"`
	PickupZone      *string  `db:"pickup_zone" json:"pickup_zone" gorm:"column:pickup_zone"`
	DropoffZone     *string  `db:"dropoff_zone" json:"dropoff_zone" gorm:"column:dropoff_zone"`
	Suspicious      bool     `db:"suspicious" json:"suspicious" gorm:"column:suspicious"`
}

// TableName binds StoredTrip to the trips table for gorm.
func (StoredTrip) TableName() string {
	return "trips"
}

// FromEnriched builds the storage row for an enriched trip.
func FromEnriched(rowID string, t EnrichedTrip) StoredTrip {
	return StoredTrip{
		RowID:           rowID,
		PickupDatetime:  t.Raw.PickupDatetime,
		DropoffDatetime: t.Raw.DropoffDatetime,
		PickupLon:       t.Raw.PickupLon,
		PickupLat:       t.Raw.PickupLat,
		DropoffLon:      t.Raw.DropoffLon,
		DropoffLat:      t.Raw.DropoffLat,
		TripDistance:    t.TripDistance,
		DurationSec:     t.DurationSec,
		FareAmount:      t.FareAmount,
		TipAmount:       t.Raw.TipAmount,
		FarePerKm:       t.FarePerKm,
		SpeedKmh:        t.SpeedKmh,
		PaymentType:     t.Raw.PaymentType,
		PassengerCount:  t.Raw.PassengerCount,
		PickupZone:      t.Raw.PickupZone,
		DropoffZone:     t.Raw.DropoffZone,
		Suspicious:      t.Suspicious,
	}
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
