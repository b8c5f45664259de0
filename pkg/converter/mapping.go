// pkg/converter/mapping.go
package converter

import (
	"strings"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/model"
)

// headerAliases maps normalized header spellings to canonical raw column names
var headerAliases = map[string]string{
	"pulocationid":          model.ColPULocationID,
	"dolocationid":          model.ColDOLocationID,
	"pickup_zone":           model.ColPULocationID,
	"dropoff_zone":          model.ColDOLocationID,
	"tpep_pickup_datetime":  model.ColPickupDatetime,
	"tpep_dropoff_datetime": model.ColDropoffDatetime,
}

// CanonicalColumn maps a header cell to its canonical raw column name.
// Unknown headers are returned lower-cased and trimmed.
func CanonicalColumn(header string) string {
	normalized := strings.ToLower(strings.TrimSpace(header))
	if alias, ok := headerAliases[normalized]; ok {
		return alias
	}
	for _, col := range model.RawColumns {
		if strings.ToLower(col) == normalized {
			return col
		}
	}
	return normalized
}

// CanonicalRow rekeys a row by canonical column names
func CanonicalRow(row map[string]string) map[string]string {
	out := make(map[string]string, len(row))
	for k, v := range row {
		out[CanonicalColumn(k)] = v
	}
	return out
}

// MapRecord builds a RawTrip from a row keyed by raw column names.
// Missing columns are null.
func (c *TypeConverter) MapRecord(row map[string]string) model.RawTrip {
	cell := func(col string) (string, bool) {
		v, ok := row[col]
		return v, ok
	}
	float := func(col string) *float64 {
		if v, ok := cell(col); ok {
			return c.ToNullableFloat(v)
		}
		return nil
	}
	str := func(col string) *string {
		if v, ok := cell(col); ok {
			return c.ToNullableString(v)
		}
		return nil
	}
	timestamp := func(col string) string {
		if v, ok := cell(col); ok && !c.IsNull(v) {
			return c.clean(v)
		}
		return ""
	}

	var passengers *int64
	if v, ok := cell(model.ColPassengerCount); ok {
		passengers = c.ToNullableInt(v)
	}

	return model.RawTrip{
		PickupDatetime:  timestamp(model.ColPickupDatetime),
		DropoffDatetime: timestamp(model.ColDropoffDatetime),
		PickupLon:       float(model.ColPickupLon),
		PickupLat:       float(model.ColPickupLat),
		DropoffLon:      float(model.ColDropoffLon),
		DropoffLat:      float(model.ColDropoffLat),
		TripDistance:    float(model.ColTripDistance),
		FareAmount:      float(model.ColFareAmount),
		TipAmount:       float(model.ColTipAmount),
		PaymentType:     str(model.ColPaymentType),
		PassengerCount:  passengers,
		PickupZone:      str(model.ColPULocationID),
		DropoffZone:     str(model.ColDOLocationID),
	}
}

// RecordValues renders an enriched trip as cells in EnrichedColumns order
func RecordValues(t model.EnrichedTrip) []string {
	return []string{
		t.Raw.PickupDatetime,
		t.Raw.DropoffDatetime,
		FormatFloat(t.Raw.PickupLon),
		FormatFloat(t.Raw.PickupLat),
		FormatFloat(t.Raw.DropoffLon),
		FormatFloat(t.Raw.DropoffLat),
		FormatFloat(t.TripDistance),
		FormatFloat(t.DurationSec),
		FormatFloat(t.FareAmount),
		FormatFloat(t.Raw.TipAmount),
		FormatFloat(t.FarePerKm),
		FormatFloat(t.SpeedKmh),
		FormatString(t.Raw.PaymentType),
		FormatInt(t.Raw.PassengerCount),
		FormatString(t.Raw.PickupZone),
		FormatString(t.Raw.DropoffZone),
		FormatBool(t.Suspicious),
	}
}
