// Package tripio reads raw trip files and writes the enriched outputs.
package tripio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/converter"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/model"
)

// ErrNoHeader is returned for input without a header row.
var ErrNoHeader = errors.New("input has no header row")

// loadFrame reads CSV input into an all-string dataframe. A header-only
// input gives a frame with no rows.
func loadFrame(r io.Reader, nullTokens []string) (dataframe.DataFrame, []string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return dataframe.DataFrame{}, nil, fmt.Errorf("failed to read csv: %w", err)
	}
	if len(records) == 0 {
		return dataframe.DataFrame{}, nil, ErrNoHeader
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = converter.CanonicalColumn(h)
	}
	if len(records) == 1 {
		return dataframe.DataFrame{}, header, nil
	}

	// Ragged rows are padded or cut to the header width.
	rows := make([][]string, 0, len(records))
	rows = append(rows, header)
	for _, rec := range records[1:] {
		row := make([]string, len(header))
		copy(row, rec)
		rows = append(rows, row)
	}

	df := dataframe.LoadRecords(rows,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nullTokens),
	)
	if df.Err != nil {
		return dataframe.DataFrame{}, nil, fmt.Errorf("failed to load dataframe: %w", df.Err)
	}
	return df, header, nil
}

// frameRows returns every row of df as cell text keyed by column name.
// Null cells come back empty.
func frameRows(df dataframe.DataFrame) []map[string]string {
	if df.Nrow() == 0 {
		return nil
	}
	maps := df.Maps()
	rows := make([]map[string]string, len(maps))
	for i, m := range maps {
		row := make(map[string]string, len(m))
		for k, v := range m {
			row[k] = converter.ToCell(v)
		}
		rows[i] = row
	}
	return rows
}

// ReadRawTrips parses raw trip CSV. Missing columns are null for every
// record; unparsable cells are null.
func ReadRawTrips(r io.Reader, conv *converter.TypeConverter) ([]model.RawTrip, error) {
	df, _, err := loadFrame(r, converter.DefaultNullTokens())
	if err != nil {
		return nil, err
	}

	rows := frameRows(df)
	trips := make([]model.RawTrip, len(rows))
	for i, row := range rows {
		trips[i] = conv.MapRecord(row)
	}
	return trips, nil
}

// ReadRawTripsFile opens path and parses it with ReadRawTrips
func ReadRawTripsFile(path string, conv *converter.TypeConverter) ([]model.RawTrip, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	trips, err := ReadRawTrips(file, conv)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return trips, nil
}

// ReadEnrichedTrips parses an enriched CSV into storage rows. Row ids are
// left empty for the store to assign.
func ReadEnrichedTrips(r io.Reader, conv *converter.TypeConverter) ([]model.StoredTrip, error) {
	df, header, err := loadFrame(r, converter.DefaultNullTokens())
	if err != nil {
		return nil, err
	}
	if err := requireColumns(header, model.ColPickupDatetime, model.ColDropoffDatetime); err != nil {
		return nil, err
	}

	rows := frameRows(df)
	trips := make([]model.StoredTrip, len(rows))
	for i, row := range rows {
		trips[i] = mapStoredTrip(row, conv)
	}
	return trips, nil
}

// ReadEnrichedTripsFile opens path and parses it with ReadEnrichedTrips
func ReadEnrichedTripsFile(path string, conv *converter.TypeConverter) ([]model.StoredTrip, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	trips, err := ReadEnrichedTrips(file, conv)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return trips, nil
}

func mapStoredTrip(row map[string]string, conv *converter.TypeConverter) model.StoredTrip {
	str := func(col string) string {
		if v := conv.ToNullableString(row[col]); v != nil {
			return *v
		}
		return ""
	}
	return model.StoredTrip{
		PickupDatetime:  str(model.ColPickupDatetime),
		DropoffDatetime: str(model.ColDropoffDatetime),
		PickupLon:       conv.ToNullableFloat(row[model.ColPickupLon]),
		PickupLat:       conv.ToNullableFloat(row[model.ColPickupLat]),
		DropoffLon:      conv.ToNullableFloat(row[model.ColDropoffLon]),
		DropoffLat:      conv.ToNullableFloat(row[model.ColDropoffLat]),
		TripDistance:    conv.ToNullableFloat(row[model.ColTripDistance]),
		DurationSec:     conv.ToNullableFloat(row[model.ColDurationSec]),
		FareAmount:      conv.ToNullableFloat(row[model.ColFareAmount]),
		TipAmount:       conv.ToNullableFloat(row[model.ColTipAmount]),
		FarePerKm:       conv.ToNullableFloat(row[model.ColFarePerKm]),
		SpeedKmh:        conv.ToNullableFloat(row[model.ColSpeedKmh]),
		PaymentType:     conv.ToNullableString(row[model.ColPaymentType]),
		PassengerCount:  conv.ToNullableInt(row[model.ColPassengerCount]),
		PickupZone:      conv.ToNullableString(row[model.ColPULocationID]),
		DropoffZone:     conv.ToNullableString(row[model.ColDOLocationID]),
		Suspicious:      parseFlag(row[model.ColSuspicious]),
	}
}

func parseFlag(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "t", "1", "yes":
		return true
	}
	return false
}

func requireColumns(header []string, cols ...string) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	var missing []string
	for _, c := range cols {
		if !present[c] {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
