package tripio

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/cleaner"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/converter"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/model"
)

const rawHeader = "pickup_datetime,dropoff_datetime,pickup_longitude,pickup_latitude,dropoff_longitude,dropoff_latitude,trip_distance,fare_amount,tip_amount,payment_type,passenger_count,PULocationID,DOLocationID\n"

const rawSample = rawHeader +
	"2024-01-01 10:00:00,2024-01-01 10:30:00,,,,,5,20,2,card,1,132,48\n" +
	"2024-01-01 10:00:05,2024-01-01 10:00:00,,,,,1,5,0,cash,1,132,48\n" +
	"2024-01-01 11:00:00,2024-01-01 11:30:00,-73.9855,40.7580,-73.7781,40.6413,NaN,NA,null,,2.0,161,132\n" +
	"2024-01-01 12:00:00,2024-01-01 12:10:00,,,,,100,20,,card,1,,\n"

func newConverter() *converter.TypeConverter {
	return converter.NewTypeConverter(zap.NewNop())
}

func TestReadRawTrips(t *testing.T) {
	trips, err := ReadRawTrips(strings.NewReader(rawSample), newConverter())
	require.NoError(t, err)
	require.Len(t, trips, 4)

	first := trips[0]
	assert.Equal(t, "2024-01-01 10:00:00", first.PickupDatetime)
	require.NotNil(t, first.TripDistance)
	assert.Equal(t, 5.0, *first.TripDistance)
	assert.Nil(t, first.PickupLat)
	require.NotNil(t, first.PickupZone)
	assert.Equal(t, "132", *first.PickupZone)

	third := trips[2]
	assert.Nil(t, third.TripDistance)
	assert.Nil(t, third.FareAmount)
	assert.Nil(t, third.TipAmount)
	assert.Nil(t, third.PaymentType)
	require.NotNil(t, third.PassengerCount)
	assert.Equal(t, int64(2), *third.PassengerCount)
	require.NotNil(t, third.PickupLat)
	assert.Equal(t, 40.7580, *third.PickupLat)

	assert.Nil(t, trips[3].PickupZone)
	assert.Nil(t, trips[3].DropoffZone)
}

func TestReadRawTripsMissingColumns(t *testing.T) {
	input := "pickup_datetime,dropoff_datetime,fare_amount\n2024-01-01 10:00:00,2024-01-01 10:05:00,7\n"
	trips, err := ReadRawTrips(strings.NewReader(input), newConverter())
	require.NoError(t, err)
	require.Len(t, trips, 1)

	assert.Nil(t, trips[0].TripDistance)
	assert.Nil(t, trips[0].PickupLon)
	assert.Nil(t, trips[0].PickupZone)
	require.NotNil(t, trips[0].FareAmount)
	assert.Equal(t, 7.0, *trips[0].FareAmount)
}

func TestReadRawTripsHeaderAliases(t *testing.T) {
	input := "TPEP_PICKUP_DATETIME,tpep_dropoff_datetime,pulocationid\n2024-01-01 10:00:00,2024-01-01 10:05:00,7\n"
	trips, err := ReadRawTrips(strings.NewReader(input), newConverter())
	require.NoError(t, err)
	require.Len(t, trips, 1)
	assert.Equal(t, "2024-01-01 10:00:00", trips[0].PickupDatetime)
	require.NotNil(t, trips[0].PickupZone)
	assert.Equal(t, "7", *trips[0].PickupZone)
}

func TestReadRawTripsEdges(t *testing.T) {
	trips, err := ReadRawTrips(strings.NewReader(rawHeader), newConverter())
	require.NoError(t, err)
	assert.Empty(t, trips)

	_, err = ReadRawTrips(strings.NewReader(""), newConverter())
	assert.ErrorIs(t, err, ErrNoHeader)
}

func TestReadRawTripsRaggedRows(t *testing.T) {
	input := "pickup_datetime,dropoff_datetime,trip_distance\n2024-01-01 10:00:00\n2024-01-01 10:00:00,2024-01-01 10:05:00,1,extra\n"
	trips, err := ReadRawTrips(strings.NewReader(input), newConverter())
	require.NoError(t, err)
	require.Len(t, trips, 2)
	assert.Equal(t, "", trips[0].DropoffDatetime)
	require.NotNil(t, trips[1].TripDistance)
	assert.Equal(t, 1.0, *trips[1].TripDistance)
}

func enrichSample(t *testing.T) *cleaner.BatchResult {
	t.Helper()
	trips, err := ReadRawTrips(strings.NewReader(rawSample), newConverter())
	require.NoError(t, err)
	return cleaner.Process("test", trips, cleaner.DefaultConfig())
}

func TestWriteEnrichedTrips(t *testing.T) {
	result := enrichSample(t)

	var buf bytes.Buffer
	require.NoError(t, WriteEnrichedTrips(&buf, result.Trips))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3, "header plus two retained rows")
	assert.Equal(t, model.EnrichedColumns(), records[0])

	row := records[1]
	require.Len(t, row, len(model.EnrichedColumns()))
	assert.Equal(t, "2024-01-01 10:00:00", row[0])
	assert.Equal(t, "", row[2])
	assert.Equal(t, "5", row[6])
	assert.Equal(t, "1800", row[7])
	assert.Equal(t, "20", row[8])
	assert.Equal(t, "card", row[12])
	assert.Equal(t, "132", row[14])
	assert.Equal(t, "false", row[16])

	backfilled := records[2]
	assert.NotEmpty(t, backfilled[6], "distance backfilled from coordinates")
	assert.NotEmpty(t, backfilled[8], "fare estimated")
	assert.Equal(t, "", backfilled[12])
}

func TestWriteEnrichedTripsIsByteIdentical(t *testing.T) {
	var first, second bytes.Buffer
	require.NoError(t, WriteEnrichedTrips(&first, enrichSample(t).Trips))
	require.NoError(t, WriteEnrichedTrips(&second, enrichSample(t).Trips))
	assert.Equal(t, first.Bytes(), second.Bytes())
}

func TestWriteEnrichedTripsEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteEnrichedTrips(&buf, nil))
	assert.Equal(t, strings.Join(model.EnrichedColumns(), ",")+"\n", buf.String())
}

func TestWriteCleaningLog(t *testing.T) {
	var buf bytes.Buffer
	log := model.CleaningLog{
		RowsTotal: 4,
		RowsClean: 2,
		Excluded: []model.ReasonCount{
			{Reason: model.ReasonBadTime, Count: 1},
			{Reason: model.ReasonSpeedImpossible, Count: 1},
		},
	}
	require.NoError(t, WriteCleaningLog(&buf, log))
	assert.JSONEq(t, `{"rows_total":4,"rows_clean":2,"excluded":[{"reason":"bad_time","count":1},{"reason":"speed_impossible","count":1}]}`, buf.String())
	assert.Contains(t, buf.String(), "\n  \"rows_total\": 4")

	buf.Reset()
	require.NoError(t, WriteCleaningLog(&buf, model.CleaningLog{}))
	assert.JSONEq(t, `{"rows_total":0,"rows_clean":0,"excluded":[]}`, buf.String())
}

func TestWriteOutputsAndReadBack(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "trips_enriched.csv")
	logPath := filepath.Join(dir, "out", "cleaning_log.json")

	result := enrichSample(t)
	require.NoError(t, WriteOutputs(csvPath, logPath, result.Trips, result.Log))

	_, err := os.Stat(logPath)
	require.NoError(t, err)

	stored, err := ReadEnrichedTripsFile(csvPath, newConverter())
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "2024-01-01 10:00:00", stored[0].PickupDatetime)
	require.NotNil(t, stored[0].DurationSec)
	assert.Equal(t, 1800.0, *stored[0].DurationSec)
	require.NotNil(t, stored[0].PickupZone)
	assert.Equal(t, "132", *stored[0].PickupZone)
	assert.Empty(t, stored[0].RowID)
	assert.False(t, stored[0].Suspicious)
}

func TestReadEnrichedTripsRequiresTimestamps(t *testing.T) {
	_, err := ReadEnrichedTrips(strings.NewReader("speed_kmh\n10\n"), newConverter())
	assert.Error(t, err)
}

func TestReadRawTripsFileMissing(t *testing.T) {
	_, err := ReadRawTripsFile(filepath.Join(t.TempDir(), "nope.csv"), newConverter())
	assert.Error(t, err)
}
