package connector

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/converter"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/model"
)

// RowStreamer runs a query and hands each result row to a processor
type RowStreamer interface {
	StreamQuery(ctx context.Context, query string, progressEvery int, processor func(*sql.Rows) error) (int64, error)
}

// RawTripSource reads raw trip records from a warehouse table
type RawTripSource struct {
	querier   RowStreamer
	table     string
	converter *converter.TypeConverter
	logger    *zap.Logger
}

// NewRawTripSource creates a source reading from table
func NewRawTripSource(querier RowStreamer, table string, conv *converter.TypeConverter, logger *zap.Logger) (*RawTripSource, error) {
	if querier == nil {
		return nil, errors.New("querier cannot be nil")
	}
	if table == "" {
		return nil, errors.New("table name cannot be empty")
	}
	if conv == nil {
		return nil, errors.New("converter cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &RawTripSource{
		querier:   querier,
		table:     table,
		converter: conv,
		logger:    logger,
	}, nil
}

// Query returns the statement used to read the table
func (s *RawTripSource) Query() string {
	return fmt.Sprintf("SELECT * FROM %s ORDER BY %s", s.table, model.ColPickupDatetime)
}

// ReadAll reads every raw trip in the table in one statement. batchSize
// sets the progress logging interval.
func (s *RawTripSource) ReadAll(ctx context.Context, batchSize int) ([]model.RawTrip, error) {
	var (
		trips   []model.RawTrip
		columns []string
	)

	_, err := s.querier.StreamQuery(ctx, s.Query(), batchSize, func(rows *sql.Rows) error {
		if columns == nil {
			cols, err := rows.Columns()
			if err != nil {
				return fmt.Errorf("failed to read columns: %w", err)
			}
			columns = make([]string, len(cols))
			for i, c := range cols {
				columns[i] = converter.CanonicalColumn(c)
			}
		}

		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("failed to scan row: %w", err)
		}

		record := make(map[string]string, len(columns))
		for i, col := range columns {
			record[col] = converter.ToCell(values[i])
		}
		trips = append(trips, s.converter.MapRecord(record))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.table, err)
	}

	s.logger.Info("Read raw trips",
		zap.String("table", s.table),
		zap.Int("rows", len(trips)))
	return trips, nil
}
