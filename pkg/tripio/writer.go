package tripio

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/converter"
	"github.com/mkalasaivan/Urban-Mobility-Data-Explorer/pkg/model"
)

// enrichedFrame lays out retained trips as an all-string dataframe in
// enriched column order. Excluded trips are skipped.
func enrichedFrame(trips []model.EnrichedTrip) dataframe.DataFrame {
	names := model.EnrichedColumns()
	columns := make([][]string, len(names))
	for i := range columns {
		columns[i] = make([]string, 0, len(trips))
	}

	for _, t := range trips {
		if t.Excluded() {
			continue
		}
		for i, cell := range converter.RecordValues(t) {
			columns[i] = append(columns[i], cell)
		}
	}

	cols := make([]series.Series, len(names))
	for i, name := range names {
		cols[i] = series.New(columns[i], series.String, name)
	}
	return dataframe.New(cols...)
}

// WriteEnrichedTrips writes the retained trips as CSV with a header row.
// Nulls are empty cells.
func WriteEnrichedTrips(w io.Writer, trips []model.EnrichedTrip) error {
	df := enrichedFrame(trips)
	if df.Err != nil {
		return fmt.Errorf("failed to build output frame: %w", df.Err)
	}
	if err := df.WriteCSV(w); err != nil {
		return fmt.Errorf("failed to write enriched csv: %w", err)
	}
	return nil
}

// WriteCleaningLog writes the cleaning log as indented JSON
func WriteCleaningLog(w io.Writer, log model.CleaningLog) error {
	if log.Excluded == nil {
		log.Excluded = []model.ReasonCount{}
	}
	data, err := json.MarshalIndent(log, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cleaning log: %w", err)
	}
	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write cleaning log: %w", err)
	}
	return nil
}

// WriteOutputs writes the enriched CSV and the cleaning log to their paths,
// creating parent directories. An empty logPath skips the log.
func WriteOutputs(csvPath, logPath string, trips []model.EnrichedTrip, log model.CleaningLog) error {
	if err := writeFile(csvPath, func(w io.Writer) error {
		return WriteEnrichedTrips(w, trips)
	}); err != nil {
		return err
	}
	if logPath == "" {
		return nil
	}
	return writeFile(logPath, func(w io.Writer) error {
		return WriteCleaningLog(w, log)
	})
}

func writeFile(path string, write func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return nil
}
