// pkg/model/cleaning.go
package model

import (
	"time"
)

// CleaningOperation represents a single value filled in during enrichment
type CleaningOperation struct {
	BatchID           string    `db:"batch_id"`           // Batch (job) that produced the value
	RowNumber         int       `db:"row_number"`         // Zero-based position of the record in its batch
	ColumnName        string    `db:"column_name"`        // Column that was filled in
	OriginalValue     *string   `db:"original_value"`     // Original value (nil when missing)
	NewValue          string    `db:"new_value"`          // Value written to the enriched record
	CleaningOperation string    `db:"cleaning_operation"` // e.g. "distance_backfill"
	CleaningReason    string    `db:"cleaning_reason"`    // e.g. "missing_distance"
	CleanedAt         time.Time `db:"cleaned_at"`         // Set by the database
}

const (
	OperationDistanceBackfill = "distance_backfill"
	OperationFareBackfill     = "fare_backfill"
)

// ReasonCount is one entry of a CleaningLog's excluded list.
type ReasonCount struct {
	Reason ExclusionReason `json:"reason"`
	Count  int             `json:"count"`
}

// CleaningLog summarises one pass over a batch.
type CleaningLog struct {
	RowsTotal int           `json:"rows_total"`
	RowsClean int           `json:"rows_clean"`
	Excluded  []ReasonCount `json:"excluded"`
}

// ExcludedTotal returns the sum of the per-reason counts.
func (l CleaningLog) ExcludedTotal() int {
	total := 0
	for _, rc := range l.Excluded {
		total += rc.Count
	}
	return total
}
