// Package stats implements the robust statistics used on trip metrics:
// median / MAD based anomaly scoring and top-K frequency selection.
//
// Everything here is written by hand on purpose: no sort package, no heap,
// no third-party statistics. Functions never mutate their inputs and keep no
// state between calls, so they are safe to call concurrently on disjoint
// slices.
package stats

import "math"

const (
	// MinSamples is the smallest sample size that gets real z-scores.
	MinSamples = 5
	// MADScale makes the MAD consistent with the standard deviation of a
	// normal distribution.
	MADScale = 0.6745

	// DefaultQueryThreshold is used for ad-hoc anomaly queries.
	DefaultQueryThreshold = 3.5
	// DefaultBatchThreshold is used by the batch pipeline, which sees heavier tails.
	DefaultBatchThreshold = 5.0
)

// insertionSort returns a sorted copy of values. Stable, O(n^2); fine for
// per-request slices.
func insertionSort(values []float64) []float64 {
	arr := make([]float64, len(values))
	copy(arr, values)
	for i := 1; i < len(arr); i++ {
		key := arr[i]
		j := i - 1
		for j >= 0 && arr[j] > key {
			arr[j+1] = arr[j]
			j--
		}
		arr[j+1] = key
	}
	return arr
}

// Median returns the median of values and false when values is empty.
// For even counts it is the mean of the two middle elements.
func Median(values []float64) (float64, bool) {
	n := len(values)
	if n == 0 {
		return 0, false
	}
	arr := insertionSort(values)
	mid := n / 2
	if n%2 == 1 {
		return arr[mid], true
	}
	return (arr[mid-1] + arr[mid]) / 2, true
}

// MAD returns the median absolute deviation around the median.
func MAD(values []float64) (mad, median float64, ok bool) {
	median, ok = Median(values)
	if !ok {
		return 0, 0, false
	}
	deviations := make([]float64, len(values))
	for i, x := range values {
		deviations[i] = math.Abs(x - median)
	}
	mad, _ = Median(deviations)
	return mad, median, true
}

// RobustZScores returns z_i = 0.6745 * (x_i - median) / MAD for every value.
//
// Fewer than MinSamples values, or a MAD of zero, yields all zeros: there is
// either too little data or no variation to judge against.
func RobustZScores(values []float64) []float64 {
	zs := make([]float64, len(values))
	if len(values) < MinSamples {
		return zs
	}

	mad, median, ok := MAD(values)
	if !ok || mad == 0 {
		return zs
	}

	factor := MADScale / mad
	for i, x := range values {
		zs[i] = factor * (x - median)
	}
	return zs
}

// FlagAnomalies returns the indices whose |z| >= threshold, in input order.
func FlagAnomalies(values []float64, threshold float64) []int {
	zs := RobustZScores(values)
	flagged := make([]int, 0)
	for i, z := range zs {
		if math.Abs(z) >= threshold {
			flagged = append(flagged, i)
		}
	}
	return flagged
}

// Anomaly is one flagged value with its score.
type Anomaly struct {
	Index int
	Value float64
	Z     float64
}

// ScoreAnomalies is FlagAnomalies that also returns each value and z-score,
// capped at limit results (limit <= 0 means no cap).
func ScoreAnomalies(values []float64, threshold float64, limit int) []Anomaly {
	zs := RobustZScores(values)
	out := make([]Anomaly, 0)
	for i, z := range zs {
		if math.Abs(z) < threshold {
			continue
		}
		out = append(out, Anomaly{Index: i, Value: values[i], Z: z})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
