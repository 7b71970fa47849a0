// Package stats turns groups of invocation results into aggregate records.
// Aggregation is a pure function of its inputs so an aggregate can always be
// recomputed from the stored results it summarizes.
package stats

import (
	"math"
	"slices"

	"github.com/coldbench/coldbench/pkg/benchmark"
)

// Percentile returns the p-th percentile of ascending-sorted values using
// the nearest-rank method: idx = ceil(p/100 * n) - 1, clamped to the valid
// range. For durations [10..100] in steps of 10, p90 is 90.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}

	if len(sorted) == 1 {
		return sorted[0]
	}

	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1

	if idx < 0 {
		idx = 0
	}

	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return sorted[idx]
}

// Compute calculates the metric block for one measurement. Values are
// rounded to two decimals. Returns nil when no sample carried the
// measurement.
func Compute(values []float64) *benchmark.Metric {
	if len(values) == 0 {
		return nil
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	slices.Sort(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}

	mean := sum / float64(len(sorted))

	return &benchmark.Metric{
		Mean:   round2(mean),
		Median: round2(median(sorted)),
		Min:    round2(sorted[0]),
		Max:    round2(sorted[len(sorted)-1]),
		StdDev: round2(stdDev(sorted, mean)),
		P90:    round2(Percentile(sorted, 90)),
		P95:    round2(Percentile(sorted, 95)),
		P99:    round2(Percentile(sorted, 99)),
		Count:  len(sorted),
	}
}

// median uses the midpoint convention: the mean of the two middle values
// for even-sized inputs.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}

	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// stdDev is the sample standard deviation, 0 for fewer than two values.
func stdDev(values []float64, mean float64) float64 {
	if len(values) < 2 {
		return 0
	}

	var sum float64

	for _, v := range values {
		d := v - mean
		sum += d * d
	}

	return math.Sqrt(sum / float64(len(values)-1))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// BuildAggregate computes the aggregate record for one
// (run, configuration, invocation-type) group. SampleCount counts every
// attempted invocation in the group; the metric blocks are computed from
// the successful samples that carried the measurement. Init duration is
// aggregated for cold groups only. Deterministic for a given input set, so
// re-running it overwrites an aggregate with identical statistics.
func BuildAggregate(
	runID string,
	cfg benchmark.Configuration,
	invType benchmark.InvocationType,
	results []benchmark.Result,
	timestamp int64,
) *benchmark.Aggregate {
	agg := &benchmark.Aggregate{
		RunID:          runID,
		ConfigID:       cfg.ID(),
		Runtime:        cfg.Runtime,
		Architecture:   cfg.Architecture,
		WorkloadType:   cfg.WorkloadType,
		MemoryMB:       cfg.MemoryMB,
		InvocationType: invType,
		SampleCount:    len(results),
		Timestamp:      timestamp,
	}

	var durations, billed, memory, inits []float64

	for _, r := range results {
		if !r.Success {
			agg.FailedCount++

			continue
		}

		if r.DurationMs != nil {
			durations = append(durations, *r.DurationMs)
		}

		if r.BilledDurationMs != nil {
			billed = append(billed, float64(*r.BilledDurationMs))
		}

		if r.MaxMemoryUsedMB != nil {
			memory = append(memory, float64(*r.MaxMemoryUsedMB))
		}

		if r.InitDurationMs != nil {
			inits = append(inits, *r.InitDurationMs)
		}
	}

	agg.AllSuccessful = agg.FailedCount == 0
	agg.Duration = Compute(durations)
	agg.BilledDuration = Compute(billed)
	agg.MaxMemoryUsed = Compute(memory)

	if invType == benchmark.InvocationCold {
		agg.InitDuration = Compute(inits)
	}

	return agg
}
