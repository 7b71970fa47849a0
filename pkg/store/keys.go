package store

import (
	"fmt"

	"github.com/coldbench/coldbench/pkg/benchmark"
)

// Item type tags distinguishing the three record kinds in one table.
const (
	ItemTypeResult    = "result"
	ItemTypeAggregate = "aggregate"
	ItemTypeRun       = "test-run"
)

const (
	runKeyPrefix      = "TESTRUN#"
	aggregateSKPrefix = "AGGREGATE#"
)

// Secondary index names for the cross-run and full-run read patterns.
const (
	configTimestampIndex = "configId-timestamp-index"
	runTimestampIndex    = "testRunId-timestamp-index"
)

// ResultKey returns the primary key of one invocation result. All results
// of a (run, configuration) pair share a partition; the sort key orders
// them by invocation type and sequence.
func ResultKey(runID, configID string, invType benchmark.InvocationType, sequence int) (pk, sk string) {
	return runID + "#" + configID, fmt.Sprintf("%s#%d", invType, sequence)
}

// GroupSKPrefix returns the sort-key prefix selecting one invocation-type
// group within a (run, configuration) partition.
func GroupSKPrefix(invType benchmark.InvocationType) string {
	return string(invType) + "#"
}

// RunKey returns the self-referencing key of a run record.
func RunKey(runID string) string {
	return runKeyPrefix + runID
}

// AggregateKey places every aggregate of a run in the run's partition so
// one query retrieves them all.
func AggregateKey(runID, configID string, invType benchmark.InvocationType) (pk, sk string) {
	return RunKey(runID), fmt.Sprintf("%s%s#%s", aggregateSKPrefix, configID, invType)
}
