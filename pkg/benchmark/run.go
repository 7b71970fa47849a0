package benchmark

import "sort"

// RunStatus is the lifecycle state of a Run record.
type RunStatus string

// Run statuses.
const (
	RunInProgress RunStatus = "in_progress"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
)

// Run is the metadata record for one complete pass over the matrix.
type Run struct {
	ID                  string    `json:"testRunId"`
	Status              RunStatus `json:"status"`
	Mode                Mode      `json:"mode"`
	Region              string    `json:"region"`
	CreatedAt           int64     `json:"createdAt"`
	StartedAt           int64     `json:"startTime"`
	EndedAt             int64     `json:"endTime,omitempty"`
	TotalConfigurations int       `json:"totalConfigurations"`
	TotalInvocations    int       `json:"totalInvocations"`
	ColdStartsPerConfig int       `json:"coldStartsPerConfig"`
	WarmStartsPerConfig int       `json:"warmStartsPerConfig"`
	FailedInvocations   int       `json:"failedInvocations"`
	Matrix              *Matrix   `json:"testMatrix,omitempty"`
	Notes               string    `json:"notes,omitempty"`
	ErrorSummary        string    `json:"errorSummary,omitempty"`
}

// Matrix summarizes the enumerated configuration space of a run.
type Matrix struct {
	Runtimes       []string      `json:"runtimes"`
	Architectures  []string      `json:"architectures"`
	WorkloadTypes  []string      `json:"workloadTypes"`
	Configurations []MatrixEntry `json:"configurations"`
}

// MatrixEntry groups the memory sizes tested for one
// (runtime, architecture, workload) tuple.
type MatrixEntry struct {
	Runtime       string `json:"runtime"`
	Architecture  string `json:"architecture"`
	WorkloadType  string `json:"workloadType"`
	MemorySizesMB []int  `json:"memorySizes"`
}

// BuildMatrix derives the matrix summary from the enumerated targets.
// Entries and their memory lists are sorted so the summary is deterministic
// for a given target set.
func BuildMatrix(targets []Target) *Matrix {
	type tuple struct {
		runtime, arch, workload string
	}

	runtimes := make(map[string]struct{})
	architectures := make(map[string]struct{})
	workloads := make(map[string]struct{})
	groups := make(map[tuple][]int)

	for _, t := range targets {
		runtimes[t.Function.Runtime] = struct{}{}
		architectures[t.Function.Architecture] = struct{}{}
		workloads[t.Function.WorkloadType] = struct{}{}

		key := tuple{t.Function.Runtime, t.Function.Architecture, t.Function.WorkloadType}

		if !containsInt(groups[key], t.MemoryMB) {
			groups[key] = append(groups[key], t.MemoryMB)
		}
	}

	entries := make([]MatrixEntry, 0, len(groups))

	for key, sizes := range groups {
		sort.Ints(sizes)

		entries = append(entries, MatrixEntry{
			Runtime:       key.runtime,
			Architecture:  key.arch,
			WorkloadType:  key.workload,
			MemorySizesMB: sizes,
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Runtime != entries[j].Runtime {
			return entries[i].Runtime < entries[j].Runtime
		}

		if entries[i].Architecture != entries[j].Architecture {
			return entries[i].Architecture < entries[j].Architecture
		}

		return entries[i].WorkloadType < entries[j].WorkloadType
	})

	return &Matrix{
		Runtimes:       sortedKeys(runtimes),
		Architectures:  sortedKeys(architectures),
		WorkloadTypes:  sortedKeys(workloads),
		Configurations: entries,
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

func containsInt(values []int, v int) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}

	return false
}
