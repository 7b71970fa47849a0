// Package benchmark defines the vocabulary shared by every component: the
// configuration matrix, sample records, run metadata and aggregates.
package benchmark

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Workload types executed by the benchmarked functions.
const (
	WorkloadCPUIntensive    = "cpu-intensive"
	WorkloadMemoryIntensive = "memory-intensive"
	WorkloadLight           = "light"
)

// MemoryLadders lists the memory sizes (MB) exercised per workload type.
// Powers of two plus 1769 MB, the allocation at which a function receives
// one full vCPU. The memory-intensive ladder extends to the platform
// maximum to expose bandwidth and allocation effects.
var MemoryLadders = map[string][]int{
	WorkloadCPUIntensive:    {128, 256, 512, 1024, 1769, 2048},
	WorkloadMemoryIntensive: {128, 256, 512, 1024, 1769, 2048, 4096, 8192, 10240},
	WorkloadLight:           {128, 256, 512, 1024, 1769, 2048},
}

// MemorySizesFor returns the ladder for a workload type, restricted to the
// allowed sizes when allowed is non-empty. Unknown workload types fall back
// to the single-vCPU allocation.
func MemorySizesFor(workloadType string, allowed []int) []int {
	ladder, ok := MemoryLadders[workloadType]
	if !ok {
		ladder = []int{1769}
	}

	if len(allowed) == 0 {
		return ladder
	}

	allowedSet := make(map[int]struct{}, len(allowed))
	for _, m := range allowed {
		allowedSet[m] = struct{}{}
	}

	sizes := make([]int, 0, len(ladder))

	for _, m := range ladder {
		if _, ok := allowedSet[m]; ok {
			sizes = append(sizes, m)
		}
	}

	return sizes
}

// functionNamePattern matches deployed function names such as
// python3-13-arm64-cpu-intensive, nodejs22-x86-light or rust-arm64-light.
var functionNamePattern = regexp.MustCompile(`^(python\d+-\d+|nodejs\d+|rust)-(arm64|x86)-([\w-]+)$`)

// ParseFunctionName splits a deployed function name into runtime,
// architecture and workload type. Python runtime segments carry a dash in
// function names (python3-13) and are normalized to dotted form (python3.13).
func ParseFunctionName(name string) (runtime, arch, workload string, err error) {
	m := functionNamePattern.FindStringSubmatch(name)
	if m == nil {
		return "", "", "", fmt.Errorf("function name %q does not match {runtime}-{arch}-{workload}", name)
	}

	runtime = m[1]
	if strings.HasPrefix(runtime, "python") {
		runtime = strings.Replace(runtime, "-", ".", 1)
	}

	return runtime, m[2], m[3], nil
}

// FunctionInfo describes one deployed function as discovered from the stack.
type FunctionInfo struct {
	Name            string
	Runtime         string
	Architecture    string
	WorkloadType    string
	CurrentMemoryMB int
	TimeoutSec      int
	Version         string
}

// Configuration is one point of the benchmark matrix.
type Configuration struct {
	Runtime      string
	Architecture string
	WorkloadType string
	MemoryMB     int
}

// ID returns the deterministic configuration key in the form
// {runtime}-{architecture}-{workloadType}-{memoryMB}, for example
// python3.13-arm64-cpu-intensive-1769.
func (c Configuration) ID() string {
	return fmt.Sprintf("%s-%s-%s-%d", c.Runtime, c.Architecture, c.WorkloadType, c.MemoryMB)
}

// ParseConfigID parses a configuration key back into its components. The
// architecture token anchors the split so hyphenated workload types such as
// cpu-intensive survive the round trip.
func ParseConfigID(id string) (Configuration, error) {
	sep := strings.LastIndex(id, "-")
	if sep < 0 {
		return Configuration{}, fmt.Errorf("invalid configuration key %q", id)
	}

	memoryMB, err := strconv.Atoi(id[sep+1:])
	if err != nil {
		return Configuration{}, fmt.Errorf("invalid memory size in configuration key %q", id)
	}

	parts := strings.Split(id[:sep], "-")

	archIdx := -1

	for i, p := range parts {
		if p == "arm64" || p == "x86" {
			archIdx = i

			break
		}
	}

	if archIdx <= 0 || archIdx == len(parts)-1 {
		return Configuration{}, fmt.Errorf("invalid configuration key %q", id)
	}

	return Configuration{
		Runtime:      strings.Join(parts[:archIdx], "-"),
		Architecture: parts[archIdx],
		WorkloadType: strings.Join(parts[archIdx+1:], "-"),
		MemoryMB:     memoryMB,
	}, nil
}

// Target pairs a deployed function with one memory size to benchmark.
type Target struct {
	Function FunctionInfo
	MemoryMB int
}

// Configuration returns the matrix point this target samples.
func (t Target) Configuration() Configuration {
	return Configuration{
		Runtime:      t.Function.Runtime,
		Architecture: t.Function.Architecture,
		WorkloadType: t.Function.WorkloadType,
		MemoryMB:     t.MemoryMB,
	}
}
