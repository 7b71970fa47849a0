package benchmark

// InvocationType distinguishes cold samples from warm samples.
type InvocationType string

// Invocation types.
const (
	InvocationCold InvocationType = "cold"
	InvocationWarm InvocationType = "warm"
)

// Result records one invocation attempt. Identity is
// (RunID, ConfigID, InvocationType, Sequence); records are immutable once
// written. A failed Result carries no timing fields unless the platform
// still emitted a report, in which case timing and the error are both
// present.
type Result struct {
	RunID            string
	ConfigID         string
	Runtime          string
	Architecture     string
	WorkloadType     string
	MemoryMB         int
	InvocationType   InvocationType
	Sequence         int
	FunctionName     string
	FunctionVersion  string
	RequestID        string
	Success          bool
	Error            string
	DurationMs       *float64
	BilledDurationMs *int64
	MaxMemoryUsedMB  *int64
	InitDurationMs   *float64
	Timestamp        int64
}

// NewResult builds the identity and dimension fields of a Result for one
// target; callers fill in the outcome.
func NewResult(runID string, target Target, invType InvocationType, seq int, timestamp int64) *Result {
	cfg := target.Configuration()

	return &Result{
		RunID:           runID,
		ConfigID:        cfg.ID(),
		Runtime:         cfg.Runtime,
		Architecture:    cfg.Architecture,
		WorkloadType:    cfg.WorkloadType,
		MemoryMB:        cfg.MemoryMB,
		InvocationType:  invType,
		Sequence:        seq,
		FunctionName:    target.Function.Name,
		FunctionVersion: target.Function.Version,
		Timestamp:       timestamp,
	}
}
