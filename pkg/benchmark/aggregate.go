package benchmark

// Metric holds descriptive statistics for one measurement across the
// successful samples of a group. Count is the number of samples that
// carried the measurement.
type Metric struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	StdDev float64 `json:"stdev"`
	P90    float64 `json:"p90"`
	P95    float64 `json:"p95"`
	P99    float64 `json:"p99"`
	Count  int     `json:"sampleCount"`
}

// Aggregate holds the derived statistics for one
// (run, configuration, invocation-type) group. It is a recomputable cache
// over the group's Results: SampleCount counts every attempted invocation,
// FailedCount the failures among them, and the metric blocks are computed
// from successful samples only. InitDuration is set for cold groups that
// captured at least one init duration.
type Aggregate struct {
	RunID          string         `json:"testRunId"`
	ConfigID       string         `json:"configId"`
	Runtime        string         `json:"runtime"`
	Architecture   string         `json:"architecture"`
	WorkloadType   string         `json:"workloadType"`
	MemoryMB       int            `json:"memorySizeMB"`
	InvocationType InvocationType `json:"invocationType"`
	SampleCount    int            `json:"sampleCount"`
	FailedCount    int            `json:"failedCount"`
	AllSuccessful  bool           `json:"allSuccessful"`
	Duration       *Metric        `json:"durationMsStats,omitempty"`
	BilledDuration *Metric        `json:"billedDurationMsStats,omitempty"`
	MaxMemoryUsed  *Metric        `json:"maxMemoryUsedMBStats,omitempty"`
	InitDuration   *Metric        `json:"initDurationMsStats,omitempty"`
	Timestamp      int64          `json:"timestamp"`
}
