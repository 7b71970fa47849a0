package store

import (
	"encoding/json"
	"fmt"

	"github.com/coldbench/coldbench/pkg/benchmark"
)

// RunRecord is a benchmark run in the relational backend.
type RunRecord struct {
	ID                  uint   `gorm:"primaryKey"`
	RunID               string `gorm:"not null;uniqueIndex"`
	Timestamp           int64
	Status              string
	Mode                string
	Region              string
	StartTime           int64 `gorm:"index"`
	EndTime             int64
	TotalConfigurations int
	TotalInvocations    int
	ColdStartsPerConfig int
	WarmStartsPerConfig int
	FailedInvocations   int

	// Full configuration matrix serialized as JSON.
	MatrixJSON string `gorm:"type:text"`

	Notes        string
	ErrorSummary string
}

// ResultRecord is one invocation result in the relational backend. The
// composite indexes back the by-run and by-configuration read patterns.
type ResultRecord struct {
	ID               uint   `gorm:"primaryKey"`
	TestRunID        string `gorm:"not null;uniqueIndex:idx_results_identity,priority:1;index:idx_results_run_ts,priority:1"`
	ConfigID         string `gorm:"not null;uniqueIndex:idx_results_identity,priority:2;index:idx_results_config_ts,priority:1"`
	InvocationType   string `gorm:"not null;uniqueIndex:idx_results_identity,priority:3"`
	InvocationNumber int    `gorm:"not null;uniqueIndex:idx_results_identity,priority:4"`
	Timestamp        int64  `gorm:"index:idx_results_run_ts,priority:2;index:idx_results_config_ts,priority:2"`
	Runtime          string
	Architecture     string
	WorkloadType     string
	MemorySizeMB     int
	FunctionName     string
	FunctionVersion  string
	RequestID        string
	Success          bool
	Error            string
	DurationMs       *float64
	BilledDurationMs *int64
	MaxMemoryUsedMB  *int64
	InitDurationMs   *float64
}

// AggregateRecord is one aggregate in the relational backend, unique per
// (run, configuration, invocation-type) group.
type AggregateRecord struct {
	ID             uint   `gorm:"primaryKey"`
	RunID          string `gorm:"not null;uniqueIndex:idx_aggregates_group,priority:1"`
	ConfigID       string `gorm:"not null;uniqueIndex:idx_aggregates_group,priority:2;index"`
	InvocationType string `gorm:"not null;uniqueIndex:idx_aggregates_group,priority:3"`
	Timestamp      int64
	Runtime        string
	Architecture   string
	WorkloadType   string
	MemorySizeMB   int
	SampleCount    int
	FailedCount    int
	AllSuccessful  bool

	// Metric blocks serialized as JSON.
	MetricsJSON string `gorm:"type:text"`
}

// aggregateMetrics is the serialized shape of an aggregate's metric
// blocks.
type aggregateMetrics struct {
	Duration       *benchmark.Metric `json:"duration,omitempty"`
	BilledDuration *benchmark.Metric `json:"billedDuration,omitempty"`
	MaxMemoryUsed  *benchmark.Metric `json:"maxMemoryUsed,omitempty"`
	InitDuration   *benchmark.Metric `json:"initDuration,omitempty"`
}

func runRecordFromDomain(r *benchmark.Run) (*RunRecord, error) {
	var matrixJSON []byte

	if r.Matrix != nil {
		var err error

		matrixJSON, err = json.Marshal(r.Matrix)
		if err != nil {
			return nil, fmt.Errorf("marshaling matrix: %w", err)
		}
	}

	return &RunRecord{
		RunID:               r.ID,
		Timestamp:           r.CreatedAt,
		Status:              string(r.Status),
		Mode:                string(r.Mode),
		Region:              r.Region,
		StartTime:           r.StartedAt,
		EndTime:             r.EndedAt,
		TotalConfigurations: r.TotalConfigurations,
		TotalInvocations:    r.TotalInvocations,
		ColdStartsPerConfig: r.ColdStartsPerConfig,
		WarmStartsPerConfig: r.WarmStartsPerConfig,
		FailedInvocations:   r.FailedInvocations,
		MatrixJSON:          string(matrixJSON),
		Notes:               r.Notes,
		ErrorSummary:        r.ErrorSummary,
	}, nil
}

func (r *RunRecord) toDomain() (*benchmark.Run, error) {
	run := &benchmark.Run{
		ID:                  r.RunID,
		Status:              benchmark.RunStatus(r.Status),
		Mode:                benchmark.Mode(r.Mode),
		Region:              r.Region,
		CreatedAt:           r.Timestamp,
		StartedAt:           r.StartTime,
		EndedAt:             r.EndTime,
		TotalConfigurations: r.TotalConfigurations,
		TotalInvocations:    r.TotalInvocations,
		ColdStartsPerConfig: r.ColdStartsPerConfig,
		WarmStartsPerConfig: r.WarmStartsPerConfig,
		FailedInvocations:   r.FailedInvocations,
		Notes:               r.Notes,
		ErrorSummary:        r.ErrorSummary,
	}

	if r.MatrixJSON != "" {
		var matrix benchmark.Matrix
		if err := json.Unmarshal([]byte(r.MatrixJSON), &matrix); err != nil {
			return nil, fmt.Errorf("unmarshaling matrix of run %s: %w", r.RunID, err)
		}

		run.Matrix = &matrix
	}

	return run, nil
}

func resultRecordFromDomain(r *benchmark.Result) *ResultRecord {
	return &ResultRecord{
		TestRunID:        r.RunID,
		ConfigID:         r.ConfigID,
		InvocationType:   string(r.InvocationType),
		InvocationNumber: r.Sequence,
		Timestamp:        r.Timestamp,
		Runtime:          r.Runtime,
		Architecture:     r.Architecture,
		WorkloadType:     r.WorkloadType,
		MemorySizeMB:     r.MemoryMB,
		FunctionName:     r.FunctionName,
		FunctionVersion:  r.FunctionVersion,
		RequestID:        r.RequestID,
		Success:          r.Success,
		Error:            r.Error,
		DurationMs:       r.DurationMs,
		BilledDurationMs: r.BilledDurationMs,
		MaxMemoryUsedMB:  r.MaxMemoryUsedMB,
		InitDurationMs:   r.InitDurationMs,
	}
}

func (r *ResultRecord) toDomain() *benchmark.Result {
	return &benchmark.Result{
		RunID:            r.TestRunID,
		ConfigID:         r.ConfigID,
		Runtime:          r.Runtime,
		Architecture:     r.Architecture,
		WorkloadType:     r.WorkloadType,
		MemoryMB:         r.MemorySizeMB,
		InvocationType:   benchmark.InvocationType(r.InvocationType),
		Sequence:         r.InvocationNumber,
		FunctionName:     r.FunctionName,
		FunctionVersion:  r.FunctionVersion,
		RequestID:        r.RequestID,
		Success:          r.Success,
		Error:            r.Error,
		DurationMs:       r.DurationMs,
		BilledDurationMs: r.BilledDurationMs,
		MaxMemoryUsedMB:  r.MaxMemoryUsedMB,
		InitDurationMs:   r.InitDurationMs,
		Timestamp:        r.Timestamp,
	}
}

func aggregateRecordFromDomain(a *benchmark.Aggregate) (*AggregateRecord, error) {
	metricsJSON, err := json.Marshal(aggregateMetrics{
		Duration:       a.Duration,
		BilledDuration: a.BilledDuration,
		MaxMemoryUsed:  a.MaxMemoryUsed,
		InitDuration:   a.InitDuration,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling aggregate metrics: %w", err)
	}

	return &AggregateRecord{
		RunID:          a.RunID,
		ConfigID:       a.ConfigID,
		InvocationType: string(a.InvocationType),
		Timestamp:      a.Timestamp,
		Runtime:        a.Runtime,
		Architecture:   a.Architecture,
		WorkloadType:   a.WorkloadType,
		MemorySizeMB:   a.MemoryMB,
		SampleCount:    a.SampleCount,
		FailedCount:    a.FailedCount,
		AllSuccessful:  a.AllSuccessful,
		MetricsJSON:    string(metricsJSON),
	}, nil
}

func (r *AggregateRecord) toDomain() (*benchmark.Aggregate, error) {
	agg := &benchmark.Aggregate{
		RunID:          r.RunID,
		ConfigID:       r.ConfigID,
		Runtime:        r.Runtime,
		Architecture:   r.Architecture,
		WorkloadType:   r.WorkloadType,
		MemoryMB:       r.MemorySizeMB,
		InvocationType: benchmark.InvocationType(r.InvocationType),
		SampleCount:    r.SampleCount,
		FailedCount:    r.FailedCount,
		AllSuccessful:  r.AllSuccessful,
		Timestamp:      r.Timestamp,
	}

	if r.MetricsJSON != "" {
		var metrics aggregateMetrics
		if err := json.Unmarshal([]byte(r.MetricsJSON), &metrics); err != nil {
			return nil, fmt.Errorf("unmarshaling metrics of aggregate %s/%s: %w", r.ConfigID, r.InvocationType, err)
		}

		agg.Duration = metrics.Duration
		agg.BilledDuration = metrics.BilledDuration
		agg.MaxMemoryUsed = metrics.MaxMemoryUsed
		agg.InitDuration = metrics.InitDuration
	}

	return agg, nil
}
