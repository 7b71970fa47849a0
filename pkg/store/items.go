package store

import (
	"github.com/coldbench/coldbench/pkg/benchmark"
)

// Stored item shapes for the keyed backend, one per record kind. Optional
// measurements stay pointers so absent values are omitted instead of
// written as nulls.

type resultItem struct {
	PK               string   `dynamodbav:"pk"`
	SK               string   `dynamodbav:"sk"`
	ItemType         string   `dynamodbav:"itemType"`
	TestRunID        string   `dynamodbav:"testRunId"`
	Timestamp        int64    `dynamodbav:"timestamp"`
	ConfigID         string   `dynamodbav:"configId"`
	Runtime          string   `dynamodbav:"runtime"`
	Architecture     string   `dynamodbav:"architecture"`
	WorkloadType     string   `dynamodbav:"workloadType"`
	MemorySizeMB     int      `dynamodbav:"memorySizeMB"`
	InvocationType   string   `dynamodbav:"invocationType"`
	InvocationNumber int      `dynamodbav:"invocationNumber"`
	FunctionName     string   `dynamodbav:"functionName"`
	FunctionVersion  string   `dynamodbav:"functionVersion,omitempty"`
	RequestID        string   `dynamodbav:"lambdaRequestId,omitempty"`
	Success          bool     `dynamodbav:"success"`
	Error            string   `dynamodbav:"error,omitempty"`
	DurationMs       *float64 `dynamodbav:"durationMs,omitempty"`
	BilledDurationMs *int64   `dynamodbav:"billedDurationMs,omitempty"`
	MaxMemoryUsedMB  *int64   `dynamodbav:"maxMemoryUsedMB,omitempty"`
	InitDurationMs   *float64 `dynamodbav:"initDurationMs,omitempty"`
}

func resultItemFromDomain(r *benchmark.Result) *resultItem {
	pk, sk := ResultKey(r.RunID, r.ConfigID, r.InvocationType, r.Sequence)

	return &resultItem{
		PK:               pk,
		SK:               sk,
		ItemType:         ItemTypeResult,
		TestRunID:        r.RunID,
		Timestamp:        r.Timestamp,
		ConfigID:         r.ConfigID,
		Runtime:          r.Runtime,
		Architecture:     r.Architecture,
		WorkloadType:     r.WorkloadType,
		MemorySizeMB:     r.MemoryMB,
		InvocationType:   string(r.InvocationType),
		InvocationNumber: r.Sequence,
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

func (i *resultItem) toDomain() *benchmark.Result {
	return &benchmark.Result{
		RunID:            i.TestRunID,
		ConfigID:         i.ConfigID,
		Runtime:          i.Runtime,
		Architecture:     i.Architecture,
		WorkloadType:     i.WorkloadType,
		MemoryMB:         i.MemorySizeMB,
		InvocationType:   benchmark.InvocationType(i.InvocationType),
		Sequence:         i.InvocationNumber,
		FunctionName:     i.FunctionName,
		FunctionVersion:  i.FunctionVersion,
		RequestID:        i.RequestID,
		Success:          i.Success,
		Error:            i.Error,
		DurationMs:       i.DurationMs,
		BilledDurationMs: i.BilledDurationMs,
		MaxMemoryUsedMB:  i.MaxMemoryUsedMB,
		InitDurationMs:   i.InitDurationMs,
		Timestamp:        i.Timestamp,
	}
}

type metricItem struct {
	Mean   float64 `dynamodbav:"mean"`
	Median float64 `dynamodbav:"median"`
	Min    float64 `dynamodbav:"min"`
	Max    float64 `dynamodbav:"max"`
	StdDev float64 `dynamodbav:"stdev"`
	P90    float64 `dynamodbav:"p90"`
	P95    float64 `dynamodbav:"p95"`
	P99    float64 `dynamodbav:"p99"`
	Count  int     `dynamodbav:"sampleCount"`
}

func metricItemFromDomain(m *benchmark.Metric) *metricItem {
	if m == nil {
		return nil
	}

	return &metricItem{
		Mean:   m.Mean,
		Median: m.Median,
		Min:    m.Min,
		Max:    m.Max,
		StdDev: m.StdDev,
		P90:    m.P90,
		P95:    m.P95,
		P99:    m.P99,
		Count:  m.Count,
	}
}

func (i *metricItem) toDomain() *benchmark.Metric {
	if i == nil {
		return nil
	}

	return &benchmark.Metric{
		Mean:   i.Mean,
		Median: i.Median,
		Min:    i.Min,
		Max:    i.Max,
		StdDev: i.StdDev,
		P90:    i.P90,
		P95:    i.P95,
		P99:    i.P99,
		Count:  i.Count,
	}
}

type aggregateItem struct {
	PK             string      `dynamodbav:"pk"`
	SK             string      `dynamodbav:"sk"`
	ItemType       string      `dynamodbav:"itemType"`
	TestRunID      string      `dynamodbav:"testRunId"`
	Timestamp      int64       `dynamodbav:"timestamp"`
	ConfigID       string      `dynamodbav:"configId"`
	Runtime        string      `dynamodbav:"runtime"`
	Architecture   string      `dynamodbav:"architecture"`
	WorkloadType   string      `dynamodbav:"workloadType"`
	MemorySizeMB   int         `dynamodbav:"memorySizeMB"`
	InvocationType string      `dynamodbav:"invocationType"`
	SampleCount    int         `dynamodbav:"sampleCount"`
	FailedCount    int         `dynamodbav:"failedCount"`
	AllSuccessful  bool        `dynamodbav:"allSuccessful"`
	DurationStats  *metricItem `dynamodbav:"durationMsStats,omitempty"`
	BilledStats    *metricItem `dynamodbav:"billedDurationMsStats,omitempty"`
	MemoryStats    *metricItem `dynamodbav:"memoryMBStats,omitempty"`
	InitStats      *metricItem `dynamodbav:"initDurationMsStats,omitempty"`
}

func aggregateItemFromDomain(a *benchmark.Aggregate) *aggregateItem {
	pk, sk := AggregateKey(a.RunID, a.ConfigID, a.InvocationType)

	return &aggregateItem{
		PK:             pk,
		SK:             sk,
		ItemType:       ItemTypeAggregate,
		TestRunID:      a.RunID,
		Timestamp:      a.Timestamp,
		ConfigID:       a.ConfigID,
		Runtime:        a.Runtime,
		Architecture:   a.Architecture,
		WorkloadType:   a.WorkloadType,
		MemorySizeMB:   a.MemoryMB,
		InvocationType: string(a.InvocationType),
		SampleCount:    a.SampleCount,
		FailedCount:    a.FailedCount,
		AllSuccessful:  a.AllSuccessful,
		DurationStats:  metricItemFromDomain(a.Duration),
		BilledStats:    metricItemFromDomain(a.BilledDuration),
		MemoryStats:    metricItemFromDomain(a.MaxMemoryUsed),
		InitStats:      metricItemFromDomain(a.InitDuration),
	}
}

func (i *aggregateItem) toDomain() *benchmark.Aggregate {
	return &benchmark.Aggregate{
		RunID:          i.TestRunID,
		ConfigID:       i.ConfigID,
		Runtime:        i.Runtime,
		Architecture:   i.Architecture,
		WorkloadType:   i.WorkloadType,
		MemoryMB:       i.MemorySizeMB,
		InvocationType: benchmark.InvocationType(i.InvocationType),
		SampleCount:    i.SampleCount,
		FailedCount:    i.FailedCount,
		AllSuccessful:  i.AllSuccessful,
		Duration:       i.DurationStats.toDomain(),
		BilledDuration: i.BilledStats.toDomain(),
		MaxMemoryUsed:  i.MemoryStats.toDomain(),
		InitDuration:   i.InitStats.toDomain(),
		Timestamp:      i.Timestamp,
	}
}

type matrixEntryItem struct {
	Runtime       string `dynamodbav:"runtime"`
	Architecture  string `dynamodbav:"architecture"`
	WorkloadType  string `dynamodbav:"workloadType"`
	MemorySizesMB []int  `dynamodbav:"memorySizes"`
}

type matrixItem struct {
	Runtimes       []string          `dynamodbav:"runtimes"`
	Architectures  []string          `dynamodbav:"architectures"`
	WorkloadTypes  []string          `dynamodbav:"workloadTypes"`
	Configurations []matrixEntryItem `dynamodbav:"configurations"`
}

func matrixItemFromDomain(m *benchmark.Matrix) *matrixItem {
	if m == nil {
		return nil
	}

	entries := make([]matrixEntryItem, 0, len(m.Configurations))
	for _, e := range m.Configurations {
		entries = append(entries, matrixEntryItem{
			Runtime:       e.Runtime,
			Architecture:  e.Architecture,
			WorkloadType:  e.WorkloadType,
			MemorySizesMB: e.MemorySizesMB,
		})
	}

	return &matrixItem{
		Runtimes:       m.Runtimes,
		Architectures:  m.Architectures,
		WorkloadTypes:  m.WorkloadTypes,
		Configurations: entries,
	}
}

func (i *matrixItem) toDomain() *benchmark.Matrix {
	if i == nil {
		return nil
	}

	entries := make([]benchmark.MatrixEntry, 0, len(i.Configurations))
	for _, e := range i.Configurations {
		entries = append(entries, benchmark.MatrixEntry{
			Runtime:       e.Runtime,
			Architecture:  e.Architecture,
			WorkloadType:  e.WorkloadType,
			MemorySizesMB: e.MemorySizesMB,
		})
	}

	return &benchmark.Matrix{
		Runtimes:       i.Runtimes,
		Architectures:  i.Architectures,
		WorkloadTypes:  i.WorkloadTypes,
		Configurations: entries,
	}
}

type runItem struct {
	PK                  string      `dynamodbav:"pk"`
	SK                  string      `dynamodbav:"sk"`
	ItemType            string      `dynamodbav:"itemType"`
	TestRunID           string      `dynamodbav:"testRunId"`
	Timestamp           int64       `dynamodbav:"timestamp"`
	Status              string      `dynamodbav:"status"`
	StartTime           int64       `dynamodbav:"startTime"`
	EndTime             int64       `dynamodbav:"endTime,omitempty"`
	Mode                string      `dynamodbav:"mode"`
	Region              string      `dynamodbav:"region"`
	TotalConfigurations int         `dynamodbav:"totalConfigurations"`
	TotalInvocations    int         `dynamodbav:"totalInvocations"`
	ColdStartsPerConfig int         `dynamodbav:"coldStartsPerConfig"`
	WarmStartsPerConfig int         `dynamodbav:"warmStartsPerConfig"`
	FailedInvocations   int         `dynamodbav:"failedInvocations"`
	TestMatrix          *matrixItem `dynamodbav:"testMatrix,omitempty"`
	Notes               string      `dynamodbav:"notes,omitempty"`
	ErrorSummary        string      `dynamodbav:"errorSummary,omitempty"`
}

func runItemFromDomain(r *benchmark.Run) *runItem {
	key := RunKey(r.ID)

	return &runItem{
		PK:                  key,
		SK:                  key,
		ItemType:            ItemTypeRun,
		TestRunID:           r.ID,
		Timestamp:           r.CreatedAt,
		Status:              string(r.Status),
		StartTime:           r.StartedAt,
		EndTime:             r.EndedAt,
		Mode:                string(r.Mode),
		Region:              r.Region,
		TotalConfigurations: r.TotalConfigurations,
		TotalInvocations:    r.TotalInvocations,
		ColdStartsPerConfig: r.ColdStartsPerConfig,
		WarmStartsPerConfig: r.WarmStartsPerConfig,
		FailedInvocations:   r.FailedInvocations,
		TestMatrix:          matrixItemFromDomain(r.Matrix),
		Notes:               r.Notes,
		ErrorSummary:        r.ErrorSummary,
	}
}

func (i *runItem) toDomain() *benchmark.Run {
	return &benchmark.Run{
		ID:                  i.TestRunID,
		Status:              benchmark.RunStatus(i.Status),
		Mode:                benchmark.Mode(i.Mode),
		Region:              i.Region,
		CreatedAt:           i.Timestamp,
		StartedAt:           i.StartTime,
		EndedAt:             i.EndTime,
		TotalConfigurations: i.TotalConfigurations,
		TotalInvocations:    i.TotalInvocations,
		ColdStartsPerConfig: i.ColdStartsPerConfig,
		WarmStartsPerConfig: i.WarmStartsPerConfig,
		FailedInvocations:   i.FailedInvocations,
		Matrix:              i.TestMatrix.toDomain(),
		Notes:               i.Notes,
		ErrorSummary:        i.ErrorSummary,
	}
}
