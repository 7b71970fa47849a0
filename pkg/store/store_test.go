package store_test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbench/coldbench/pkg/benchmark"
	"github.com/coldbench/coldbench/pkg/store"
)

func setupTestStore(t *testing.T) store.Store {
	t.Helper()

	cfg := &store.Config{
		Driver: store.DriverSQLite,
		SQLite: store.SQLiteConfig{Path: ":memory:"},
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s, err := store.New(log, cfg, aws.Config{})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

func float64Ptr(v float64) *float64 { return &v }

func int64Ptr(v int64) *int64 { return &v }

func testRun(id string, startTime int64) *benchmark.Run {
	return &benchmark.Run{
		ID:                  id,
		Status:              benchmark.RunInProgress,
		Mode:                benchmark.ModeTest,
		Region:              "us-east-2",
		CreatedAt:           startTime,
		StartedAt:           startTime,
		TotalConfigurations: 2,
		TotalInvocations:    8,
		ColdStartsPerConfig: 2,
		WarmStartsPerConfig: 2,
		Matrix: &benchmark.Matrix{
			Runtimes:      []string{"python3.13"},
			Architectures: []string{"arm64"},
			WorkloadTypes: []string{"light"},
			Configurations: []benchmark.MatrixEntry{
				{Runtime: "python3.13", Architecture: "arm64", WorkloadType: "light", MemorySizesMB: []int{128, 512}},
			},
		},
		Notes: "nightly comparison",
	}
}

func testResult(runID, configID string, invType benchmark.InvocationType, seq int, ts int64) *benchmark.Result {
	return &benchmark.Result{
		RunID:            runID,
		ConfigID:         configID,
		Runtime:          "python3.13",
		Architecture:     "arm64",
		WorkloadType:     "light",
		MemoryMB:         512,
		InvocationType:   invType,
		Sequence:         seq,
		FunctionName:     "python3-13-arm64-light",
		FunctionVersion:  "4",
		RequestID:        "req-1",
		Success:          true,
		DurationMs:       float64Ptr(12.5),
		BilledDurationMs: int64Ptr(13),
		MaxMemoryUsedMB:  int64Ptr(42),
		Timestamp:        ts,
	}
}

func TestStore_RunLifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, testRun("run-1", 1000)))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, benchmark.RunInProgress, got.Status)
	assert.Equal(t, benchmark.ModeTest, got.Mode)
	assert.Equal(t, "us-east-2", got.Region)
	assert.Equal(t, 8, got.TotalInvocations)
	assert.Equal(t, "nightly comparison", got.Notes)

	require.NotNil(t, got.Matrix)
	require.Len(t, got.Matrix.Configurations, 1)
	assert.Equal(t, []int{128, 512}, got.Matrix.Configurations[0].MemorySizesMB)

	require.NoError(t, s.FinalizeRun(ctx, "run-1", benchmark.RunCompleted, 2000, 3, "1 configuration(s) failed during benchmark execution"))

	got, err = s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, benchmark.RunCompleted, got.Status)
	assert.Equal(t, int64(2000), got.EndedAt)
	assert.Equal(t, 3, got.FailedInvocations)
	assert.Equal(t, "1 configuration(s) failed during benchmark execution", got.ErrorSummary)
}

func TestStore_GetRun_NotFound(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrRunNotFound)

	err = s.FinalizeRun(context.Background(), "missing", benchmark.RunFailed, 1, 0, "")
	assert.ErrorIs(t, err, store.ErrRunNotFound)
}

func TestStore_ListRuns(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, testRun("run-old", 1000)))
	require.NoError(t, s.CreateRun(ctx, testRun("run-new", 2000)))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].ID)
	assert.Equal(t, "run-old", runs[1].ID)

	runs, err = s.ListRuns(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-new", runs[0].ID)
}

func TestStore_Results(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	configID := "python3.13-arm64-light-512"

	require.NoError(t, s.PutResult(ctx, testResult("run-1", configID, benchmark.InvocationCold, 2, 20)))
	require.NoError(t, s.PutResult(ctx, testResult("run-1", configID, benchmark.InvocationCold, 1, 10)))
	require.NoError(t, s.PutResult(ctx, testResult("run-1", configID, benchmark.InvocationWarm, 1, 30)))
	require.NoError(t, s.PutResult(ctx, testResult("run-2", configID, benchmark.InvocationCold, 1, 40)))

	cold, err := s.ListGroupResults(ctx, "run-1", configID, benchmark.InvocationCold)
	require.NoError(t, err)
	require.Len(t, cold, 2)
	assert.Equal(t, 1, cold[0].Sequence)
	assert.Equal(t, 2, cold[1].Sequence)
	assert.Equal(t, benchmark.InvocationCold, cold[0].InvocationType)

	warm, err := s.ListGroupResults(ctx, "run-1", configID, benchmark.InvocationWarm)
	require.NoError(t, err)
	require.Len(t, warm, 1)

	all, err := s.ListRunResults(ctx, "run-1")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// Cross-run trend query, newest first.
	trend, err := s.ListConfigResults(ctx, configID, 0)
	require.NoError(t, err)
	require.Len(t, trend, 4)
	assert.Equal(t, "run-2", trend[0].RunID)

	capped, err := s.ListConfigResults(ctx, configID, 2)
	require.NoError(t, err)
	assert.Len(t, capped, 2)
}

func TestStore_ResultRoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	failed := &benchmark.Result{
		RunID:          "run-1",
		ConfigID:       "rust-x86-light-128",
		Runtime:        "rust",
		Architecture:   "x86",
		WorkloadType:   "light",
		MemoryMB:       128,
		InvocationType: benchmark.InvocationCold,
		Sequence:       1,
		FunctionName:   "rust-x86-light",
		Success:        false,
		Error:          "forcing cold state: update in progress",
		Timestamp:      5,
	}

	require.NoError(t, s.PutResult(ctx, failed))

	got, err := s.ListGroupResults(ctx, "run-1", "rust-x86-light-128", benchmark.InvocationCold)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// Failed results keep their error and carry no timing fields.
	assert.False(t, got[0].Success)
	assert.Equal(t, "forcing cold state: update in progress", got[0].Error)
	assert.Nil(t, got[0].DurationMs)
	assert.Nil(t, got[0].BilledDurationMs)
	assert.Nil(t, got[0].InitDurationMs)
}

func TestStore_AggregateUpsert(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	agg := &benchmark.Aggregate{
		RunID:          "run-1",
		ConfigID:       "python3.13-arm64-light-512",
		Runtime:        "python3.13",
		Architecture:   "arm64",
		WorkloadType:   "light",
		MemoryMB:       512,
		InvocationType: benchmark.InvocationCold,
		SampleCount:    2,
		FailedCount:    0,
		AllSuccessful:  true,
		Duration:       &benchmark.Metric{Mean: 50, Median: 50, Min: 40, Max: 60, P90: 60, P95: 60, P99: 60, Count: 2},
		InitDuration:   &benchmark.Metric{Mean: 200, Median: 200, Min: 190, Max: 210, P90: 210, P95: 210, P99: 210, Count: 2},
		Timestamp:      100,
	}

	require.NoError(t, s.PutAggregate(ctx, agg))

	// Recomputing overwrites instead of duplicating.
	agg.SampleCount = 3
	agg.FailedCount = 1
	agg.AllSuccessful = false
	require.NoError(t, s.PutAggregate(ctx, agg))

	aggs, err := s.ListAggregates(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, aggs, 1)

	got := aggs[0]
	assert.Equal(t, 3, got.SampleCount)
	assert.Equal(t, 1, got.FailedCount)
	assert.False(t, got.AllSuccessful)

	require.NotNil(t, got.Duration)
	assert.Equal(t, 50.0, got.Duration.Mean)
	require.NotNil(t, got.InitDuration)
	assert.Equal(t, 2, got.InitDuration.Count)
	assert.Nil(t, got.BilledDuration)
	assert.Nil(t, got.MaxMemoryUsed)
}

func TestStore_Purge(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateRun(ctx, testRun("run-1", 1000)))
	require.NoError(t, s.PutResult(ctx, testResult("run-1", "cfg-1", benchmark.InvocationCold, 1, 10)))
	require.NoError(t, s.PutAggregate(ctx, &benchmark.Aggregate{
		RunID:          "run-1",
		ConfigID:       "cfg-1",
		InvocationType: benchmark.InvocationCold,
		SampleCount:    1,
	}))

	deleted, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	_, err = s.GetRun(ctx, "run-1")
	assert.ErrorIs(t, err, store.ErrRunNotFound)

	results, err := s.ListRunResults(ctx, "run-1")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestNew_UnsupportedDriver(t *testing.T) {
	_, err := store.New(logrus.New(), &store.Config{Driver: "bolt"}, aws.Config{})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage driver")
}

func TestKeys(t *testing.T) {
	pk, sk := store.ResultKey("run-1", "python3.13-arm64-light-512", benchmark.InvocationCold, 3)
	assert.Equal(t, "run-1#python3.13-arm64-light-512", pk)
	assert.Equal(t, "cold#3", sk)

	assert.Equal(t, "TESTRUN#run-1", store.RunKey("run-1"))

	pk, sk = store.AggregateKey("run-1", "python3.13-arm64-light-512", benchmark.InvocationWarm)
	assert.Equal(t, "TESTRUN#run-1", pk)
	assert.Equal(t, "AGGREGATE#python3.13-arm64-light-512#warm", sk)

	assert.Equal(t, "cold#", store.GroupSKPrefix(benchmark.InvocationCold))
}
