package runner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbench/coldbench/pkg/benchmark"
	"github.com/coldbench/coldbench/pkg/store"
)

type fakeDiscovery struct {
	functions []benchmark.FunctionInfo
	err       error
	filter    string
}

func (d *fakeDiscovery) Functions(_ context.Context, filter string) ([]benchmark.FunctionInfo, error) {
	d.filter = filter

	if d.err != nil {
		return nil, d.err
	}

	return d.functions, nil
}

type fakeController struct {
	mu    sync.Mutex
	fn    func(runID string, target benchmark.Target, cold, warm int) ([]benchmark.Result, error)
	calls []benchmark.Target
}

func (c *fakeController) CollectSamples(_ context.Context, runID string, target benchmark.Target, cold, warm int) ([]benchmark.Result, error) {
	c.mu.Lock()
	c.calls = append(c.calls, target)
	c.mu.Unlock()

	if c.fn != nil {
		return c.fn(runID, target, cold, warm)
	}

	return successResults(runID, target, cold, warm), nil
}

func successResults(runID string, target benchmark.Target, cold, warm int) []benchmark.Result {
	results := make([]benchmark.Result, 0, cold+warm)

	for seq := 1; seq <= cold; seq++ {
		res := benchmark.NewResult(runID, target, benchmark.InvocationCold, seq, 1000)
		res.Success = true
		duration := 50.0 + float64(seq)
		res.DurationMs = &duration
		billed := int64(51)
		res.BilledDurationMs = &billed
		memory := int64(40)
		res.MaxMemoryUsedMB = &memory
		init := 200.0
		res.InitDurationMs = &init
		results = append(results, *res)
	}

	for seq := 1; seq <= warm; seq++ {
		res := benchmark.NewResult(runID, target, benchmark.InvocationWarm, seq, 2000)
		res.Success = true
		duration := 10.0 + float64(seq)
		res.DurationMs = &duration
		billed := int64(11)
		res.BilledDurationMs = &billed
		memory := int64(38)
		res.MaxMemoryUsedMB = &memory
		results = append(results, *res)
	}

	return results
}

func functionInfo(name string) benchmark.FunctionInfo {
	runtime, arch, workload, err := benchmark.ParseFunctionName(name)
	if err != nil {
		panic(err)
	}

	return benchmark.FunctionInfo{
		Name:            name,
		Runtime:         runtime,
		Architecture:    arch,
		WorkloadType:    workload,
		CurrentMemoryMB: 128,
		TimeoutSec:      60,
		Version:         "1",
	}
}

func setupStore(t *testing.T) store.Store {
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

func newTestRunner(disc *fakeDiscovery, ctrl *fakeController, st store.Store) *runner {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	r := NewRunner(log, &Config{Region: "us-east-2", Workers: 4}, disc, ctrl, st).(*runner)
	r.now = func() time.Time { return time.UnixMilli(1700000000000) }

	return r
}

func TestRun_CompletesAndAggregates(t *testing.T) {
	disc := &fakeDiscovery{functions: []benchmark.FunctionInfo{
		functionInfo("python3-13-arm64-light"),
		functionInfo("rust-arm64-light"),
	}}
	ctrl := &fakeController{}
	st := setupStore(t)

	var planned *benchmark.Run

	r := newTestRunner(disc, ctrl, st)

	runID, err := r.Run(context.Background(), &Options{
		Mode:        benchmark.ModeTest,
		Notes:       "unit",
		Filter:      "light",
		MemorySizes: []int{512},
		OnPlan:      func(run *benchmark.Run) { planned = run },
	})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	assert.Equal(t, "light", disc.filter)

	require.NotNil(t, planned)
	assert.Equal(t, 2, planned.TotalConfigurations)
	assert.Equal(t, 8, planned.TotalInvocations, "two configs at 2 cold + 2 warm")

	assert.Len(t, ctrl.calls, 2)

	run, err := st.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, benchmark.RunCompleted, run.Status)
	assert.Equal(t, "unit", run.Notes)
	assert.Equal(t, "us-east-2", run.Region)
	assert.Equal(t, 0, run.FailedInvocations)
	assert.Empty(t, run.ErrorSummary)
	assert.Equal(t, int64(1700000000000), run.EndedAt)

	require.NotNil(t, run.Matrix)
	assert.Len(t, run.Matrix.Configurations, 2)

	aggs, err := st.ListAggregates(context.Background(), runID)
	require.NoError(t, err)
	assert.Len(t, aggs, 4, "cold and warm aggregate per configuration")

	for _, agg := range aggs {
		assert.Equal(t, 2, agg.SampleCount)
		assert.Equal(t, 0, agg.FailedCount)
		require.NotNil(t, agg.Duration)
	}
}

func TestRun_ConfigurationFailureStillCompletes(t *testing.T) {
	disc := &fakeDiscovery{functions: []benchmark.FunctionInfo{
		functionInfo("python3-13-arm64-light"),
		functionInfo("nodejs22-x86-light"),
		functionInfo("rust-arm64-light"),
	}}

	ctrl := &fakeController{fn: func(runID string, target benchmark.Target, cold, warm int) ([]benchmark.Result, error) {
		if target.Function.Name == "nodejs22-x86-light" {
			res := benchmark.NewResult(runID, target, benchmark.InvocationCold, 1, 1000)
			res.Error = "forcing cold state: update in progress"

			return []benchmark.Result{*res}, errors.New("forcing cold state of nodejs22-x86-light: update in progress")
		}

		return successResults(runID, target, cold, warm), nil
	}}

	st := setupStore(t)
	r := newTestRunner(disc, ctrl, st)

	runID, err := r.Run(context.Background(), &Options{Mode: benchmark.ModeTest, MemorySizes: []int{512}})
	require.NoError(t, err, "a failed configuration never fails the run")

	run, err := st.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, benchmark.RunCompleted, run.Status)
	assert.Equal(t, "1 configuration(s) failed during benchmark execution", run.ErrorSummary)
	assert.Equal(t, 1, run.FailedInvocations)

	aggs, err := st.ListAggregates(context.Background(), runID)
	require.NoError(t, err)
	assert.Len(t, aggs, 4, "no aggregates for the failed configuration")
}

func TestRun_MemoryLadderSequentialPerFunction(t *testing.T) {
	disc := &fakeDiscovery{functions: []benchmark.FunctionInfo{
		functionInfo("python3-13-arm64-light"),
	}}
	ctrl := &fakeController{}
	st := setupStore(t)
	r := newTestRunner(disc, ctrl, st)

	runID, err := r.Run(context.Background(), &Options{
		Mode:        benchmark.ModeTest,
		MemorySizes: []int{1024, 128, 512},
	})
	require.NoError(t, err)

	require.Len(t, ctrl.calls, 3)

	sizes := []int{ctrl.calls[0].MemoryMB, ctrl.calls[1].MemoryMB, ctrl.calls[2].MemoryMB}
	assert.Equal(t, []int{128, 512, 1024}, sizes, "ladder order, not filter order")

	run, err := st.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, 3, run.TotalConfigurations)
}

func TestRun_DiscoveryFailureIsRunFatal(t *testing.T) {
	disc := &fakeDiscovery{err: errors.New("stack not found")}
	st := setupStore(t)
	r := newTestRunner(disc, &fakeController{}, st)

	_, err := r.Run(context.Background(), &Options{Mode: benchmark.ModeTest})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discovering functions")

	runs, err := st.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs, "no run record before discovery succeeds")
}

func TestRun_NoFunctionsDiscovered(t *testing.T) {
	disc := &fakeDiscovery{}
	st := setupStore(t)
	r := newTestRunner(disc, &fakeController{}, st)

	_, err := r.Run(context.Background(), &Options{Mode: benchmark.ModeTest})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no benchmark functions discovered")
}

func TestRun_InvalidMode(t *testing.T) {
	st := setupStore(t)
	r := newTestRunner(&fakeDiscovery{}, &fakeController{}, st)

	_, err := r.Run(context.Background(), &Options{Mode: "bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestRun_AbortedMarksRunFailed(t *testing.T) {
	disc := &fakeDiscovery{functions: []benchmark.FunctionInfo{
		functionInfo("python3-13-arm64-light"),
	}}

	ctx, cancel := context.WithCancel(context.Background())

	ctrl := &fakeController{fn: func(string, benchmark.Target, int, int) ([]benchmark.Result, error) {
		cancel()

		return nil, context.Canceled
	}}

	st := setupStore(t)
	r := newTestRunner(disc, ctrl, st)

	runID, err := r.Run(ctx, &Options{Mode: benchmark.ModeTest, MemorySizes: []int{512}})
	assert.ErrorIs(t, err, context.Canceled)
	require.NotEmpty(t, runID)

	run, err := st.GetRun(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, benchmark.RunFailed, run.Status)
	assert.Equal(t, "aborted by user", run.ErrorSummary)
}
