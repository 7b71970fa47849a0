package sampler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldbench/coldbench/pkg/benchmark"
	"github.com/coldbench/coldbench/pkg/lambda"
	"github.com/coldbench/coldbench/pkg/stats"
)

type fakeForcer struct {
	ensureFn func(ctx context.Context, functionName string, memoryMB int) error
	forceFn  func(ctx context.Context, functionName, previousMarker string) (string, error)

	ensures []int
	markers []string
	forces  int
}

func (f *fakeForcer) EnsureMemory(ctx context.Context, functionName string, memoryMB int) error {
	f.ensures = append(f.ensures, memoryMB)

	if f.ensureFn != nil {
		return f.ensureFn(ctx, functionName, memoryMB)
	}

	return nil
}

func (f *fakeForcer) ForceCold(ctx context.Context, functionName, previousMarker string) (string, error) {
	f.forces++
	f.markers = append(f.markers, previousMarker)

	if f.forceFn != nil {
		return f.forceFn(ctx, functionName, previousMarker)
	}

	return fmt.Sprintf("marker-%d", f.forces), nil
}

type fakeInvoker struct {
	fn    func(call int) (*lambda.Outcome, error)
	calls int
}

func (i *fakeInvoker) Invoke(_ context.Context, _ string, _ []byte) (*lambda.Outcome, error) {
	i.calls++

	return i.fn(i.calls)
}

type fakeRecorder struct {
	results []benchmark.Result
	err     error
}

func (r *fakeRecorder) PutResult(_ context.Context, result *benchmark.Result) error {
	if r.err != nil {
		return r.err
	}

	r.results = append(r.results, *result)

	return nil
}

func newTestController(forcer lambda.Forcer, invoker lambda.Invoker, recorder Recorder) *controller {
	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	c := NewController(log, forcer, invoker, recorder, &Options{
		Policy: lambda.RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}).(*controller)
	c.now = func() time.Time { return time.UnixMilli(1700000000000) }

	return c
}

func testTarget() benchmark.Target {
	return benchmark.Target{
		Function: benchmark.FunctionInfo{
			Name:         "python3-13-arm64-light",
			Runtime:      "python3.13",
			Architecture: "arm64",
			WorkloadType: "light",
			Version:      "7",
		},
		MemoryMB: 512,
	}
}

const testRequestID = "d4f5a6b7-c8d9-4e0f-a1b2-c3d4e5f60718"

func reportTail(cold bool) string {
	tail := "START RequestId: " + testRequestID + " Version: 7\n" +
		"END RequestId: " + testRequestID + "\n" +
		"REPORT RequestId: " + testRequestID + "\tDuration: 25.00 ms\tBilled Duration: 26 ms\tMemory Size: 512 MB\tMax Memory Used: 60 MB\t"
	if cold {
		tail += "Init Duration: 200.00 ms\t"
	}

	return tail + "\n"
}

func successOutcome(cold bool) *lambda.Outcome {
	return &lambda.Outcome{
		Payload:    []byte(`{"success": true, "workloadType": "light"}`),
		LogTail:    reportTail(cold),
		StatusCode: 200,
	}
}

func workloadFailureOutcome() *lambda.Outcome {
	return &lambda.Outcome{
		Payload:    []byte(`{"success": false, "workloadType": "light", "error": "simulated workload failure"}`),
		LogTail:    reportTail(false),
		StatusCode: 200,
	}
}

func TestCollectSamples_EndToEnd(t *testing.T) {
	throttle := &lambdatypes.TooManyRequestsException{Message: aws.String("rate exceeded")}

	// Cold #2 throttles once before succeeding, warm #2 reports a
	// workload-level failure.
	invoker := &fakeInvoker{fn: func(call int) (*lambda.Outcome, error) {
		switch call {
		case 2:
			return nil, throttle
		case 5:
			return workloadFailureOutcome(), nil
		default:
			return successOutcome(call <= 3), nil
		}
	}}

	forcer := &fakeForcer{}
	recorder := &fakeRecorder{}

	var observed int

	c := newTestController(forcer, invoker, recorder)
	c.onSample = func(*benchmark.Result) { observed++ }

	results, err := c.CollectSamples(context.Background(), "run-1", testTarget(), 2, 3)
	require.NoError(t, err)
	require.Len(t, results, 5)

	assert.Equal(t, []int{512}, forcer.ensures)
	assert.Equal(t, 2, forcer.forces, "one force per cold sample, none for warm")
	assert.Equal(t, []string{"", "marker-1"}, forcer.markers, "previous marker threaded through")
	assert.Equal(t, 6, invoker.calls, "five samples plus one retried throttle")
	assert.Equal(t, 5, observed)
	assert.Len(t, recorder.results, 5)

	cold := results[:2]
	for i, res := range cold {
		assert.True(t, res.Success, "cold #%d", i+1)
		assert.Equal(t, benchmark.InvocationCold, res.InvocationType)
		assert.Equal(t, i+1, res.Sequence)
		require.NotNil(t, res.InitDurationMs)
		assert.Equal(t, 200.0, *res.InitDurationMs)
		assert.Equal(t, testRequestID, res.RequestID)
		assert.Equal(t, int64(1700000000000), res.Timestamp)
	}

	warm := results[2:]
	assert.True(t, warm[0].Success)
	assert.True(t, warm[2].Success)

	failed := warm[1]
	assert.False(t, failed.Success)
	assert.Equal(t, "simulated workload failure", failed.Error)
	require.NotNil(t, failed.DurationMs, "workload failure keeps its report metrics")
	assert.Equal(t, 25.0, *failed.DurationMs)

	coldAgg := stats.BuildAggregate("run-1", testTarget().Configuration(), benchmark.InvocationCold, cold, 1)
	warmAgg := stats.BuildAggregate("run-1", testTarget().Configuration(), benchmark.InvocationWarm, warm, 1)

	assert.Equal(t, 5, coldAgg.SampleCount+warmAgg.SampleCount)
	assert.Equal(t, 0, coldAgg.FailedCount)
	assert.Equal(t, 1, warmAgg.FailedCount)
}

func TestCollectSamples_ForcerFailureBlocksInvocation(t *testing.T) {
	forcer := &fakeForcer{forceFn: func(context.Context, string, string) (string, error) {
		return "", errors.New("waiting for python3-13-arm64-light to finish updating: timed out")
	}}

	invoker := &fakeInvoker{fn: func(int) (*lambda.Outcome, error) {
		return successOutcome(true), nil
	}}

	c := newTestController(forcer, invoker, &fakeRecorder{})

	results, err := c.CollectSamples(context.Background(), "run-1", testTarget(), 1, 0)
	require.NoError(t, err)

	// An unconfirmed cold state must never be invoked against.
	assert.Equal(t, 0, invoker.calls)

	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "forcing cold state")
	assert.Nil(t, results[0].DurationMs)
}

func TestCollectSamples_ForcerExhaustionEndsColdPhaseOnly(t *testing.T) {
	forcer := &fakeForcer{forceFn: func(_ context.Context, _ string, prev string) (string, error) {
		if prev != "" {
			return "", errors.New("updating configuration: update in progress")
		}

		return "marker-1", nil
	}}

	invoker := &fakeInvoker{fn: func(int) (*lambda.Outcome, error) {
		return successOutcome(false), nil
	}}

	c := newTestController(forcer, invoker, &fakeRecorder{})

	results, err := c.CollectSamples(context.Background(), "run-1", testTarget(), 3, 1)
	require.NoError(t, err, "forcer exhaustion is not configuration-fatal")
	require.Len(t, results, 4)

	assert.True(t, results[0].Success)

	for _, res := range results[1:3] {
		assert.False(t, res.Success)
		assert.Equal(t, benchmark.InvocationCold, res.InvocationType)
		assert.Contains(t, res.Error, "forcing cold state")
		assert.Nil(t, res.DurationMs)
	}

	assert.Equal(t, []int{2, 3}, []int{results[1].Sequence, results[2].Sequence})

	warm := results[3]
	assert.Equal(t, benchmark.InvocationWarm, warm.InvocationType)
	assert.True(t, warm.Success, "warm phase still runs")

	assert.Equal(t, 2, invoker.calls)
}

func TestCollectSamples_EnsureMemoryFailureIsFatal(t *testing.T) {
	forcer := &fakeForcer{ensureFn: func(context.Context, string, int) error {
		return errors.New("update in progress")
	}}

	invoker := &fakeInvoker{fn: func(int) (*lambda.Outcome, error) {
		return successOutcome(false), nil
	}}

	c := newTestController(forcer, invoker, &fakeRecorder{})

	results, err := c.CollectSamples(context.Background(), "run-1", testTarget(), 1, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensuring 512 MB")
	assert.Empty(t, results)
	assert.Equal(t, 0, invoker.calls)
}

func TestCollectSamples_FunctionNotFoundIsFatal(t *testing.T) {
	notFound := &lambdatypes.ResourceNotFoundException{Message: aws.String("no such function")}

	invoker := &fakeInvoker{fn: func(int) (*lambda.Outcome, error) {
		return nil, notFound
	}}

	c := newTestController(&fakeForcer{}, invoker, &fakeRecorder{})

	results, err := c.CollectSamples(context.Background(), "run-1", testTarget(), 1, 1)
	require.Error(t, err)
	assert.True(t, lambda.IsNotFound(err))
	assert.Empty(t, results)
	assert.Equal(t, 1, invoker.calls, "not-found is never retried")
}

func TestCollectSamples_MissingReportRetried(t *testing.T) {
	invoker := &fakeInvoker{fn: func(call int) (*lambda.Outcome, error) {
		if call == 1 {
			out := successOutcome(false)
			out.LogTail = "START RequestId: req-1 Version: 7\nEND RequestId: req-1\n"

			return out, nil
		}

		return successOutcome(false), nil
	}}

	c := newTestController(&fakeForcer{}, invoker, &fakeRecorder{})

	results, err := c.CollectSamples(context.Background(), "run-1", testTarget(), 0, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.True(t, results[0].Success)
	assert.Equal(t, 2, invoker.calls, "missing report line retries the invocation")
}

func TestCollectSamples_MalformedReportNotRetried(t *testing.T) {
	invoker := &fakeInvoker{fn: func(int) (*lambda.Outcome, error) {
		out := successOutcome(false)
		out.LogTail = "REPORT RequestId: " + testRequestID + "\tDuration: 25.00 ms\tBilled Duration: 26 ms\t"

		return out, nil
	}}

	c := newTestController(&fakeForcer{}, invoker, &fakeRecorder{})

	results, err := c.CollectSamples(context.Background(), "run-1", testTarget(), 0, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.False(t, results[0].Success)
	assert.Contains(t, results[0].Error, "max memory used")
	assert.Nil(t, results[0].DurationMs)
	assert.Equal(t, 1, invoker.calls)
}

func TestCollectSamples_RetryExhaustionBecomesFailedResult(t *testing.T) {
	throttle := &lambdatypes.TooManyRequestsException{Message: aws.String("rate exceeded")}

	invoker := &fakeInvoker{fn: func(int) (*lambda.Outcome, error) {
		return nil, throttle
	}}

	c := newTestController(&fakeForcer{}, invoker, &fakeRecorder{})

	results, err := c.CollectSamples(context.Background(), "run-1", testTarget(), 0, 2)
	require.NoError(t, err, "exhausted retries become data, not a fault")
	require.Len(t, results, 2)

	for _, res := range results {
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "rate exceeded")
	}

	assert.Equal(t, 6, invoker.calls, "three attempts per sample")
}

func TestCollectSamples_FunctionErrorKeepsReport(t *testing.T) {
	invoker := &fakeInvoker{fn: func(int) (*lambda.Outcome, error) {
		return &lambda.Outcome{
			Payload:       []byte(`{"errorMessage": "out of memory", "errorType": "MemoryError"}`),
			LogTail:       reportTail(true),
			FunctionError: "Unhandled",
			StatusCode:    200,
		}, nil
	}}

	c := newTestController(&fakeForcer{}, invoker, &fakeRecorder{})

	results, err := c.CollectSamples(context.Background(), "run-1", testTarget(), 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)

	res := results[0]
	assert.False(t, res.Success)
	assert.Equal(t, "MemoryError: out of memory", res.Error)
	require.NotNil(t, res.DurationMs)
	require.NotNil(t, res.InitDurationMs)
	assert.Equal(t, 1, invoker.calls, "function errors are not retried")
}

func TestCollectSamples_WarmInitDurationDropped(t *testing.T) {
	invoker := &fakeInvoker{fn: func(int) (*lambda.Outcome, error) {
		return successOutcome(true), nil
	}}

	c := newTestController(&fakeForcer{}, invoker, &fakeRecorder{})

	results, err := c.CollectSamples(context.Background(), "run-1", testTarget(), 0, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assert.True(t, results[0].Success)
	assert.Nil(t, results[0].InitDurationMs, "init duration never belongs on a warm sample")
}

func TestCollectSamples_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	invoker := &fakeInvoker{fn: func(int) (*lambda.Outcome, error) {
		return successOutcome(false), nil
	}}

	c := newTestController(&fakeForcer{}, invoker, &fakeRecorder{})

	_, err := c.CollectSamples(ctx, "run-1", testTarget(), 1, 1)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, invoker.calls)
}

func TestCollectSamples_StorageFailureDoesNotStopSampling(t *testing.T) {
	invoker := &fakeInvoker{fn: func(int) (*lambda.Outcome, error) {
		return successOutcome(false), nil
	}}

	recorder := &fakeRecorder{err: errors.New("table unavailable")}

	c := newTestController(&fakeForcer{}, invoker, recorder)

	results, err := c.CollectSamples(context.Background(), "run-1", testTarget(), 0, 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.True(t, results[0].Success)
}
