package lambda

import (
	"context"
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awslambda "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/avast/retry-go"
	"github.com/sirupsen/logrus"
)

// ColdStartMarkerVar is the environment variable toggled to invalidate a
// function's warm execution environments. The platform tears down every
// environment when a configuration update lands, so the next invocation
// is guaranteed cold.
const ColdStartMarkerVar = "COLD_START_MARKER"

const (
	// updateWaitTimeout bounds the confirmation wait for one update.
	updateWaitTimeout = 5 * time.Minute

	// stabilizationDelay is the settle time after a confirmed update
	// before the next invocation may be issued.
	stabilizationDelay = 50 * time.Millisecond
)

// Forcer mutates a function's configuration to control the state of its
// next invocation. ForceCold must not return before the platform has
// confirmed the mutation: returning early would let the next invocation
// race the update and land on a still-warm environment.
type Forcer interface {
	// EnsureMemory sets the function's memory size if it differs from
	// memoryMB and blocks until the update is confirmed.
	EnsureMemory(ctx context.Context, functionName string, memoryMB int) error

	// ForceCold writes a fresh cold-start marker, guaranteed to differ
	// from previousMarker, and blocks until the update is confirmed.
	// Returns the marker to thread into the next ForceCold call.
	ForceCold(ctx context.Context, functionName, previousMarker string) (string, error)
}

type forcer struct {
	log           logrus.FieldLogger
	api           API
	wait          WaitFunc
	policy        RetryPolicy
	stabilization time.Duration
	now           func() time.Time
}

var _ Forcer = (*forcer)(nil)

// NewForcer creates a Forcer with the default retry policy.
func NewForcer(log logrus.FieldLogger, api API, wait WaitFunc) Forcer {
	return &forcer{
		log:           log.WithField("component", "forcer"),
		api:           api,
		wait:          wait,
		policy:        DefaultRetryPolicy(),
		stabilization: stabilizationDelay,
		now:           time.Now,
	}
}

func (f *forcer) EnsureMemory(ctx context.Context, functionName string, memoryMB int) error {
	// A started mutation must run to completion even when the run is
	// being canceled, or the function is left mid-update for whoever
	// benchmarks it next. Cancellation still aborts the backoff sleeps.
	mctx := context.WithoutCancel(ctx)

	return retry.Do(func() error {
		cfg, err := f.api.GetFunctionConfiguration(mctx, &awslambda.GetFunctionConfigurationInput{
			FunctionName: aws.String(functionName),
		})
		if err != nil {
			return fmt.Errorf("reading configuration of %s: %w", functionName, err)
		}

		if cfg.MemorySize != nil && *cfg.MemorySize == int32(memoryMB) {
			return nil
		}

		return f.applyUpdate(mctx, functionName, &awslambda.UpdateFunctionConfigurationInput{
			FunctionName: aws.String(functionName),
			MemorySize:   aws.Int32(int32(memoryMB)),
		})
	}, f.retryOptions(ctx, functionName, "memory update")...)
}

func (f *forcer) ForceCold(ctx context.Context, functionName, previousMarker string) (string, error) {
	marker := f.nextMarker(previousMarker)
	mctx := context.WithoutCancel(ctx)

	err := retry.Do(func() error {
		cfg, err := f.api.GetFunctionConfiguration(mctx, &awslambda.GetFunctionConfigurationInput{
			FunctionName: aws.String(functionName),
		})
		if err != nil {
			return fmt.Errorf("reading configuration of %s: %w", functionName, err)
		}

		vars := make(map[string]string)
		if cfg.Environment != nil {
			maps.Copy(vars, cfg.Environment.Variables)
		}

		vars[ColdStartMarkerVar] = marker

		return f.applyUpdate(mctx, functionName, &awslambda.UpdateFunctionConfigurationInput{
			FunctionName: aws.String(functionName),
			Environment:  &lambdatypes.Environment{Variables: vars},
		})
	}, f.retryOptions(ctx, functionName, "cold-start force")...)
	if err != nil {
		return "", err
	}

	return marker, nil
}

// applyUpdate issues the mutation, blocks until the platform confirms it,
// then lets the environment teardown settle.
func (f *forcer) applyUpdate(ctx context.Context, functionName string, input *awslambda.UpdateFunctionConfigurationInput) error {
	if _, err := f.api.UpdateFunctionConfiguration(ctx, input); err != nil {
		return fmt.Errorf("updating configuration of %s: %w", functionName, err)
	}

	if err := f.wait(ctx, functionName, updateWaitTimeout); err != nil {
		return fmt.Errorf("waiting for %s to finish updating: %w", functionName, err)
	}

	time.Sleep(f.stabilization)

	return nil
}

func (f *forcer) retryOptions(ctx context.Context, functionName, op string) []retry.Option {
	retryIf := func(err error) bool {
		return IsConflict(err) || IsRetryable(err)
	}

	onRetry := func(n uint, err error) {
		f.log.WithError(err).WithFields(logrus.Fields{
			"function": functionName,
			"attempt":  n + 1,
		}).Warnf("Retrying %s", op)
	}

	return f.policy.Options(ctx, retryIf, onRetry)
}

// nextMarker returns a marker strictly different from previous. Markers
// are nanosecond timestamps; a repeated reading or a clock step backwards
// falls back to incrementing the previous value.
func (f *forcer) nextMarker(previous string) string {
	next := f.now().UnixNano()

	if prev, err := strconv.ParseInt(previous, 10, 64); err == nil && next <= prev {
		next = prev + 1
	}

	return strconv.FormatInt(next, 10)
}
