// Package sampler drives the sampling of one benchmark configuration:
// force cold state, invoke, parse, record, in strict order.
package sampler

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/coldbench/coldbench/pkg/benchmark"
	"github.com/coldbench/coldbench/pkg/lambda"
	"github.com/coldbench/coldbench/pkg/report"
	"github.com/coldbench/coldbench/pkg/workload"
)

// phase is a sampling state. A collection moves idle → cold-sampling →
// warm-sampling → done, or to failed on a configuration-fatal error.
type phase string

const (
	phaseIdle         phase = "idle"
	phaseColdSampling phase = "cold-sampling"
	phaseWarmSampling phase = "warm-sampling"
	phaseDone         phase = "done"
	phaseFailed       phase = "failed"
)

// Recorder persists each sample as soon as it is recorded, so an
// interrupted run keeps its partial data.
type Recorder interface {
	PutResult(ctx context.Context, result *benchmark.Result) error
}

// Controller collects the cold and warm samples of one configuration.
type Controller interface {
	// CollectSamples runs coldCount forced-cold invocations followed by
	// warmCount back-to-back warm invocations against the target and
	// returns one Result per attempt. The error is non-nil only when the
	// whole configuration failed; per-sample failures are data.
	CollectSamples(ctx context.Context, runID string, target benchmark.Target, coldCount, warmCount int) ([]benchmark.Result, error)
}

// Options tunes a Controller beyond its required collaborators.
type Options struct {
	// Limiter caps the invocation rate across every controller sharing
	// it. Nil means unlimited.
	Limiter *rate.Limiter

	// Policy bounds retries of transient invocation errors. The zero
	// value selects lambda.DefaultRetryPolicy.
	Policy lambda.RetryPolicy

	// OnSample, when set, observes every recorded Result.
	OnSample func(result *benchmark.Result)
}

type controller struct {
	log      logrus.FieldLogger
	forcer   lambda.Forcer
	invoker  lambda.Invoker
	recorder Recorder
	limiter  *rate.Limiter
	policy   lambda.RetryPolicy
	onSample func(result *benchmark.Result)
	now      func() time.Time
}

var _ Controller = (*controller)(nil)

// NewController creates a sampling controller.
func NewController(log logrus.FieldLogger, forcer lambda.Forcer, invoker lambda.Invoker, recorder Recorder, opts *Options) Controller {
	if opts == nil {
		opts = &Options{}
	}

	policy := opts.Policy
	if policy.Attempts == 0 {
		policy = lambda.DefaultRetryPolicy()
	}

	return &controller{
		log:      log.WithField("component", "sampler"),
		forcer:   forcer,
		invoker:  invoker,
		recorder: recorder,
		limiter:  opts.Limiter,
		policy:   policy,
		onSample: opts.OnSample,
		now:      time.Now,
	}
}

// collection is the state of one configuration's sampling pass. The
// marker is the last cold-start marker written to the function, threaded
// through so every force is guaranteed to change it.
type collection struct {
	log     logrus.FieldLogger
	runID   string
	target  benchmark.Target
	payload []byte
	phase   phase
	marker  string
	results []benchmark.Result
	failed  int
}

func (col *collection) transition(to phase) {
	col.log.WithFields(logrus.Fields{"from": col.phase, "to": to}).Debug("Sampling phase transition")
	col.phase = to
}

func (c *controller) CollectSamples(ctx context.Context, runID string, target benchmark.Target, coldCount, warmCount int) ([]benchmark.Result, error) {
	cfg := target.Configuration()

	log := c.log.WithFields(logrus.Fields{
		"config":   cfg.ID(),
		"function": target.Function.Name,
	})

	payload, err := workload.Payload(target.Function.WorkloadType)
	if err != nil {
		return nil, fmt.Errorf("building workload payload: %w", err)
	}

	col := &collection{
		log:     log,
		runID:   runID,
		target:  target,
		payload: payload,
		phase:   phaseIdle,
	}

	log.WithFields(logrus.Fields{
		"memory_mb": target.MemoryMB,
		"cold":      coldCount,
		"warm":      warmCount,
	}).Info("Sampling configuration")

	if err := c.forcer.EnsureMemory(ctx, target.Function.Name, target.MemoryMB); err != nil {
		col.transition(phaseFailed)

		return nil, fmt.Errorf("ensuring %d MB on %s: %w", target.MemoryMB, target.Function.Name, err)
	}

	if err := c.coldPhase(ctx, col, coldCount); err != nil {
		col.transition(phaseFailed)

		return col.results, err
	}

	if err := c.warmPhase(ctx, col, warmCount); err != nil {
		col.transition(phaseFailed)

		return col.results, err
	}

	col.transition(phaseDone)

	log.WithFields(logrus.Fields{
		"samples": len(col.results),
		"failed":  col.failed,
	}).Info("Configuration sampled")

	return col.results, nil
}

// coldPhase forces a cold environment before every sample, so the last
// forced environment stays warm for the warm phase. Forcer exhaustion
// ends the phase early with the remaining samples recorded as failed;
// the warm phase still runs.
func (c *controller) coldPhase(ctx context.Context, col *collection, coldCount int) error {
	col.transition(phaseColdSampling)

	for seq := 1; seq <= coldCount; seq++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		marker, err := c.forcer.ForceCold(ctx, col.target.Function.Name, col.marker)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			if lambda.IsNotFound(err) || lambda.IsAccessDenied(err) {
				return fmt.Errorf("forcing cold state of %s: %w", col.target.Function.Name, err)
			}

			col.log.WithError(err).WithField("sequence", seq).
				Warn("Cold-start forcing failed, recording remaining cold samples as failed")

			for ; seq <= coldCount; seq++ {
				res := benchmark.NewResult(col.runID, col.target, benchmark.InvocationCold, seq, c.now().UnixMilli())
				res.Error = fmt.Sprintf("forcing cold state: %v", err)

				c.record(ctx, col, res)
			}

			return nil
		}

		col.marker = marker

		if err := c.sample(ctx, col, benchmark.InvocationCold, seq); err != nil {
			return err
		}
	}

	return nil
}

// warmPhase invokes back-to-back with no mutation in between, so the
// platform keeps reusing one execution environment.
func (c *controller) warmPhase(ctx context.Context, col *collection, warmCount int) error {
	col.transition(phaseWarmSampling)

	for seq := 1; seq <= warmCount; seq++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := c.sample(ctx, col, benchmark.InvocationWarm, seq); err != nil {
			return err
		}
	}

	return nil
}

// sample performs one invocation attempt with bounded retries and records
// exactly one Result. Transient transport errors and a missing report
// line are retried; a workload-reported failure or a malformed report is
// recorded as-is. The returned error is non-nil only for
// configuration-fatal conditions.
func (c *controller) sample(ctx context.Context, col *collection, invType benchmark.InvocationType, seq int) error {
	name := col.target.Function.Name

	var (
		outcome  *lambda.Outcome
		rep      *report.Report
		parseErr error
	)

	attempt := func() error {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		out, err := c.invoker.Invoke(ctx, name, col.payload)
		if err != nil {
			return err
		}

		outcome, rep, parseErr = out, nil, nil

		if out.Failed() {
			// The function crashed but the platform may still have
			// emitted a report line worth keeping.
			if r, perr := report.Parse(out.LogTail); perr == nil {
				rep = r
			}

			return nil
		}

		r, perr := report.Parse(out.LogTail)
		if perr != nil {
			if report.IsNoReportLine(perr) {
				return perr
			}

			parseErr = perr

			return nil
		}

		rep = r

		return nil
	}

	retryIf := func(err error) bool {
		return lambda.IsRetryable(err) || report.IsNoReportLine(err)
	}

	onRetry := func(n uint, err error) {
		col.log.WithError(err).WithFields(logrus.Fields{
			"sequence": seq,
			"attempt":  n + 1,
		}).Warn("Retrying invocation")
	}

	err := retry.Do(attempt, c.policy.Options(ctx, retryIf, onRetry)...)

	res := benchmark.NewResult(col.runID, col.target, invType, seq, c.now().UnixMilli())

	switch {
	case err != nil && ctx.Err() != nil:
		return ctx.Err()
	case err != nil && (lambda.IsNotFound(err) || lambda.IsAccessDenied(err)):
		return fmt.Errorf("invoking %s: %w", name, err)
	case err != nil:
		// Retries exhausted. The sample becomes data, not a fault.
		res.Error = err.Error()
	case outcome.Failed():
		res.Error = c.functionError(outcome)
		c.attachReport(col, res, rep, invType, seq)
	case parseErr != nil:
		res.Error = parseErr.Error()
	default:
		c.attachReport(col, res, rep, invType, seq)
		c.applyResponse(res, outcome)
	}

	c.record(ctx, col, res)

	return nil
}

func (c *controller) functionError(out *lambda.Outcome) string {
	if msg := workload.DecodeErrorDocument(out.Payload); msg != "" {
		return msg
	}

	return out.FunctionError
}

// applyResponse folds the workload's own verdict into the result. A
// success=false response is recorded, never retried.
func (c *controller) applyResponse(res *benchmark.Result, out *lambda.Outcome) {
	resp, err := workload.DecodeResponse(out.Payload)
	if err != nil {
		res.Error = fmt.Sprintf("decoding workload response: %v", err)

		return
	}

	if !resp.Success {
		if resp.Error != "" {
			res.Error = resp.Error
		} else {
			res.Error = "workload reported failure"
		}

		return
	}

	res.Success = true
}

// attachReport copies the platform-reported metrics onto the result.
// Init duration only belongs on cold samples; its presence on a warm
// sample means the environment was not reused, so it is dropped with a
// warning rather than mislabeling the sample.
func (c *controller) attachReport(col *collection, res *benchmark.Result, rep *report.Report, invType benchmark.InvocationType, seq int) {
	if rep == nil {
		return
	}

	res.RequestID = rep.RequestID

	duration := rep.DurationMs
	res.DurationMs = &duration

	billed := rep.BilledDurationMs
	res.BilledDurationMs = &billed

	memory := rep.MaxMemoryUsedMB
	res.MaxMemoryUsedMB = &memory

	if rep.InitDurationMs == nil {
		return
	}

	if invType == benchmark.InvocationCold {
		init := *rep.InitDurationMs
		res.InitDurationMs = &init

		return
	}

	col.log.WithFields(logrus.Fields{
		"sequence":         seq,
		"init_duration_ms": *rep.InitDurationMs,
	}).Warn("Init duration on a warm sample, dropping")
}

// record persists and accumulates one result. Persistence runs on a
// detached context so a recorded sample survives run cancellation, and
// a storage failure never stops sampling.
func (c *controller) record(ctx context.Context, col *collection, res *benchmark.Result) {
	if !res.Success {
		col.failed++
	}

	if c.recorder != nil {
		if err := c.recorder.PutResult(context.WithoutCancel(ctx), res); err != nil {
			col.log.WithError(err).WithFields(logrus.Fields{
				"invocation_type": res.InvocationType,
				"sequence":        res.Sequence,
			}).Warn("Failed to persist result")
		}
	}

	col.results = append(col.results, *res)

	if c.onSample != nil {
		c.onSample(res)
	}
}
