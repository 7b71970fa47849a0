// Package runner coordinates a complete benchmark run: function
// discovery, matrix expansion, parallel sampling, aggregation and run
// finalization.
package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/coldbench/coldbench/pkg/benchmark"
	"github.com/coldbench/coldbench/pkg/discovery"
	"github.com/coldbench/coldbench/pkg/sampler"
	"github.com/coldbench/coldbench/pkg/stats"
	"github.com/coldbench/coldbench/pkg/store"
)

// DefaultWorkers bounds how many functions are sampled in parallel.
const DefaultWorkers = 12

// Runner drives a full pass over the configuration matrix.
type Runner interface {
	// Run benchmarks every discovered configuration and returns the run
	// identifier, the handle for later analysis.
	Run(ctx context.Context, opts *Options) (string, error)
}

// Options selects the shape of one run.
type Options struct {
	// Mode selects the sample counts per configuration.
	Mode benchmark.Mode

	// Notes annotates the run record.
	Notes string

	// Filter keeps only functions whose name contains the substring.
	Filter string

	// MemorySizes restricts every ladder to the listed sizes. Empty
	// means the full per-workload ladder.
	MemorySizes []int

	// RunID overrides the generated run identifier.
	RunID string

	// OnPlan observes the planned run after discovery, before sampling
	// starts.
	OnPlan func(run *benchmark.Run)
}

// Config for the runner.
type Config struct {
	Region  string
	Workers int
}

type runner struct {
	log   logrus.FieldLogger
	cfg   *Config
	disc  discovery.Discovery
	ctrl  sampler.Controller
	store store.Store
	now   func() time.Time
}

var _ Runner = (*runner)(nil)

// NewRunner creates a run coordinator.
func NewRunner(
	log logrus.FieldLogger,
	cfg *Config,
	disc discovery.Discovery,
	ctrl sampler.Controller,
	st store.Store,
) Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}

	return &runner{
		log:   log.WithField("component", "runner"),
		cfg:   cfg,
		disc:  disc,
		ctrl:  ctrl,
		store: st,
		now:   time.Now,
	}
}

// progress is the run-wide accounting shared by every worker.
type progress struct {
	mu            sync.Mutex
	total         int
	completed     int
	failedConfigs int
	failedSamples int
}

func (r *runner) Run(ctx context.Context, opts *Options) (string, error) {
	if opts == nil {
		opts = &Options{}
	}

	if opts.Mode == "" {
		opts.Mode = benchmark.ModeTest
	}

	if err := opts.Mode.Validate(); err != nil {
		return "", err
	}

	cold, warm := opts.Mode.SampleCounts()

	functions, err := r.disc.Functions(ctx, opts.Filter)
	if err != nil {
		return "", fmt.Errorf("discovering functions: %w", err)
	}

	if len(functions) == 0 {
		return "", errors.New("no benchmark functions discovered")
	}

	// One target group per function. Groups run in parallel; the memory
	// sizes inside a group run sequentially so configuration mutations
	// on one function never race each other.
	groups := make([][]benchmark.Target, 0, len(functions))
	flat := make([]benchmark.Target, 0, len(functions))

	for _, fn := range functions {
		sizes := benchmark.MemorySizesFor(fn.WorkloadType, opts.MemorySizes)
		if len(sizes) == 0 {
			r.log.WithField("function", fn.Name).Warn("No memory sizes left after filtering, skipping function")

			continue
		}

		targets := make([]benchmark.Target, 0, len(sizes))
		for _, mem := range sizes {
			targets = append(targets, benchmark.Target{Function: fn, MemoryMB: mem})
		}

		groups = append(groups, targets)
		flat = append(flat, targets...)
	}

	if len(flat) == 0 {
		return "", errors.New("no configurations to benchmark")
	}

	runID := opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	now := r.now().UnixMilli()

	run := &benchmark.Run{
		ID:                  runID,
		Status:              benchmark.RunInProgress,
		Mode:                opts.Mode,
		Region:              r.cfg.Region,
		CreatedAt:           now,
		StartedAt:           now,
		TotalConfigurations: len(flat),
		TotalInvocations:    len(flat) * (cold + warm),
		ColdStartsPerConfig: cold,
		WarmStartsPerConfig: warm,
		Matrix:              benchmark.BuildMatrix(flat),
		Notes:               opts.Notes,
	}

	if err := r.store.CreateRun(ctx, run); err != nil {
		return "", fmt.Errorf("creating run record: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"run_id":         runID,
		"mode":           opts.Mode,
		"configurations": run.TotalConfigurations,
		"invocations":    run.TotalInvocations,
		"workers":        r.cfg.Workers,
	}).Info("Starting benchmark run")

	if opts.OnPlan != nil {
		opts.OnPlan(run)
	}

	prog := &progress{total: len(flat)}

	pool := pond.New(r.cfg.Workers, 0, pond.MinWorkers(r.cfg.Workers))

	for _, targets := range groups {
		pool.Submit(func() {
			r.sampleFunction(ctx, run, targets, cold, warm, prog)
		})
	}

	pool.StopAndWait()

	return runID, r.finalize(ctx, run, prog)
}

// sampleFunction walks one function's memory ladder. A failed
// configuration is recorded and skipped; the remaining ladder still runs.
func (r *runner) sampleFunction(
	ctx context.Context,
	run *benchmark.Run,
	targets []benchmark.Target,
	cold, warm int,
	prog *progress,
) {
	log := r.log.WithField("function", targets[0].Function.Name)

	for _, target := range targets {
		if ctx.Err() != nil {
			return
		}

		results, err := r.ctrl.CollectSamples(ctx, run.ID, target, cold, warm)

		failed := 0

		for i := range results {
			if !results[i].Success {
				failed++
			}
		}

		prog.mu.Lock()
		prog.failedSamples += failed
		prog.mu.Unlock()

		if err != nil {
			if ctx.Err() != nil {
				return
			}

			log.WithError(err).WithField("config", target.Configuration().ID()).
				Error("Configuration failed")

			prog.mu.Lock()
			prog.failedConfigs++
			prog.mu.Unlock()

			continue
		}

		r.writeAggregates(ctx, run.ID, target, results)

		prog.mu.Lock()
		prog.completed++
		completed, failedConfigs := prog.completed, prog.failedConfigs
		prog.mu.Unlock()

		log.WithFields(logrus.Fields{
			"config":    target.Configuration().ID(),
			"completed": completed,
			"failed":    failedConfigs,
			"total":     prog.total,
		}).Info("Configuration finished")
	}
}

// writeAggregates computes and persists the cold and warm aggregates of
// one fully sampled configuration. A write failure is logged, not fatal:
// aggregates are a cache recomputable from stored results.
func (r *runner) writeAggregates(ctx context.Context, runID string, target benchmark.Target, results []benchmark.Result) {
	cfg := target.Configuration()
	now := r.now().UnixMilli()

	for _, invType := range []benchmark.InvocationType{benchmark.InvocationCold, benchmark.InvocationWarm} {
		group := make([]benchmark.Result, 0, len(results))

		for i := range results {
			if results[i].InvocationType == invType {
				group = append(group, results[i])
			}
		}

		if len(group) == 0 {
			continue
		}

		agg := stats.BuildAggregate(runID, cfg, invType, group, now)

		if err := r.store.PutAggregate(context.WithoutCancel(ctx), agg); err != nil {
			r.log.WithError(err).WithFields(logrus.Fields{
				"config":          cfg.ID(),
				"invocation_type": invType,
			}).Warn("Failed to write aggregate")
		}
	}
}

// finalize closes the run record. Cancellation marks the run failed;
// configuration failures leave it completed with an error summary, since
// their samples are data rather than a run fault. Finalization runs on a
// detached context so an aborted run is still closed out.
func (r *runner) finalize(ctx context.Context, run *benchmark.Run, prog *progress) error {
	endedAt := r.now().UnixMilli()

	status := benchmark.RunCompleted
	summary := ""
	aborted := ctx.Err() != nil

	switch {
	case aborted:
		status = benchmark.RunFailed
		summary = "aborted by user"
	case prog.failedConfigs > 0:
		summary = fmt.Sprintf("%d configuration(s) failed during benchmark execution", prog.failedConfigs)
	}

	if err := r.store.FinalizeRun(context.WithoutCancel(ctx), run.ID, status, endedAt, prog.failedSamples, summary); err != nil {
		return fmt.Errorf("finalizing run: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"run_id":             run.ID,
		"status":             status,
		"completed":          prog.completed,
		"failed_configs":     prog.failedConfigs,
		"failed_invocations": prog.failedSamples,
	}).Info("Benchmark run finished")

	if aborted {
		return ctx.Err()
	}

	return nil
}
