package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/coldbench/coldbench/pkg/benchmark"
	"github.com/coldbench/coldbench/pkg/discovery"
	"github.com/coldbench/coldbench/pkg/lambda"
	"github.com/coldbench/coldbench/pkg/runner"
	"github.com/coldbench/coldbench/pkg/sampler"
)

var (
	runModeTest       bool
	runModeBalanced   bool
	runModeProduction bool
	runNotes          string
	runIDFlag         string
	runMemorySizes    []int
	runFilter         string
	runWorkers        int
	runYes            bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a benchmark pass over the deployed function matrix",
	Long: `Discover the deployed benchmark functions, expand the
configuration matrix and collect cold and warm samples for every
configuration. Results and per-configuration aggregates are persisted
as they are produced, so an interrupted run keeps its data.`,
	RunE: runBenchmark,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runModeTest, "test", false,
		"quick validation pass (2 cold / 2 warm per configuration)")
	runCmd.Flags().BoolVar(&runModeBalanced, "balanced", false,
		"balanced pass (10 cold / 20 warm per configuration)")
	runCmd.Flags().BoolVar(&runModeProduction, "production", false,
		"full statistical pass (125 cold / 500 warm per configuration)")
	runCmd.Flags().StringVar(&runNotes, "notes", "", "notes stored on the run record")
	runCmd.Flags().StringVar(&runIDFlag, "id", "", "run identifier (generated when empty)")
	runCmd.Flags().IntSliceVar(&runMemorySizes, "mem", nil,
		"restrict memory sizes in MB (comma-separated or repeated flag)")
	runCmd.Flags().StringVar(&runFilter, "filter", "",
		"only benchmark functions whose name contains this substring")
	runCmd.Flags().IntVar(&runWorkers, "workers", 0, "parallel function workers (overrides config)")
	runCmd.Flags().BoolVarP(&runYes, "yes", "y", false, "skip the confirmation prompt")

	runCmd.MarkFlagsMutuallyExclusive("test", "balanced", "production")
	runCmd.MarkFlagsOneRequired("test", "balanced", "production")
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runWorkers > 0 {
		cfg.Run.Workers = runWorkers
	}

	mode := benchmark.ModeTest

	switch {
	case runModeBalanced:
		mode = benchmark.ModeBalanced
	case runModeProduction:
		mode = benchmark.ModeProduction
	}

	cold, warm := mode.SampleCounts()

	// A long mode mutates every function's configuration for hours;
	// make sure that is what the operator wants.
	if mode != benchmark.ModeTest && !runYes {
		prompt := fmt.Sprintf("About to start a %s run: %d cold + %d warm invocations per configuration. Continue?",
			mode, cold, warm)
		if !confirm(prompt) {
			fmt.Println("Aborted.")

			return nil
		}
	}

	// Setup context with signal handling. Cancellation stops scheduling
	// new samples; in-flight mutations and writes still complete.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.WithField("signal", sig).Info("Received shutdown signal, stopping after in-flight samples")
		cancel()
	}()

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return err
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	defer closeStore(st)

	api := lambda.NewClient(awsCfg)

	disc := discovery.NewDiscovery(log, discovery.NewStackClient(awsCfg), api, cfg.Discovery.StackName)
	forcer := lambda.NewForcer(log, api, lambda.UpdateWaiter(api))
	invoker := lambda.NewInvoker(log, api)

	var limiter *rate.Limiter
	if cfg.Run.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Run.RateLimit), 1)
	}

	var bar *progressbar.ProgressBar

	ctrl := sampler.NewController(log, forcer, invoker, st, &sampler.Options{
		Limiter: limiter,
		OnSample: func(*benchmark.Result) {
			if bar != nil {
				_ = bar.Add(1)
			}
		},
	})

	r := runner.NewRunner(log, &runner.Config{
		Region:  cfg.AWS.Region,
		Workers: cfg.Run.Workers,
	}, disc, ctrl, st)

	memorySizes := cfg.Run.MemorySizes
	if len(runMemorySizes) > 0 {
		memorySizes = runMemorySizes
	}

	runID, err := r.Run(ctx, &runner.Options{
		Mode:        mode,
		Notes:       runNotes,
		Filter:      runFilter,
		MemorySizes: memorySizes,
		RunID:       runIDFlag,
		OnPlan: func(run *benchmark.Run) {
			bar = progressbar.Default(int64(run.TotalInvocations), "invocations:")
		},
	})

	if bar != nil {
		_ = bar.Finish()
	}

	if err != nil {
		if runID != "" {
			log.WithField("run_id", runID).Warn("Run did not complete cleanly, partial results are stored")
		}

		return err
	}

	fmt.Printf("\nRun complete. Inspect it with:\n\n  coldbench status --id %s\n", runID)

	return nil
}
