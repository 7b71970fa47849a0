package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/coldbench/coldbench/pkg/benchmark"
	"github.com/coldbench/coldbench/pkg/stats"
)

var (
	statusRunID  string
	statusFormat string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a run and its aggregated statistics",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&statusRunID, "id", "", "run identifier")
	statusCmd.Flags().StringVar(&statusFormat, "format", "table", "output format (table, json)")

	_ = statusCmd.MarkFlagRequired("id")
}

func runStatus(cmd *cobra.Command, args []string) error {
	if statusFormat != "table" && statusFormat != "json" {
		return fmt.Errorf("unsupported format %q (use \"table\" or \"json\")", statusFormat)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	defer closeStore(st)

	run, err := st.GetRun(ctx, statusRunID)
	if err != nil {
		return fmt.Errorf("reading run %s: %w", statusRunID, err)
	}

	aggs, err := st.ListAggregates(ctx, statusRunID)
	if err != nil {
		return fmt.Errorf("listing aggregates of run %s: %w", statusRunID, err)
	}

	sort.Slice(aggs, func(i, j int) bool {
		if aggs[i].ConfigID != aggs[j].ConfigID {
			return aggs[i].ConfigID < aggs[j].ConfigID
		}

		return aggs[i].InvocationType < aggs[j].InvocationType
	})

	if statusFormat == "json" {
		out := struct {
			Run        *benchmark.Run        `json:"run"`
			Aggregates []benchmark.Aggregate `json:"aggregates"`
		}{run, aggs}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	printRun(run)
	printAggregates(run, aggs)

	return nil
}

func printRun(run *benchmark.Run) {
	fmt.Printf("Run ID:          %s\n", run.ID)
	fmt.Printf("Status:          %s\n", run.Status)
	fmt.Printf("Mode:            %s\n", run.Mode)
	fmt.Printf("Region:          %s\n", run.Region)
	fmt.Printf("Started:         %s\n", fmtTimestamp(run.StartedAt))

	if run.EndedAt > 0 {
		elapsed := time.Duration(run.EndedAt-run.StartedAt) * time.Millisecond
		fmt.Printf("Ended:           %s (%s)\n", fmtTimestamp(run.EndedAt), elapsed.Round(time.Second))
	}

	fmt.Printf("Configurations:  %d\n", run.TotalConfigurations)
	fmt.Printf("Invocations:     %d planned, %d failed\n", run.TotalInvocations, run.FailedInvocations)

	if run.Notes != "" {
		fmt.Printf("Notes:           %s\n", run.Notes)
	}

	if run.ErrorSummary != "" {
		fmt.Printf("Errors:          %s\n", run.ErrorSummary)
	}
}

func printAggregates(run *benchmark.Run, aggs []benchmark.Aggregate) {
	if len(aggs) == 0 {
		fmt.Println("\nNo aggregates stored for this run.")

		return
	}

	fmt.Println()

	headers := []string{
		"CONFIG", "TYPE", "SAMPLES", "FAILED",
		"MEAN ms", "P50 ms", "P95 ms", "P99 ms", "INIT P50 ms", "MEM MB", "$/1M",
	}

	rows := make([][]string, 0, len(aggs))

	for i := range aggs {
		agg := &aggs[i]

		cost := "-"
		if agg.BilledDuration != nil {
			cost = fmt.Sprintf("%.2f", stats.CostPerMillion(
				agg.BilledDuration.Mean, agg.MemoryMB, agg.Architecture, run.Region))
		}

		rows = append(rows, []string{
			agg.ConfigID,
			string(agg.InvocationType),
			strconv.Itoa(agg.SampleCount),
			strconv.Itoa(agg.FailedCount),
			statCell(agg.Duration, func(m *benchmark.Metric) float64 { return m.Mean }),
			statCell(agg.Duration, func(m *benchmark.Metric) float64 { return m.Median }),
			statCell(agg.Duration, func(m *benchmark.Metric) float64 { return m.P95 }),
			statCell(agg.Duration, func(m *benchmark.Metric) float64 { return m.P99 }),
			statCell(agg.InitDuration, func(m *benchmark.Metric) float64 { return m.Median }),
			statCell(agg.MaxMemoryUsed, func(m *benchmark.Metric) float64 { return m.Max }),
			cost,
		})
	}

	printTable(headers, rows)
}

// statCell formats one statistic of an optional metric block, "-" when
// the block is absent.
func statCell(m *benchmark.Metric, pick func(*benchmark.Metric) float64) string {
	if m == nil {
		return "-"
	}

	return fmt.Sprintf("%.2f", pick(m))
}
