package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/coldbench/coldbench/pkg/benchmark"
)

var (
	resultsRunID    string
	resultsConfigID string
	resultsType     string
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Show the raw samples of one configuration in a run",
	RunE:  runResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)

	resultsCmd.Flags().StringVar(&resultsRunID, "id", "", "run identifier")
	resultsCmd.Flags().StringVar(&resultsConfigID, "config", "",
		"configuration key, e.g. python3.13-arm64-cpu-intensive-1769")
	resultsCmd.Flags().StringVar(&resultsType, "type", "cold", "invocation type (cold, warm)")

	_ = resultsCmd.MarkFlagRequired("id")
	_ = resultsCmd.MarkFlagRequired("config")
}

func runResults(cmd *cobra.Command, args []string) error {
	invType := benchmark.InvocationType(resultsType)
	if invType != benchmark.InvocationCold && invType != benchmark.InvocationWarm {
		return fmt.Errorf("unsupported invocation type %q (use \"cold\" or \"warm\")", resultsType)
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

	results, err := st.ListGroupResults(ctx, resultsRunID, resultsConfigID, invType)
	if err != nil {
		return fmt.Errorf("listing %s results of %s: %w", invType, resultsConfigID, err)
	}

	if len(results) == 0 {
		fmt.Println("No results stored for this group.")

		return nil
	}

	printResults(results)

	return nil
}

func printResults(results []benchmark.Result) {
	headers := []string{"SEQ", "OK", "DURATION ms", "BILLED ms", "MEM MB", "INIT ms", "TIMESTAMP", "ERROR"}

	rows := make([][]string, 0, len(results))

	for i := range results {
		res := &results[i]

		ok := "yes"
		if !res.Success {
			ok = "no"
		}

		rows = append(rows, []string{
			strconv.Itoa(res.Sequence),
			ok,
			ptrF64(res.DurationMs),
			ptrI64(res.BilledDurationMs),
			ptrI64(res.MaxMemoryUsedMB),
			ptrF64(res.InitDurationMs),
			fmtTimestamp(res.Timestamp),
			res.Error,
		})
	}

	printTable(headers, rows)
}
