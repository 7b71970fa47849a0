package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/coldbench/coldbench/pkg/benchmark"
)

var (
	historyConfigID string
	historyLimit    int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent samples of one configuration across runs",
	Long: `List the most recent invocation results of one configuration
regardless of which run produced them, newest first. Useful for spotting
regressions between benchmark runs.`,
	RunE: runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)

	historyCmd.Flags().StringVar(&historyConfigID, "config", "",
		"configuration key, e.g. python3.13-arm64-cpu-intensive-1769")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "maximum number of results to list")

	_ = historyCmd.MarkFlagRequired("config")
}

func runHistory(cmd *cobra.Command, args []string) error {
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

	results, err := st.ListConfigResults(ctx, historyConfigID, historyLimit)
	if err != nil {
		return fmt.Errorf("listing results of %s: %w", historyConfigID, err)
	}

	if len(results) == 0 {
		fmt.Println("No results stored for this configuration.")

		return nil
	}

	printHistory(results)

	return nil
}

func printHistory(results []benchmark.Result) {
	headers := []string{"RUN ID", "TYPE", "SEQ", "OK", "DURATION ms", "BILLED ms", "INIT ms", "TIMESTAMP"}

	rows := make([][]string, 0, len(results))

	for i := range results {
		res := &results[i]

		ok := "yes"
		if !res.Success {
			ok = "no"
		}

		rows = append(rows, []string{
			res.RunID,
			string(res.InvocationType),
			strconv.Itoa(res.Sequence),
			ok,
			ptrF64(res.DurationMs),
			ptrI64(res.BilledDurationMs),
			ptrF64(res.InitDurationMs),
			fmtTimestamp(res.Timestamp),
		})
	}

	printTable(headers, rows)
}
