package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var runsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent benchmark runs",
	RunE:  runRuns,
}

func init() {
	rootCmd.AddCommand(runsCmd)

	runsCmd.Flags().IntVar(&runsLimit, "limit", 20, "maximum number of runs to list")
}

func runRuns(cmd *cobra.Command, args []string) error {
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

	runs, err := st.ListRuns(ctx, runsLimit)
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	if len(runs) == 0 {
		fmt.Println("No runs stored.")

		return nil
	}

	headers := []string{"RUN ID", "STATUS", "MODE", "STARTED", "CONFIGS", "INVOCATIONS", "FAILED"}

	rows := make([][]string, 0, len(runs))

	for i := range runs {
		run := &runs[i]

		rows = append(rows, []string{
			run.ID,
			string(run.Status),
			string(run.Mode),
			fmtTimestamp(run.StartedAt),
			strconv.Itoa(run.TotalConfigurations),
			strconv.Itoa(run.TotalInvocations),
			strconv.Itoa(run.FailedInvocations),
		})
	}

	printTable(headers, rows)

	return nil
}
