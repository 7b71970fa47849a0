package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var purgeYes bool

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete all stored benchmark data",
	RunE:  runPurge,
}

func init() {
	rootCmd.AddCommand(purgeCmd)

	purgeCmd.Flags().BoolVarP(&purgeYes, "yes", "y", false, "skip the confirmation prompt")
}

func runPurge(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !purgeYes {
		fmt.Println("This deletes every stored run, result and aggregate.")

		if !confirm("Continue?") {
			fmt.Println("Aborted.")

			return nil
		}
	}

	ctx := cmd.Context()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	defer closeStore(st)

	deleted, err := st.Purge(ctx)
	if err != nil {
		return fmt.Errorf("purging benchmark data: %w", err)
	}

	fmt.Printf("Deleted %d record(s).\n", deleted)

	return nil
}
