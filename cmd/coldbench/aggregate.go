package main

import (
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/coldbench/coldbench/pkg/benchmark"
	"github.com/coldbench/coldbench/pkg/stats"
)

// recomputeConcurrency bounds parallel aggregate rebuilds.
const recomputeConcurrency = 8

var aggregateRunID string

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Recompute the aggregates of a run from its stored results",
	Long: `Rebuild every aggregate of a run from the raw invocation results
and overwrite the stored records. Aggregates are a pure function of the
results they summarize, so recomputing an unchanged run writes identical
statistics.`,
	RunE: runAggregate,
}

func init() {
	rootCmd.AddCommand(aggregateCmd)

	aggregateCmd.Flags().StringVar(&aggregateRunID, "id", "", "run identifier")

	_ = aggregateCmd.MarkFlagRequired("id")
}

func runAggregate(cmd *cobra.Command, args []string) error {
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

	if _, err := st.GetRun(ctx, aggregateRunID); err != nil {
		return fmt.Errorf("reading run %s: %w", aggregateRunID, err)
	}

	results, err := st.ListRunResults(ctx, aggregateRunID)
	if err != nil {
		return fmt.Errorf("listing results of run %s: %w", aggregateRunID, err)
	}

	if len(results) == 0 {
		return fmt.Errorf("run %s has no stored results", aggregateRunID)
	}

	type groupKey struct {
		configID string
		invType  benchmark.InvocationType
	}

	groups := make(map[groupKey][]benchmark.Result)

	for i := range results {
		key := groupKey{results[i].ConfigID, results[i].InvocationType}
		groups[key] = append(groups[key], results[i])
	}

	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}

	sort.Slice(keys, func(i, j int) bool {
		if keys[i].configID != keys[j].configID {
			return keys[i].configID < keys[j].configID
		}

		return keys[i].invType < keys[j].invType
	})

	log.WithFields(logrus.Fields{
		"run_id":  aggregateRunID,
		"results": len(results),
		"groups":  len(keys),
	}).Info("Recomputing aggregates")

	// One timestamp for the whole recompute so the rewritten aggregates
	// form a consistent snapshot.
	now := time.Now().UnixMilli()

	var written atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(recomputeConcurrency)

	for _, key := range keys {
		group := groups[key]

		g.Go(func() error {
			config, err := benchmark.ParseConfigID(key.configID)
			if err != nil {
				return fmt.Errorf("parsing configuration key %q: %w", key.configID, err)
			}

			agg := stats.BuildAggregate(aggregateRunID, config, key.invType, group, now)

			if err := st.PutAggregate(gctx, agg); err != nil {
				return fmt.Errorf("writing aggregate %s/%s: %w", key.configID, key.invType, err)
			}

			written.Add(1)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("recomputing aggregates of run %s: %w", aggregateRunID, err)
	}

	fmt.Printf("Recomputed %d aggregate(s) for run %s.\n", written.Load(), aggregateRunID)

	return nil
}
