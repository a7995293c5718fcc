package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fewshot/internal/batcher"
	"fewshot/internal/classindex"
	"fewshot/internal/pipeline"
)

func newBatchesCommand(ctx *commandContext) *cobra.Command {
	var modeFlag string
	var limit int
	var seed uint64

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "Generate meta-batches and print their shapes",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := classindex.ParseMode(modeFlag)
			if err != nil {
				return err
			}

			return ctx.withPipeline(cmd, seed, func(runCtx context.Context, p *pipeline.Pipeline) error {
				var rows [][]string
				summary, err := p.Run(runCtx, mode, func(batch batcher.Batch) error {
					rows = append(rows, []string{
						strconv.Itoa(len(rows) + 1),
						fmt.Sprintf("%d×%d×%d", batch.MetaBatch, batch.Examples, batch.Dim),
						fmt.Sprintf("%d×%d×%d", batch.MetaBatch, batch.Examples, batch.Ways),
						firstShotGroup(batch),
					})
					if limit > 0 && len(rows) >= limit {
						return pipeline.ErrStop
					}
					return nil
				})
				out := cmd.OutOrStdout()
				if len(rows) > 0 {
					fmt.Fprintln(out, renderTable(
						[]column{right("Batch"), left("Images"), left("Labels"), left("First shot group")},
						rows,
					))
				}
				if err != nil {
					return err
				}
				source := "sampled"
				if summary.FromCache {
					source = "cache"
				}
				fmt.Fprintf(out, "Run %s: %s batches (%s episodes, %s) in %s\n",
					summary.RunID, formatCount(summary.Batches), formatCount(summary.Episodes),
					source, summary.Elapsed.Round(time.Millisecond))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "train", "Mode to generate (train or eval)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Stop after this many meta-batches (0 for all)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed (overrides configuration; 0 uses the clock)")
	return cmd
}

// firstShotGroup renders the labels of shot 0 of episode 0.
func firstShotGroup(batch batcher.Batch) string {
	if len(batch.Classes) == 0 || batch.Ways == 0 {
		return ""
	}
	labels := batch.Classes[0]
	if len(labels) > batch.Ways {
		labels = labels[:batch.Ways]
	}
	parts := make([]string, len(labels))
	for i, l := range labels {
		parts[i] = strconv.Itoa(l)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
