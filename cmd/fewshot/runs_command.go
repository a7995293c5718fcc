package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"fewshot/internal/ledger"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded batch runs",
	}
	runsCmd.AddCommand(newRunsListCommand(ctx))
	return runsCmd
}

func newRunsListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLedger(func(store *ledger.Store) error {
				runs, err := store.List(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(runs))
				for _, run := range runs {
					rows = append(rows, []string{
						shortID(run.ID),
						run.Mode,
						string(run.Status),
						fmt.Sprintf("%d-way %d+%d", run.NWay, run.KShot, run.KQuery),
						formatCount(run.Episodes),
						formatCount(run.Batches),
						yesNo(run.FromCache),
						humanize.Time(run.StartedAt),
						run.ErrorKind,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]column{left("ID"), left("Mode"), left("Status"), left("Geometry"), right("Episodes"), right("Batches"), left("Cache"), left("Started"), left("Error")},
					rows,
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum runs to show (0 for all)")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
