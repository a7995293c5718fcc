package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"fewshot/internal/classindex"
	"fewshot/internal/pipeline"
)

func newEpisodesCommand(ctx *commandContext) *cobra.Command {
	episodesCmd := &cobra.Command{
		Use:   "episodes",
		Short: "Sample episode file lists",
	}
	episodesCmd.AddCommand(newEpisodesBuildCommand(ctx))
	return episodesCmd
}

func newEpisodesBuildCommand(ctx *commandContext) *cobra.Command {
	var modeFlag string
	var seed uint64
	var rebuild bool

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Sample episodes and, for training, write the episode cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := classindex.ParseMode(modeFlag)
			if err != nil {
				return err
			}
			if rebuild && mode == classindex.ModeTrain {
				cache, err := ctx.episodeCache()
				if err != nil {
					return err
				}
				if _, err := cache.Clear(cmd.Context()); err != nil {
					return err
				}
			}

			return ctx.withPipeline(cmd, seed, func(runCtx context.Context, p *pipeline.Pipeline) error {
				result, err := p.Paths(runCtx, mode)
				if err != nil {
					return err
				}
				cfg, _ := ctx.ensureConfig()

				source := "sampled"
				switch {
				case result.FromCache:
					source = "cache"
				case result.Stale:
					source = "resampled (stale cache)"
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Mode: %s\n", mode)
				fmt.Fprintf(out, "Episodes: %s\n", formatCount(p.Episodes(mode)))
				fmt.Fprintf(out, "Paths: %s\n", formatCount(len(result.Paths)))
				fmt.Fprintf(out, "Source: %s\n", source)
				if result.Persisted {
					fmt.Fprintf(out, "Cache written: %s\n", cfg.Cache.Path)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "train", "Mode to sample (train or eval)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "Random seed (overrides configuration; 0 uses the clock)")
	cmd.Flags().BoolVar(&rebuild, "rebuild", false, "Discard the existing training cache before sampling")
	return cmd
}
