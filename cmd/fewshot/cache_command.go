package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the training episode cache",
	}
	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheClearCommand(ctx))
	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show episode cache details",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			cache, err := ctx.episodeCache()
			if err != nil {
				return err
			}
			info, err := cache.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Path: %s\n", info.Path)
			fmt.Fprintf(out, "Enabled: %s\n", yesNo(cache.Enabled()))
			fmt.Fprintf(out, "Compressed: %s\n", yesNo(info.Compressed))
			if !info.Exists {
				fmt.Fprintln(out, "Cache file does not exist")
				return nil
			}
			fmt.Fprintf(out, "Size: %s\n", humanize.Bytes(uint64(info.Size)))
			fmt.Fprintf(out, "Entries: %s\n", formatCount(info.Entries))
			if per := cfg.ImagesPerEpisode(); per > 0 {
				fmt.Fprintf(out, "Episodes: %s\n", formatCount(info.Entries/per))
			}
			if want := cfg.Episode.TotalEpisodes * cfg.ImagesPerEpisode(); info.Entries != want {
				fmt.Fprintf(out, "Stale: expected %s entries for the current configuration\n", formatCount(want))
			}
			fmt.Fprintf(out, "Modified: %s\n", humanize.Time(info.Modified))
			return nil
		},
	}
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the episode cache file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := ctx.episodeCache()
			if err != nil {
				return err
			}
			removed, err := cache.Clear(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if removed {
				fmt.Fprintf(out, "Removed %s\n", cache.Path())
			} else {
				fmt.Fprintln(out, "Cache already empty")
			}
			return nil
		},
	}
}
