package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fewshot/internal/classindex"
)

func newClassesCommand(ctx *commandContext) *cobra.Command {
	var modeFlag string

	cmd := &cobra.Command{
		Use:   "classes",
		Short: "Summarise the class directories of the dataset roots",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			modes := []classindex.Mode{classindex.ModeTrain, classindex.ModeEval}
			if strings.TrimSpace(modeFlag) != "" {
				mode, err := classindex.ParseMode(modeFlag)
				if err != nil {
					return err
				}
				modes = []classindex.Mode{mode}
			}

			nimg := cfg.NImgPerClass()
			rows := make([][]string, 0, len(modes))
			for _, mode := range modes {
				root := cfg.Dataset.TrainDir
				if mode == classindex.ModeEval {
					root = cfg.Dataset.EvalDir
				}
				classes, err := classindex.List(root)
				if err != nil {
					return err
				}
				stats := classindex.Summarize(classes)
				rows = append(rows, []string{
					string(mode),
					root,
					formatCount(stats.Classes),
					formatCount(classindex.Eligible(classes, nimg)),
					formatCount(stats.TotalFiles),
					formatCount(stats.MinFiles),
					formatCount(stats.MaxFiles),
				})
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]column{left("Mode"), left("Root"), right("Classes"), right("Eligible"), right("Files"), right("Min"), right("Max")},
				rows,
			))
			fmt.Fprintf(out, "Eligible classes have at least %d files (kshot %d + kquery %d); an episode needs %d of them.\n",
				nimg, cfg.Episode.KShot, cfg.Episode.KQuery, cfg.Episode.NWay)
			return nil
		},
	}

	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "", "Limit output to one mode (train or eval)")
	return cmd
}
