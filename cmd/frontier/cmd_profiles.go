package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/di"
	"github.com/aristath/frontier/internal/modules/profiles"
)

func newProfilesCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List and run the profiles in PROFILES_PATH",
		Long: `Profiles are named recipes (assets, lookback, objective, bounds, budget) read
from the YAML file in PROFILES_PATH. Runs use the stored price history.`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			list, err := config.LoadProfiles(cfg.ProfilesPath)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tASSETS\tOBJECTIVE\tLOOKBACK")
			for _, p := range list {
				objective := p.Objective
				if objective == "" {
					objective = "max_sharpe"
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%d\n", p.Name, len(p.Assets), objective, p.LookbackDays)
			}
			return w.Flush()
		},
	})

	var (
		all    bool
		format string
	)
	run := &cobra.Command{
		Use:   "run [name...]",
		Short: "Run profiles against stored history and archive the results",
		Long: `Run one or more profiles against history.db and archive every result in runs.db.

Examples:
  frontier profiles run core
  frontier profiles run --all --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !all && len(args) == 0 {
				return fmt.Errorf("name at least one profile or pass --all")
			}
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}

			container, _, err := di.Wire(cfg, root.logger(cmd))
			if err != nil {
				return err
			}
			defer container.Close()

			selected := container.Profiles
			if !all {
				selected = make([]config.Profile, 0, len(args))
				for _, name := range args {
					p := config.FindProfile(container.Profiles, name)
					if p == nil {
						return fmt.Errorf("unknown profile %q", name)
					}
					selected = append(selected, *p)
				}
			}
			if len(selected) == 0 {
				return fmt.Errorf("no profiles configured")
			}

			outcomes, err := container.ProfileRunner.RunAll(cmd.Context(), selected, cfg.MaxParallelRuns)
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), outcomeViews(outcomes))
			}
			return printOutcomes(cmd.OutOrStdout(), outcomes)
		},
	}
	run.Flags().BoolVar(&all, "all", false, "Run every configured profile")
	run.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	cmd.AddCommand(run)

	return cmd
}

type outcomeView struct {
	profiles.Outcome
	Error string `json:"error,omitempty"`
}

func outcomeViews(outcomes []profiles.Outcome) []outcomeView {
	views := make([]outcomeView, len(outcomes))
	for i, o := range outcomes {
		views[i] = outcomeView{Outcome: o}
		if o.Err != nil {
			views[i].Error = o.Err.Error()
		}
	}
	return views
}
