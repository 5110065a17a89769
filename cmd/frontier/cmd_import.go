package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/modules/universe"
)

func newImportCmd(root *rootOptions) *cobra.Command {
	var (
		source string
		format string
	)

	cmd := &cobra.Command{
		Use:   "import <prices.csv|->",
		Short: "Load a CSV of daily closes into the history database",
		Long: `Load a wide CSV of daily closing prices into history.db. Existing rows for the
same asset and day are overwritten.

Examples:
  frontier import prices.csv
  frontier import - --source broker < export.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			log := root.logger(cmd)

			db, err := database.New(database.Config{
				Path:    cfg.HistoryDBPath(),
				Profile: database.ProfileStandard,
				Name:    "history",
			})
			if err != nil {
				return err
			}
			defer db.Close()
			if err := db.Migrate(); err != nil {
				return err
			}

			pm, err := readPrices(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			importer := universe.NewImportService(
				universe.NewHistoryDB(db.Conn(), log),
				universe.NewPriceValidator(log),
				log,
			)
			result, err := importer.ImportMatrix(cmd.Context(), pm, source)
			if err != nil {
				return err
			}

			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Imported %d rows (%d assets, %d days, %s to %s)\n",
				result.Rows, len(result.Assets), result.Days, result.FirstDate, result.LastDate)
			for _, a := range result.Anomalies {
				fmt.Fprintf(out, "  warning: %s %s on %s (%.1f%%)\n", a.Asset, a.Reason, a.Date, a.ChangePercent)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "csv", "Provenance recorded with every row")
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text or json")

	return cmd
}
