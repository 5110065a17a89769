// Package main is the frontier command line: one-off optimizations from CSV files,
// price history imports and profile runs against the local databases.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/pkg/logger"
)

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	logLevel string
	dataDir  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "frontier",
		Short: "Mean-variance portfolio optimization",
		Long: `frontier estimates expected returns and a shrunk covariance matrix from daily
closing prices, solves for the maximum-Sharpe (or minimum-volatility, or target
return) portfolio and turns the weights into whole-share purchases.

Examples:
  frontier run prices.csv --budget 10000
  frontier import prices.csv --source yahoo
  frontier profiles run core --save`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&opts.dataDir, "data-dir", "", "Database directory (overrides FRONTIER_DATA_DIR)")

	root.AddCommand(newRunCmd(opts))
	root.AddCommand(newImportCmd(opts))
	root.AddCommand(newProfilesCmd(opts))

	return root
}

func (o *rootOptions) logger(cmd *cobra.Command) zerolog.Logger {
	return logger.New(logger.Config{
		Level:  o.logLevel,
		Pretty: true,
		Output: cmd.ErrOrStderr(),
	})
}

// loadConfig reads the environment configuration, honouring --data-dir.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	if o.dataDir != "" {
		if err := os.Setenv("FRONTIER_DATA_DIR", o.dataDir); err != nil {
			return nil, err
		}
	}
	return config.Load()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
