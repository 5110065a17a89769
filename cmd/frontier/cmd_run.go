package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/domain"
	"github.com/aristath/frontier/internal/modules/allocation"
	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/universe"
)

type runOptions struct {
	budget         float64
	riskFreeRate   float64
	objective      string
	targetReturn   float64
	method         string
	returnMethod   string
	shrinkage      string
	periodsPerYear int
	cutoff         float64
	decimals       int
	maxWeight      float64
	allowShorts    bool
	assets         []string
	format         string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <prices.csv|->",
		Short: "Optimize a portfolio from a CSV of daily closes",
		Long: `Optimize a portfolio from a wide CSV of daily closing prices: a header row
"Date,<ASSET>,<ASSET>..." followed by one row per day. Use "-" to read stdin.

Examples:
  frontier run prices.csv
  frontier run prices.csv --objective min_volatility --budget 0
  frontier run prices.csv --objective efficient_return --target-return 0.12
  frontier run prices.csv --max-weight 0.3 --method greedy --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOptimize(cmd, root, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.Float64Var(&opts.budget, "budget", 10000, "Cash to allocate into whole shares; 0 skips allocation")
	f.Float64Var(&opts.riskFreeRate, "risk-free-rate", 0, "Annual risk-free rate")
	f.StringVar(&opts.objective, "objective", string(optimization.ObjectiveMaxSharpe), "max_sharpe, min_volatility or efficient_return")
	f.Float64Var(&opts.targetReturn, "target-return", 0, "Annual return target for efficient_return")
	f.StringVar(&opts.method, "method", string(allocation.MethodLP), "Allocation method: lp or greedy")
	f.StringVar(&opts.returnMethod, "return-method", string(optimization.ReturnMethodCompounded), "compounded or arithmetic")
	f.StringVar(&opts.shrinkage, "shrinkage", string(optimization.ShrinkConstantCorrelation), "Shrinkage target: constant_correlation or constant_variance")
	f.IntVar(&opts.periodsPerYear, "periods", 252, "Observations per year")
	f.Float64Var(&opts.cutoff, "cutoff", optimization.DefaultWeightCutoff, "Weights below this are zeroed")
	f.IntVar(&opts.decimals, "decimals", optimization.DefaultDecimals, "Decimal places of the cleaned weights")
	f.Float64Var(&opts.maxWeight, "max-weight", 0, "Cap on every weight; 0 means no cap")
	f.BoolVar(&opts.allowShorts, "allow-shorts", false, "Allow weights down to -1")
	f.StringSliceVar(&opts.assets, "assets", nil, "Restrict to these columns")
	f.StringVar(&opts.format, "format", "table", "Output format: table or json")

	return cmd
}

func runOptimize(cmd *cobra.Command, root *rootOptions, opts *runOptions, path string) error {
	if opts.format != "table" && opts.format != "json" {
		return fmt.Errorf("unknown format %q", opts.format)
	}
	log := root.logger(cmd)

	pm, err := readPrices(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}
	if len(opts.assets) > 0 {
		if pm, err = pm.Subset(opts.assets); err != nil {
			return err
		}
	}

	profile := config.Profile{
		Name:             "cli",
		Assets:           pm.Assets,
		Objective:        opts.objective,
		TargetReturn:     opts.targetReturn,
		RiskFreeRate:     &opts.riskFreeRate,
		Budget:           &opts.budget,
		AllocationMethod: opts.method,
		ReturnMethod:     opts.returnMethod,
		ShrinkageTarget:  opts.shrinkage,
		Bounds:           optimization.BoundsConfig{MaxConcentration: opts.maxWeight},
	}
	if opts.allowShorts {
		profile.Bounds.Default = &domain.Bounds{Lower: -1, Upper: 1}
	}
	if err := profile.Validate(); err != nil {
		return err
	}

	base := optimization.DefaultSettings()
	base.Returns.PeriodsPerYear = opts.periodsPerYear
	base.Covariance.PeriodsPerYear = opts.periodsPerYear
	base.Clean = optimization.CleanSettings{Cutoff: opts.cutoff, Decimals: opts.decimals}

	service := optimization.NewOptimizerService(
		optimization.NewMVOptimizer(nil, log),
		optimization.NewConstraintsManager(log),
		allocation.NewAllocator(log),
		log,
	)

	result, err := service.Optimize(cmd.Context(), pm, profile.Settings(base))
	if err != nil {
		return err
	}

	if opts.format == "json" {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	return printResult(cmd.OutOrStdout(), result)
}

func readPrices(stdin io.Reader, path string) (domain.PriceMatrix, error) {
	if path == "-" {
		return universe.ParsePriceCSV(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		return domain.PriceMatrix{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return universe.ParsePriceCSV(f)
}
