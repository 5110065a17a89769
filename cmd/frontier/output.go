package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/aristath/frontier/internal/modules/optimization"
	"github.com/aristath/frontier/internal/modules/profiles"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(out io.Writer, r *optimization.Result) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Objective:\t%s\n", r.Objective)
	fmt.Fprintf(w, "Observations:\t%d\n", r.Observations)
	fmt.Fprintf(w, "Shrinkage:\t%.4f (%s)\n", r.Shrinkage, r.ShrinkageTarget)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "ASSET\tWEIGHT\tEXPECTED RETURN")
	for _, wt := range r.Weights {
		fmt.Fprintf(w, "%s\t%.5f\t%.2f%%\n", wt.Asset, wt.Weight, r.ExpectedReturns[wt.Asset]*100)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Expected annual return:\t%.1f%%\n", r.Performance.ExpectedReturn*100)
	fmt.Fprintf(w, "Annual volatility:\t%.1f%%\n", r.Performance.Volatility*100)
	fmt.Fprintf(w, "Sharpe Ratio:\t%.2f\n", r.Performance.SharpeRatio)

	if a := r.Allocation; a != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "ASSET\tSHARES")
		for _, asset := range a.SortedAssets() {
			fmt.Fprintf(w, "%s\t%d\n", asset, a.Shares[asset])
		}
		fmt.Fprintf(w, "Funds remaining:\t%.2f of %.2f (%s)\n", a.Leftover, a.Budget, a.Method)
	}

	return w.Flush()
}

func printOutcomes(out io.Writer, outcomes []profiles.Outcome) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PROFILE\tRUN\tRETURN\tVOLATILITY\tSHARPE\tERROR")
	for _, o := range outcomes {
		if o.Err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t%v\n", o.Profile, o.Err)
			continue
		}
		p := o.Result.Performance
		fmt.Fprintf(w, "%s\t%s\t%.1f%%\t%.1f%%\t%.2f\t\n", o.Profile, o.RunID, p.ExpectedReturn*100, p.Volatility*100, p.SharpeRatio)
	}
	return w.Flush()
}
