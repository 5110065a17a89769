// Package domain provides the core value types shared by the estimators, the solver,
// the allocator and the persistence layer.
package domain

import (
	"fmt"
	"sort"
)

// Bounds is a per-asset weight interval.
type Bounds struct {
	Lower float64 `json:"lower" yaml:"lower" msgpack:"lower"`
	Upper float64 `json:"upper" yaml:"upper" msgpack:"upper"`
}

// DefaultBounds is the long-only interval [0, 1].
var DefaultBounds = Bounds{Lower: 0, Upper: 1}

// Validate checks the interval is usable as a weight bound.
func (b Bounds) Validate() error {
	if b.Lower > b.Upper {
		return fmt.Errorf("lower bound %.4f exceeds upper bound %.4f", b.Lower, b.Upper)
	}
	if b.Lower < -1 || b.Upper > 1 {
		return fmt.Errorf("bounds [%.4f, %.4f] outside [-1, 1]", b.Lower, b.Upper)
	}
	return nil
}

// AssetWeight is one entry of a weight vector.
type AssetWeight struct {
	Asset  string  `json:"asset" msgpack:"asset"`
	Weight float64 `json:"weight" msgpack:"weight"`
}

// Weights is a weight vector ordered like the PriceMatrix it was derived from.
type Weights []AssetWeight

// NewWeights pairs assets with values; both slices must have the same length.
func NewWeights(assets []string, values []float64) Weights {
	w := make(Weights, len(assets))
	for i, asset := range assets {
		w[i] = AssetWeight{Asset: asset, Weight: values[i]}
	}
	return w
}

// Map returns the weights keyed by asset.
func (w Weights) Map() map[string]float64 {
	m := make(map[string]float64, len(w))
	for _, aw := range w {
		m[aw.Asset] = aw.Weight
	}
	return m
}

// Values returns the weights in order.
func (w Weights) Values() []float64 {
	v := make([]float64, len(w))
	for i, aw := range w {
		v[i] = aw.Weight
	}
	return v
}

// Assets returns the asset identifiers in order.
func (w Weights) Assets() []string {
	a := make([]string, len(w))
	for i, aw := range w {
		a[i] = aw.Asset
	}
	return a
}

// Sum returns the total weight.
func (w Weights) Sum() float64 {
	var sum float64
	for _, aw := range w {
		sum += aw.Weight
	}
	return sum
}

// NonZero returns the entries with a non-zero weight, keeping order.
func (w Weights) NonZero() Weights {
	out := make(Weights, 0, len(w))
	for _, aw := range w {
		if aw.Weight != 0 {
			out = append(out, aw)
		}
	}
	return out
}

// Performance is the (expected annual return, annual volatility, Sharpe ratio) tuple.
type Performance struct {
	ExpectedReturn float64 `json:"expected_return" msgpack:"expected_return"`
	Volatility     float64 `json:"volatility" msgpack:"volatility"`
	SharpeRatio    float64 `json:"sharpe_ratio" msgpack:"sharpe_ratio"`
}

// Allocation is an integer share plan. Leftover = Budget - Cost, always >= 0.
type Allocation struct {
	Shares   map[string]int `json:"shares" msgpack:"shares"`
	Cost     float64        `json:"cost" msgpack:"cost"`
	Leftover float64        `json:"leftover" msgpack:"leftover"`
	Budget   float64        `json:"budget" msgpack:"budget"`
	Method   string         `json:"method" msgpack:"method"`
	// Nodes is the number of branch-and-bound nodes explored; zero when greedy was asked for.
	Nodes int `json:"nodes,omitempty" msgpack:"nodes,omitempty"`
}

// SortedAssets returns the assets holding at least one share, sorted by identifier.
func (a Allocation) SortedAssets() []string {
	assets := make([]string, 0, len(a.Shares))
	for asset, n := range a.Shares {
		if n > 0 {
			assets = append(assets, asset)
		}
	}
	sort.Strings(assets)
	return assets
}
