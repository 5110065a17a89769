// Package allocation turns continuous portfolio weights into whole-share purchases
// that fit inside a cash budget.
package allocation

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/frontier/internal/domain"
)

// Method selects the allocation strategy.
type Method string

const (
	// MethodLP solves the integer program exactly by branch-and-bound.
	MethodLP Method = "lp"
	// MethodGreedy rounds down and then hands out single shares by largest shortfall.
	MethodGreedy Method = "greedy"
)

// ParseMethod maps a configuration string onto a Method.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case "", MethodLP:
		return MethodLP, nil
	case MethodGreedy:
		return MethodGreedy, nil
	default:
		return "", fmt.Errorf("unknown allocation method %q", s)
	}
}

// DefaultNodeLimit bounds the branch-and-bound search.
const DefaultNodeLimit = 50000

// Allocator converts weights into integer share counts.
type Allocator struct {
	NodeLimit int
	relax     func(p *problem, nd node) (float64, []float64, error)
	log       zerolog.Logger
}

// NewAllocator creates a new allocator.
func NewAllocator(log zerolog.Logger) *Allocator {
	return &Allocator{
		NodeLimit: DefaultNodeLimit,
		log:       log.With().Str("component", "discrete_allocator").Logger(),
	}
}

// holding is one eligible asset of an allocation problem.
type holding struct {
	asset  string
	weight float64
	price  float64
	dprice decimal.Decimal
}

// problem is the validated input shared by both strategies.
type problem struct {
	holdings []holding
	budget   float64
	dbudget  decimal.Decimal
}

// target is the ideal dollar amount for holding i.
func (p *problem) target(i int) float64 {
	return p.holdings[i].weight * p.budget
}

// cost returns the exact cost of shares.
func (p *problem) cost(shares []int) decimal.Decimal {
	total := decimal.Zero
	for i, n := range shares {
		if n > 0 {
			total = total.Add(p.holdings[i].dprice.Mul(decimal.NewFromInt(int64(n))))
		}
	}
	return total
}

// deviation is sum_i |target_i - shares_i * price_i| + leftover, the quantity the exact
// method minimizes.
func (p *problem) deviation(shares []int) float64 {
	var dev, spent float64
	for i, n := range shares {
		spent += float64(n) * p.holdings[i].price
		dev += math.Abs(p.target(i) - float64(n)*p.holdings[i].price)
	}
	return dev + (p.budget - spent)
}

// Allocate converts weights into whole shares of the assets with positive weight, using
// latestPrices and at most budget in cash.
func (a *Allocator) Allocate(
	ctx context.Context,
	weights domain.Weights,
	latestPrices map[string]float64,
	budget float64,
	method Method,
) (*domain.Allocation, error) {
	prob, err := newProblem(weights, latestPrices, budget)
	if err != nil {
		return nil, err
	}
	if method == "" {
		method = MethodLP
	}

	var (
		shares []int
		nodes  int
	)
	switch method {
	case MethodGreedy:
		shares = greedyShares(prob)
	case MethodLP:
		shares, nodes, method, err = a.branchAndBound(ctx, prob)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown allocation method %q", method)
	}

	alloc := prob.allocation(shares, method)
	alloc.Nodes = nodes

	a.log.Debug().
		Str("method", string(method)).
		Int("assets", len(prob.holdings)).
		Float64("budget", budget).
		Float64("leftover", alloc.Leftover).
		Int("nodes", nodes).
		Msg("Discrete allocation complete")

	return alloc, nil
}

func newProblem(weights domain.Weights, latestPrices map[string]float64, budget float64) (*problem, error) {
	if math.IsNaN(budget) || math.IsInf(budget, 0) || budget <= 0 {
		return nil, &domain.ValidationError{Field: "budget", Message: fmt.Sprintf("budget must be positive, got %v", budget)}
	}

	holdings := make([]holding, 0, len(weights))
	var total float64
	for _, w := range weights {
		if !(w.Weight > 0) {
			continue
		}
		price, ok := latestPrices[w.Asset]
		if !ok {
			return nil, &domain.ValidationError{Field: "prices", Message: fmt.Sprintf("no latest price for %s", w.Asset)}
		}
		if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
			return nil, &domain.ValidationError{Field: "prices", Message: fmt.Sprintf("non-positive price %v for %s", price, w.Asset)}
		}
		holdings = append(holdings, holding{
			asset:  w.Asset,
			weight: w.Weight,
			price:  price,
			dprice: decimal.NewFromFloat(price),
		})
		total += w.Weight
	}
	if len(holdings) == 0 {
		return nil, &domain.EmptyPortfolioError{}
	}

	// Long legs are allocated against the full budget.
	if math.Abs(total-1) > 1e-9 {
		for i := range holdings {
			holdings[i].weight /= total
		}
	}

	cheapest := 0
	for i, h := range holdings {
		if h.price < holdings[cheapest].price {
			cheapest = i
		}
	}
	if holdings[cheapest].price > budget {
		return nil, &domain.BudgetTooSmallError{
			Budget:          budget,
			MinimumRequired: holdings[cheapest].price,
			Asset:           holdings[cheapest].asset,
		}
	}

	return &problem{
		holdings: holdings,
		budget:   budget,
		dbudget:  decimal.NewFromFloat(budget),
	}, nil
}

// greedyShares takes floor(w*B/p) of every asset, then repeatedly buys one share of the
// affordable asset with the largest dollar shortfall (lowest index on ties) until no
// eligible price fits in the remaining cash. The leftover is therefore below the
// cheapest eligible price.
func greedyShares(p *problem) []int {
	shares := make([]int, len(p.holdings))
	for i, h := range p.holdings {
		ideal := decimal.NewFromFloat(h.weight).Mul(p.dbudget).Div(h.dprice)
		shares[i] = int(ideal.Floor().IntPart())
	}
	p.trimOverspend(shares)
	p.fill(shares)
	return shares
}

// fill spends the remaining cash one share at a time on the affordable asset with the
// largest shortfall. Each purchase lowers leftover by p_i and changes |target_i - x_i p_i|
// by at most p_i, so the exact objective never increases.
func (p *problem) fill(shares []int) {
	remaining := p.dbudget.Sub(p.cost(shares))
	for {
		best := -1
		var bestGap float64
		for i, h := range p.holdings {
			if h.dprice.GreaterThan(remaining) {
				continue
			}
			gap := p.target(i) - float64(shares[i])*h.price
			if best < 0 || gap > bestGap {
				best = i
				bestGap = gap
			}
		}
		if best < 0 {
			return
		}
		shares[best]++
		remaining = remaining.Sub(p.holdings[best].dprice)
	}
}

// trimOverspend removes shares from the most over-allocated asset until the plan is
// affordable. Rounding makes this a no-op for weights that sum to one.
func (p *problem) trimOverspend(shares []int) {
	for p.cost(shares).GreaterThan(p.dbudget) {
		worst := -1
		var worstExcess float64
		for i, h := range p.holdings {
			if shares[i] == 0 {
				continue
			}
			excess := float64(shares[i])*h.price - p.target(i)
			if worst < 0 || excess > worstExcess {
				worst = i
				worstExcess = excess
			}
		}
		if worst < 0 {
			return
		}
		shares[worst]--
	}
}

func (p *problem) allocation(shares []int, method Method) *domain.Allocation {
	cost := p.cost(shares)
	leftover := p.dbudget.Sub(cost)

	out := make(map[string]int, len(shares))
	for i, n := range shares {
		if n > 0 {
			out[p.holdings[i].asset] = n
		}
	}
	return &domain.Allocation{
		Shares:   out,
		Cost:     cost.InexactFloat64(),
		Leftover: leftover.InexactFloat64(),
		Budget:   p.budget,
		Method:   string(method),
	}
}
