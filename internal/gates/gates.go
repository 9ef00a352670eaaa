// Package gates implements the pre-trade execution-quality filters. Gates
// are deterministic, stateless, and evaluated in a fixed order with
// short-circuiting.
package gates

import (
	"math"

	"github.com/skybotdev/skybot/internal/config"
	"github.com/skybotdev/skybot/internal/domain"
)

// Result is the outcome of the gate chain: either admitted, or refused with
// the first failing gate's reason.
type Result struct {
	Admitted bool
	Reason   domain.ReasonCode
}

func admitted() Result {
	return Result{Admitted: true}
}

func refused(reason domain.ReasonCode) Result {
	return Result{Reason: reason}
}

// Check runs the spread, liquidity, and minimum-edge gates in that order,
// stopping at the first failure.
func Check(sig domain.Signal, market domain.MarketSnapshot, cfg config.GatesConfig) Result {
	if r := checkSpread(market, cfg.SpreadMaxCents); !r.Admitted {
		return r
	}
	if r := checkLiquidity(market, cfg.LiquidityMin, cfg.MinLiquidityMultiple); !r.Admitted {
		return r
	}
	return checkEdge(sig, cfg.MinEdgeAfterCosts)
}

// checkSpread passes when the YES bid/ask spread is at most the maximum.
// A spread exactly at the maximum passes.
func checkSpread(market domain.MarketSnapshot, maxCents int) Result {
	spread, ok := market.SpreadCents()
	if !ok {
		return refused(domain.ReasonSpreadWide)
	}
	if spread > maxCents {
		return refused(domain.ReasonSpreadWide)
	}
	return admitted()
}

// checkLiquidity requires both traded volume and open interest to clear the
// floor, with open interest additionally clearing the configured multiple.
func checkLiquidity(market domain.MarketSnapshot, min int64, multiple float64) Result {
	lower := market.Volume
	if market.OpenInterest < lower {
		lower = market.OpenInterest
	}
	if lower < min {
		return refused(domain.ReasonLowLiquidity)
	}
	if float64(market.OpenInterest) < float64(min)*multiple {
		return refused(domain.ReasonLowLiquidity)
	}
	return admitted()
}

// checkEdge requires the absolute edge to meet the minimum. An edge exactly
// at the minimum passes.
func checkEdge(sig domain.Signal, minEdge float64) Result {
	if math.Abs(sig.Edge) < minEdge {
		return refused(domain.ReasonInsufficientEdge)
	}
	return admitted()
}
