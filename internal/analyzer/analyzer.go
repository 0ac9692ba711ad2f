// Package analyzer implements the Fill-vs-Cancel Analyzer (spec.md §4.6):
// for a disappeared source order, decide whether it was filled or canceled.
package analyzer

import (
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polybot/types"
)

// closeReachThreshold is the default tolerance for reduce-only orders,
// which behave more like stops than precise triggers.
var closeReachThreshold = decimal.NewFromInt(200)

// Decision is the analyzer's verdict for one disappeared order.
type Decision string

const (
	Filled      Decision = "filled"
	Traditional Decision = "traditional"
	Canceled    Decision = "canceled"
	Uncertain   Decision = "uncertain"
)

// Outcome is the full analyzer result, including whether escalation to an
// immediate market fill applies regardless of sub-case.
type Outcome struct {
	Decision      Decision
	IsFilled      bool // resolved after traditional's recent-fills consult
	ForceImmediate bool
}

// RecentFillsLookup answers whether a source order ID appears in the
// recent-fills feed.
type RecentFillsLookup func(sourceOrderID string) bool

// reached implements the per-side "trigger reached" predicate of §4.6.2.
func reached(order types.TriggerOrder, currentPrice decimal.Decimal) bool {
	t := order.TriggerPrice
	switch classify(order.Side) {
	case "long_open":
		return currentPrice.LessThanOrEqual(t)
	case "short_open":
		return currentPrice.GreaterThanOrEqual(t)
	default: // close
		return currentPrice.Sub(t).Abs().LessThanOrEqual(closeReachThreshold)
	}
}

func classify(side types.Side) string {
	switch side {
	case types.OpenLong:
		return "long_open"
	case types.OpenShort:
		return "short_open"
	default:
		return "close"
	}
}

// Analyze decides filled-vs-canceled for a disappeared source order per the
// §4.6 decision table.
func Analyze(order types.TriggerOrder, srcPrice, mirPrice decimal.Decimal, recentlyFilled RecentFillsLookup) Outcome {
	srcReached := reached(order, srcPrice)
	mirReached := reached(order, mirPrice)

	var out Outcome
	switch {
	case srcReached && !mirReached:
		out = Outcome{Decision: Filled, IsFilled: true}
	case srcReached && mirReached:
		isFilled := recentlyFilled(order.OrderID)
		out = Outcome{Decision: Traditional, IsFilled: isFilled}
	case !srcReached && !mirReached:
		out = Outcome{Decision: Canceled, IsFilled: false}
	default: // !srcReached && mirReached
		out = Outcome{Decision: Uncertain, IsFilled: false}
	}

	// Cross-check: presence in recent-fills always forces is_filled true,
	// per step 4 of §4.6, regardless of which branch above was taken.
	if recentlyFilled(order.OrderID) {
		out.IsFilled = true
	}

	diff := srcPrice.Sub(mirPrice).Abs()
	if out.IsFilled && diff.GreaterThan(closeReachThreshold.Mul(decimal.NewFromInt(2))) {
		out.ForceImmediate = true
	}

	return out
}
