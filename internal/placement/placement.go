// Package placement implements the Mirror Placement Pipeline (spec.md §4.9):
// dedup, leverage extraction, margin-ratio computation, trigger-price
// adjustment, sizing, and placement of the mirror trigger order.
package placement

import (
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polybot/types"
)

var (
	maxFinalRatio      = decimal.NewFromFloat(0.95)
	minLeverage        = 1
	maxLeverage        = 125
	driftAdjustThreshold = decimal.NewFromInt(50)
	maxDriftAdjustFraction = decimal.NewFromFloat(0.05)
)

// LeverageSource cascades order -> position -> account -> cached default,
// grounded EXACTLY on extract_bitget_leverage_enhanced.
type LeverageSource struct {
	FromOrder    int
	FromPosition int
	FromAccount  int
	CachedDefault int
}

// ExtractLeverage runs the fallback cascade and clamps to [1, 125].
func ExtractLeverage(src LeverageSource) int {
	for _, candidate := range []int{src.FromOrder, src.FromPosition, src.FromAccount, src.CachedDefault} {
		if candidate > 0 {
			return clampInt(candidate, minLeverage, maxLeverage)
		}
	}
	return 30
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// MarginRatio computes base and final ratio per §4.9.5:
// base := (size * trigger_price) / (leverage * source_total_equity)
// final := clamp(base * ratio_multiplier, (0, 0.95])
func MarginRatio(size, triggerPrice decimal.Decimal, leverage int, sourceTotalEquity, ratioMultiplier decimal.Decimal) (base, final decimal.Decimal) {
	if leverage <= 0 || sourceTotalEquity.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	notional := size.Mul(triggerPrice)
	denom := decimal.NewFromInt(int64(leverage)).Mul(sourceTotalEquity)
	base = notional.Div(denom)

	final = base.Mul(ratioMultiplier)
	if final.GreaterThan(maxFinalRatio) {
		final = maxFinalRatio
	}
	if final.LessThanOrEqual(decimal.Zero) {
		final = decimal.Zero
	}
	return base, final
}

// AdjustTriggerPrice shifts the trigger in the direction that preserves
// intent on the mirror side when source/mirror prices have diverged beyond
// the 50 USD threshold, bounded to 5% of the trigger price total.
func AdjustTriggerPrice(side types.Side, triggerPrice, srcPrice, mirPrice decimal.Decimal) decimal.Decimal {
	diff := srcPrice.Sub(mirPrice)
	if diff.Abs().LessThanOrEqual(driftAdjustThreshold) {
		return triggerPrice
	}

	maxAdjust := triggerPrice.Mul(maxDriftAdjustFraction)
	adjustment := diff.Abs().Mul(decimal.NewFromFloat(0.1))
	if adjustment.GreaterThan(maxAdjust) {
		adjustment = maxAdjust
	}

	if side.IsLong() {
		return triggerPrice.Sub(adjustment)
	}
	return triggerPrice.Add(adjustment)
}

// MirrorSize computes mirror_notional = final_ratio * mirror_equity *
// leverage and mirror_contracts = floor(mirror_notional / (trigger *
// contract_unit)), minimum 1.
func MirrorSize(finalRatio, mirrorEquity decimal.Decimal, leverage int, adjustedTriggerPrice, contractUnit decimal.Decimal) decimal.Decimal {
	notional := finalRatio.Mul(mirrorEquity).Mul(decimal.NewFromInt(int64(leverage)))
	denom := adjustedTriggerPrice.Mul(contractUnit)
	if denom.IsZero() {
		return decimal.NewFromInt(1)
	}
	contracts := notional.Div(denom).Floor()
	if contracts.LessThan(decimal.NewFromInt(1)) {
		contracts = decimal.NewFromInt(1)
	}
	return contracts
}

// ClampToAvailableMargin applies the §4.9 tie-break: when mirror_equity is
// insufficient, clamp margin to 95% of available balance; if that falls
// below minMarginUSD, the caller must abort.
func ClampToAvailableMargin(requiredMargin, availableBalance, minMarginUSD decimal.Decimal) (clamped decimal.Decimal, ok bool) {
	cap95 := availableBalance.Mul(decimal.NewFromFloat(0.95))
	if requiredMargin.LessThanOrEqual(cap95) {
		return requiredMargin, requiredMargin.GreaterThanOrEqual(minMarginUSD)
	}
	if cap95.LessThan(minMarginUSD) {
		log.Warn().Str("available", availableBalance.String()).Str("min", minMarginUSD.String()).Msg("insufficient margin even after clamp, aborting placement")
		return cap95, false
	}
	return cap95, true
}

// IsCloseOrder classifies an order as reduce-only via side, mirroring
// determine_close_order_details_enhanced's keyword/flag detection.
func IsCloseOrder(side types.Side) bool {
	return side.ReduceOnly()
}
