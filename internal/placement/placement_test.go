package placement

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polybot/types"
)

// TestScenarioAMarginRatio reproduces spec.md's Scenario A sizing: equity 10000/1000,
// ratio 1.0, leverage 10, size 0.1 @ 100000 -> final_ratio 10%.
func TestScenarioAMarginRatio(t *testing.T) {
	base, final := MarginRatio(
		decimal.NewFromFloat(0.1), decimal.NewFromInt(100000), 10,
		decimal.NewFromInt(10000), decimal.NewFromFloat(1.0),
	)
	if !base.Equal(decimal.NewFromFloat(0.1)) {
		t.Fatalf("base ratio = %s, want 0.1", base)
	}
	if !final.Equal(decimal.NewFromFloat(0.1)) {
		t.Fatalf("final ratio = %s, want 0.1", final)
	}
}

func TestFinalRatioClampedTo95Percent(t *testing.T) {
	_, final := MarginRatio(
		decimal.NewFromFloat(10), decimal.NewFromInt(100000), 1,
		decimal.NewFromInt(10000), decimal.NewFromFloat(10.0),
	)
	if !final.Equal(maxFinalRatio) {
		t.Fatalf("expected clamp to 0.95, got %s", final)
	}
}

// TestRatioMonotonicity is Testable Property 4: the final ratio scales
// linearly with the multiplier in effect at placement time.
func TestRatioMonotonicity(t *testing.T) {
	size := decimal.NewFromFloat(0.1)
	trigger := decimal.NewFromInt(100000)
	equity := decimal.NewFromInt(10000)

	_, final1 := MarginRatio(size, trigger, 10, equity, decimal.NewFromFloat(1.0))
	_, final2 := MarginRatio(size, trigger, 10, equity, decimal.NewFromFloat(2.5))

	if !final2.Equal(final1.Mul(decimal.NewFromFloat(2.5))) {
		t.Fatalf("expected final ratio to scale linearly with multiplier: %s vs %s*2.5", final2, final1)
	}
}

func TestExtractLeverageFallbackCascade(t *testing.T) {
	got := ExtractLeverage(LeverageSource{FromOrder: 0, FromPosition: 0, FromAccount: 0, CachedDefault: 0})
	if got != 30 {
		t.Fatalf("expected default 30, got %d", got)
	}

	got = ExtractLeverage(LeverageSource{FromOrder: 0, FromPosition: 15, FromAccount: 40})
	if got != 15 {
		t.Fatalf("expected position-level leverage to win when order is absent, got %d", got)
	}

	got = ExtractLeverage(LeverageSource{FromOrder: 999})
	if got != maxLeverage {
		t.Fatalf("expected clamp to max leverage 125, got %d", got)
	}
}

func TestAdjustTriggerPriceBoundedTo5Percent(t *testing.T) {
	trigger := decimal.NewFromInt(100000)
	adjusted := AdjustTriggerPrice(types.OpenLong, trigger, decimal.NewFromInt(110000), decimal.NewFromInt(50000))
	maxDelta := trigger.Mul(decimal.NewFromFloat(0.05))
	if trigger.Sub(adjusted).Abs().GreaterThan(maxDelta) {
		t.Fatalf("adjustment exceeded 5%% bound: trigger=%s adjusted=%s", trigger, adjusted)
	}
}

func TestMirrorSizeMinimumOneContract(t *testing.T) {
	size := MirrorSize(decimal.NewFromFloat(0.0001), decimal.NewFromInt(1000), 1, decimal.NewFromInt(100000), decimal.NewFromInt(1))
	if !size.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected minimum 1 contract, got %s", size)
	}
}

func TestClampToAvailableMarginAbortsBelowMinimum(t *testing.T) {
	_, ok := ClampToAvailableMargin(decimal.NewFromInt(1000), decimal.NewFromInt(5), decimal.NewFromInt(5))
	if ok {
		t.Fatal("expected abort when clamped margin falls below the minimum floor")
	}
}
