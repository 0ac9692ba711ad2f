package analyzer

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polybot/types"
)

func noRecentFills(string) bool { return false }

func longOrder(trigger int64) types.TriggerOrder {
	return types.TriggerOrder{OrderID: "s1", Contract: "BTCUSDT", Side: types.OpenLong, TriggerPrice: decimal.NewFromInt(trigger)}
}

// TestDecisionTable verifies the filled, canceled and uncertain rows of
// spec.md §4.6's table for a long_open order (reached ⇔ current <= trigger);
// the traditional row is covered by TestTraditionalConsultsRecentFills.
func TestDecisionTable(t *testing.T) {
	order := longOrder(100000)

	cases := []struct {
		name           string
		src, mir       int64
		wantDecision   Decision
	}{
		{"src_reached_yes_mir_no", 99000, 101000, Filled},
		{"src_reached_no_mir_no", 101000, 101000, Canceled},
		{"src_reached_no_mir_yes", 101000, 99000, Uncertain},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			out := Analyze(order, decimal.NewFromInt(c.src), decimal.NewFromInt(c.mir), noRecentFills)
			if out.Decision != c.wantDecision {
				t.Fatalf("got decision %s, want %s", out.Decision, c.wantDecision)
			}
		})
	}
}

func TestTraditionalConsultsRecentFills(t *testing.T) {
	order := longOrder(100000)
	filled := func(id string) bool { return id == "s1" }

	out := Analyze(order, decimal.NewFromInt(99000), decimal.NewFromInt(99500), filled)
	if out.Decision != Traditional {
		t.Fatalf("expected traditional decision, got %s", out.Decision)
	}
	if !out.IsFilled {
		t.Fatal("expected recent-fills lookup to mark order as filled")
	}
}

// TestScenarioC is spec.md's Scenario C: divergent cancel, safe wait.
func TestScenarioC(t *testing.T) {
	order := longOrder(99950)
	out := Analyze(order, decimal.NewFromInt(100050), decimal.NewFromInt(99900), noRecentFills)
	if out.Decision != Uncertain {
		t.Fatalf("expected uncertain (do-not-cancel) decision, got %s", out.Decision)
	}
}

func TestForceImmediateOnLargeDivergence(t *testing.T) {
	order := longOrder(100000)
	filled := func(string) bool { return true }
	out := Analyze(order, decimal.NewFromInt(99000), decimal.NewFromInt(98000), filled)
	if !out.ForceImmediate {
		t.Fatal("expected escalation to forced immediate fill on >2x threshold divergence")
	}
}
