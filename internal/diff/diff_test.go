package diff

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polybot/types"
)

func order(id string) types.TriggerOrder {
	return types.TriggerOrder{OrderID: id, Contract: "BTCUSDT", TriggerPrice: decimal.NewFromInt(100000), Size: decimal.NewFromFloat(0.1)}
}

func TestDiffAppearedAndDisappeared(t *testing.T) {
	e := New()

	r1 := e.Tick([]types.TriggerOrder{order("a"), order("b")})
	if len(r1.Appeared) != 2 || len(r1.Disappeared) != 0 {
		t.Fatalf("first tick: appeared=%d disappeared=%d", len(r1.Appeared), len(r1.Disappeared))
	}

	r2 := e.Tick([]types.TriggerOrder{order("a"), order("c")})
	if len(r2.Appeared) != 1 || r2.Appeared[0].OrderID != "c" {
		t.Fatalf("expected only c to appear, got %v", r2.Appeared)
	}
	if len(r2.Disappeared) != 1 || r2.Disappeared[0].OrderID != "b" {
		t.Fatalf("expected only b to disappear, got %v", r2.Disappeared)
	}
}

func TestDiffStableAcrossIdenticalTicks(t *testing.T) {
	e := New()
	e.Tick([]types.TriggerOrder{order("a")})
	r := e.Tick([]types.TriggerOrder{order("a")})
	if len(r.Appeared) != 0 || len(r.Disappeared) != 0 {
		t.Fatalf("expected no churn on identical ticks, got appeared=%d disappeared=%d", len(r.Appeared), len(r.Disappeared))
	}
}
