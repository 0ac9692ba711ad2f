package marginguard

import (
	"context"
	"errors"
	"testing"

	"github.com/web3guy0/polybot/internal/stats"
	"github.com/web3guy0/polybot/types"
)

type fakeChecker struct {
	mode        types.MarginMode
	modeErr     error
	coerceOK    bool
	coerceErr   error
	coerceCalls int
}

func (f *fakeChecker) GetMarginMode(ctx context.Context, contract string) (types.MarginMode, error) {
	return f.mode, f.modeErr
}

func (f *fakeChecker) ForceCrossMargin(ctx context.Context, contract string) (bool, error) {
	f.coerceCalls++
	if f.coerceOK {
		f.mode = types.Cross
	}
	return f.coerceOK, f.coerceErr
}

type fakeNotifier struct {
	sent []string
}

func (f *fakeNotifier) Send(category, text string)            { f.sent = append(f.sent, category) }
func (f *fakeNotifier) SendHighPriority(category, text string) { f.sent = append(f.sent, category) }

func TestEnsureSucceedsWhenAlreadyCross(t *testing.T) {
	c := &fakeChecker{mode: types.Cross}
	g := New(c, "BTCUSDT", &fakeNotifier{}, stats.New())
	if !g.Ensure(context.Background()) {
		t.Fatal("expected success when already in cross margin mode")
	}
	if c.coerceCalls != 0 {
		t.Fatalf("did not expect a coercion attempt, got %d", c.coerceCalls)
	}
}

func TestEnsureCoercesWhenIsolated(t *testing.T) {
	c := &fakeChecker{mode: types.Isolated, coerceOK: true}
	g := New(c, "BTCUSDT", &fakeNotifier{}, stats.New())
	if !g.Ensure(context.Background()) {
		t.Fatal("expected success after coercion")
	}
	if c.coerceCalls != 1 {
		t.Fatalf("expected exactly one coercion attempt, got %d", c.coerceCalls)
	}
}

func TestEnsureNotifiesAfterThreeConsecutiveFailures(t *testing.T) {
	c := &fakeChecker{mode: types.Isolated, coerceOK: false, coerceErr: errors.New("denied")}
	n := &fakeNotifier{}
	st := stats.New()
	g := New(c, "BTCUSDT", n, st)

	for i := 0; i < 3; i++ {
		if g.Ensure(context.Background()) {
			t.Fatal("expected failure every attempt in this scenario")
		}
	}

	if len(n.sent) != 1 {
		t.Fatalf("expected exactly one notification after 3 consecutive failures, got %d", len(n.sent))
	}
	if g.DegradedFailures() != 3 {
		t.Fatalf("expected 3 degraded failures recorded, got %d", g.DegradedFailures())
	}
	if snap := st.Snapshot(); snap.MarginModeFailures != 3 {
		t.Fatalf("expected stats.MarginModeFailures=3, got %d", snap.MarginModeFailures)
	}
}

func TestEnsureResetsStreakOnSuccess(t *testing.T) {
	c := &fakeChecker{mode: types.Isolated, coerceOK: false, coerceErr: errors.New("denied")}
	n := &fakeNotifier{}
	g := New(c, "BTCUSDT", n, stats.New())

	g.Ensure(context.Background())
	g.Ensure(context.Background())

	c.mode = types.Cross
	c.coerceOK = true
	if !g.Ensure(context.Background()) {
		t.Fatal("expected success once mode reports cross")
	}

	c.mode = types.Isolated
	c.coerceOK = false
	for i := 0; i < 2; i++ {
		g.Ensure(context.Background())
	}
	if len(n.sent) != 0 {
		t.Fatalf("streak should have reset after the intervening success, got %d notifications", len(n.sent))
	}
}
