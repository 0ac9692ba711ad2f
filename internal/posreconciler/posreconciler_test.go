package posreconciler

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polybot/internal/exchange"
	"github.com/web3guy0/polybot/internal/stats"
	"github.com/web3guy0/polybot/types"
)

type fakeGuard struct{ calls int }

func (f *fakeGuard) Ensure(ctx context.Context) bool { f.calls++; return true }

type fakeMirrorClient struct {
	exchange.MirrorClient
	closeCalls int
	closeErr   error
}

func (f *fakeMirrorClient) ClosePosition(ctx context.Context, contract string) error {
	f.closeCalls++
	return f.closeErr
}

func holding(dir types.Direction) types.Position {
	return types.Position{Contract: "BTCUSDT", Direction: dir, Size: decimal.NewFromInt(1)}
}

var flat = types.Position{Contract: "BTCUSDT"}

func TestOrphanMirrorPositionIsClosed(t *testing.T) {
	client := &fakeMirrorClient{}
	r := New(client, &fakeGuard{}, stats.New(), nil)

	r.Check(context.Background(), "BTCUSDT", flat, holding(types.Long))

	if client.closeCalls != 1 {
		t.Fatalf("expected orphan mirror position to be closed, got %d close calls", client.closeCalls)
	}
}

func TestStartupMirrorPositionIsNotClosedWhenSourceFlat(t *testing.T) {
	client := &fakeMirrorClient{}
	r := New(client, &fakeGuard{}, stats.New(), map[string]bool{"BTCUSDT": true})

	r.Check(context.Background(), "BTCUSDT", flat, holding(types.Long))

	if client.closeCalls != 0 {
		t.Fatalf("did not expect a startup mirror position to be treated as orphan, got %d close calls", client.closeCalls)
	}
}

func TestDirectionMismatchIsClosed(t *testing.T) {
	client := &fakeMirrorClient{}
	r := New(client, &fakeGuard{}, stats.New(), nil)

	r.Check(context.Background(), "BTCUSDT", holding(types.Long), holding(types.Short))

	if client.closeCalls != 1 {
		t.Fatalf("expected mismatched direction to be closed, got %d close calls", client.closeCalls)
	}
}

func TestMatchingDirectionIsLeftAlone(t *testing.T) {
	client := &fakeMirrorClient{}
	r := New(client, &fakeGuard{}, stats.New(), nil)

	r.Check(context.Background(), "BTCUSDT", holding(types.Long), holding(types.Long))

	if client.closeCalls != 0 {
		t.Fatalf("did not expect a matching-direction position to be closed, got %d close calls", client.closeCalls)
	}
}

func TestFlatMirrorPositionIsNeverTouched(t *testing.T) {
	client := &fakeMirrorClient{}
	r := New(client, &fakeGuard{}, stats.New(), nil)

	r.Check(context.Background(), "BTCUSDT", holding(types.Long), flat)

	if client.closeCalls != 0 {
		t.Fatalf("did not expect any close call when mirror is already flat, got %d", client.closeCalls)
	}
}
