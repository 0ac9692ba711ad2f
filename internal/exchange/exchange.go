// Package exchange defines the venue-facing client surface the reconciliation
// core depends on, plus HTTP/HMAC and websocket building blocks shared by
// concrete venue adapters.
package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/web3guy0/polybot/types"
)

// SourceClient is the read-only facade onto the observed venue.
type SourceClient interface {
	GetTicker(ctx context.Context) (types.Ticker, error)
	GetPositions(ctx context.Context, contract string) ([]types.Position, error)
	GetAccount(ctx context.Context) (types.Account, error)
	GetRecentFilledOrders(ctx context.Context, contract string, minutes int) ([]types.Fill, error)
	GetAllTriggerOrders(ctx context.Context, contract string) ([]types.TriggerOrder, error)
}

// MirrorClient is the read/write facade onto the replicating venue.
type MirrorClient interface {
	SourceClient

	GetMarginMode(ctx context.Context, contract string) (types.MarginMode, error)
	ForceCrossMargin(ctx context.Context, contract string) (bool, error)
	SetLeverage(ctx context.Context, contract string, leverage int) (bool, error)

	PlaceTrigger(ctx context.Context, contract string, side types.Side, triggerPrice, size decimal.Decimal, reduceOnly bool, tp, sl *decimal.Decimal) (orderID string, err error)
	CancelTrigger(ctx context.Context, orderID string) (ok bool, notFound bool, err error)
	PlaceMarket(ctx context.Context, contract string, size decimal.Decimal, reduceOnly bool) (orderID string, err error)
	ClosePosition(ctx context.Context, contract string) error
}

// VenueError carries a venue's explicit business error code, as opposed to a
// transport failure.
type VenueError struct {
	Code    string
	Message string
}

func (e *VenueError) Error() string { return e.Code + ": " + e.Message }

// idempotentCodes are venue error codes treated as success by callers: the
// operation's intended end-state already holds.
var idempotentCodes = map[string]bool{
	"not_found":           true,
	"order_does_not_exist": true,
	"already_canceled":     true,
	"already_cancelled":    true,
}

// IsIdempotentSuccess reports whether err is a VenueError whose code means
// the requested end-state was already achieved.
func IsIdempotentSuccess(err error) bool {
	ve, ok := err.(*VenueError)
	if !ok {
		return false
	}
	return idempotentCodes[ve.Code]
}
