// Package types holds the domain records shared across the mirror engine's
// packages, kept separate to avoid import cycles.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the directional intent of a trigger order.
type Side string

const (
	OpenLong   Side = "open_long"
	OpenShort  Side = "open_short"
	CloseLong  Side = "close_long"
	CloseShort Side = "close_short"
)

// ReduceOnly reports whether side implies a reduce-only (close) order.
func (s Side) ReduceOnly() bool {
	return s == CloseLong || s == CloseShort
}

// IsLong reports whether side opens or closes the long direction.
func (s Side) IsLong() bool {
	return s == OpenLong || s == CloseLong
}

// Direction is a held position's side.
type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
	Flat  Direction = ""
)

// MarginMode is the venue's account-wide margin setting.
type MarginMode string

const (
	Cross      MarginMode = "cross"
	Isolated   MarginMode = "isolated"
	UnknownMode MarginMode = "unknown"
)

// TriggerOrder is a conditional order on the source or mirror venue.
type TriggerOrder struct {
	OrderID      string
	Contract     string
	Side         Side
	TriggerPrice decimal.Decimal
	Size         decimal.Decimal
	Leverage     int
	TPPrice      decimal.Decimal
	HasTP        bool
	SLPrice      decimal.Decimal
	HasSL        bool
	CreatedAt    time.Time
}

// ReduceOnly reports whether this order is a reduce-only close.
func (o TriggerOrder) ReduceOnly() bool {
	return o.Side.ReduceOnly()
}

// Position is a held position on one venue.
type Position struct {
	Contract         string
	Direction        Direction
	Size             decimal.Decimal
	EntryPrice       decimal.Decimal
	Leverage         int
	LiquidationPrice decimal.Decimal
}

// Flat reports whether the position is closed.
func (p Position) Flat() bool {
	return p.Size.IsZero() || p.Direction == Flat
}

// Account is a venue account summary.
type Account struct {
	TotalEquity     decimal.Decimal
	Available       decimal.Decimal
	LeverageDefault int
}

// Ticker is a last-price style market snapshot.
type Ticker struct {
	Last       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Volume     decimal.Decimal
	ChangePct  decimal.Decimal
	ObservedAt time.Time
}

// Fill is a recently filled order on a venue, as returned by
// get_recent_filled_orders.
type Fill struct {
	OrderID  string
	Contract string
	Price    decimal.Decimal
	Size     decimal.Decimal
	FilledAt time.Time
}

// MirrorRecord is the bookkeeping kept for one currently-live mirrored
// source order. Exactly one exists per mirrored source order; SourceOrderID
// and MirrorOrderID are each unique across the live set.
type MirrorRecord struct {
	SourceOrderID string
	MirrorOrderID string

	SourceSnapshot TriggerOrder

	BaseMarginRatio        decimal.Decimal
	AppliedRatioMultiplier decimal.Decimal
	FinalMarginRatio       decimal.Decimal

	RequestedTriggerPrice decimal.Decimal
	AdjustedTriggerPrice  decimal.Decimal

	HasTPSL bool
	TPPrice decimal.Decimal
	SLPrice decimal.Decimal

	CreatedAt time.Time
}
