// Package fillexec implements the Immediate-Fill Executor and its Backup
// Fill Mechanism (spec.md §4.7, §4.7.1).
package fillexec

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polybot/internal/exchange"
	"github.com/web3guy0/polybot/internal/notifier"
	"github.com/web3guy0/polybot/internal/stats"
	"github.com/web3guy0/polybot/types"
)

const (
	maxRetries   = 3
	retryBackoff = 2 * time.Second
)

var offsetAdjustUSD = decimal.NewFromInt(50)

// crossMarginEnsurer is the guard's narrow interface, to avoid an import
// cycle back into marginguard.
type crossMarginEnsurer interface {
	Ensure(ctx context.Context) bool
}

// Executor serializes immediate-fill attempts per mirror order ID: calls for
// the same order run one after another, and each runs the full cancel-and-
// fill sequence. Executor itself does not drop repeated calls; the trigger
// scan avoids duplicate handoffs by re-checking the MirrorRecord under the
// store's per-order lock and removing it after a successful fill.
type Executor struct {
	client exchange.MirrorClient
	guard  crossMarginEnsurer
	notify notifier.Notifier
	stats  *stats.Stats

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(client exchange.MirrorClient, guard crossMarginEnsurer, n notifier.Notifier, s *stats.Stats) *Executor {
	return &Executor{client: client, guard: guard, notify: n, stats: s, locks: make(map[string]*sync.Mutex)}
}

func (e *Executor) lockFor(mirrorOrderID string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	l, ok := e.locks[mirrorOrderID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[mirrorOrderID] = l
	}
	return l
}

// Execute runs the immediate-fill sequence for a MirrorRecord whose source
// was judged filled.
func (e *Executor) Execute(ctx context.Context, rec types.MirrorRecord, contract string, mirrorPosition types.Position) error {
	lock := e.lockFor(rec.MirrorOrderID)
	lock.Lock()
	defer lock.Unlock()

	e.guard.Ensure(ctx)

	if _, notFound, err := e.client.CancelTrigger(ctx, rec.MirrorOrderID); err != nil && !notFound {
		log.Warn().Err(err).Str("mirror_order", rec.MirrorOrderID).Msg("cancel-before-fill failed, continuing anyway")
	}

	reduceOnly := rec.SourceSnapshot.ReduceOnly()
	size := rec.SourceSnapshot.Size
	if reduceOnly {
		size = clampToAvailable(size, mirrorPosition)
		if size.IsZero() {
			log.Warn().Str("mirror_order", rec.MirrorOrderID).Msg("reduce-only immediate fill has no position to reduce, skipping")
			return nil
		}
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryBackoff):
			}
		}
		_, err := e.client.PlaceMarket(ctx, contract, size, reduceOnly)
		if err == nil {
			e.stats.IncImmediateFills()
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Int("attempt", attempt+1).Str("mirror_order", rec.MirrorOrderID).Msg("immediate fill attempt failed")
	}

	e.stats.IncImmediateFillFailures()
	if err := e.backupFill(ctx, rec, contract, size, reduceOnly); err != nil {
		e.notify.Send("immediate_fill_failure", "immediate fill failed after retries and backup mechanism for "+rec.MirrorOrderID)
		return lastErr
	}
	return nil
}

func clampToAvailable(requested decimal.Decimal, pos types.Position) decimal.Decimal {
	if pos.Size.IsZero() {
		return decimal.Zero
	}
	if requested.GreaterThan(pos.Size) {
		return pos.Size
	}
	return requested
}

// backupFill implements §4.7.1's two-stage fallback: smart price
// adjustment first, then an unconditional market order. Each stage is
// attempted at most once.
func (e *Executor) backupFill(ctx context.Context, rec types.MirrorRecord, contract string, size decimal.Decimal, reduceOnly bool) error {
	currentMirrorPrice := rec.AdjustedTriggerPrice // best available without another ticker round-trip
	var adjustedTrigger decimal.Decimal
	if rec.SourceSnapshot.Side.IsLong() {
		adjustedTrigger = currentMirrorPrice.Add(offsetAdjustUSD)
	} else {
		adjustedTrigger = currentMirrorPrice.Sub(offsetAdjustUSD)
	}

	if _, err := e.client.PlaceTrigger(ctx, contract, rec.SourceSnapshot.Side, adjustedTrigger, size, reduceOnly, nil, nil); err == nil {
		return nil
	}

	_, err := e.client.PlaceMarket(ctx, contract, size, reduceOnly)
	return err
}
