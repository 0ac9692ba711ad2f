package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/web3guy0/polybot/internal/analyzer"
	"github.com/web3guy0/polybot/internal/cancelsync"
	"github.com/web3guy0/polybot/internal/config"
	"github.com/web3guy0/polybot/internal/controller"
	"github.com/web3guy0/polybot/internal/diff"
	"github.com/web3guy0/polybot/internal/engine"
	"github.com/web3guy0/polybot/internal/exchange"
	"github.com/web3guy0/polybot/internal/fillexec"
	"github.com/web3guy0/polybot/internal/hashcache"
	"github.com/web3guy0/polybot/internal/marginguard"
	"github.com/web3guy0/polybot/internal/notifier"
	"github.com/web3guy0/polybot/internal/placement"
	"github.com/web3guy0/polybot/internal/pricetracker"
	"github.com/web3guy0/polybot/internal/stats"
	"github.com/web3guy0/polybot/types"
)

// contractUnit is 1 for the USDT-margined perpetuals both adapters quote in
// base-asset-denominated size; there is no lot-size multiplier to apply.
var contractUnit = decimal.NewFromInt(1)

// recentFilledLookback is how far back get_recent_filled_orders looks when
// cross-checking the analyzer's traditional branch.
const recentFilledLookback = 10

type scanDeps struct {
	source exchange.SourceClient
	mirror exchange.MirrorClient
	cfg    *config.Config
	ctrl   *controller.Controller
	guard  *marginguard.Guard

	priceTracker *pricetracker.Tracker
	store        *engine.Store
	diffEngine   *diff.Engine

	orderHashes       *hashcache.OrderHashes
	recentlyProcessed *hashcache.RecentlyProcessed
	recentlyFilled    *hashcache.RecentlyFilled

	executor *fillexec.Executor
	canceler *cancelsync.Synchronizer

	stats  *stats.Stats
	notify notifier.Notifier
}

// runTriggerScan is the trigger_scan fiber's body (spec.md §4.11, 200ms
// cadence): snapshot the source's open trigger orders, diff against the
// previous tick, resolve disappeared orders as filled/canceled/uncertain,
// and run the placement pipeline on newly appeared ones.
func runTriggerScan(ctx context.Context, d scanDeps) {
	current, err := d.source.GetAllTriggerOrders(ctx, d.cfg.SourceContract)
	if err != nil {
		log.Warn().Err(err).Msg("trigger_scan: source trigger list unavailable")
		return
	}

	result := d.diffEngine.Tick(current)
	now := time.Now()

	recentFills, err := d.source.GetRecentFilledOrders(ctx, d.cfg.SourceContract, recentFilledLookback)
	lookup := buildRecentFillsLookup(recentFills, err)
	for _, f := range recentFills {
		d.recentlyFilled.Mark(f.OrderID, now)
	}

	for _, order := range result.Disappeared {
		handleDisappeared(ctx, d, order, lookup, now)
	}
	for _, order := range result.Appeared {
		handleAppeared(ctx, d, order, now)
	}
}

func buildRecentFillsLookup(fills []types.Fill, err error) analyzer.RecentFillsLookup {
	if err != nil {
		log.Warn().Err(err).Msg("trigger_scan: recent fills unavailable, treating analyzer cross-check as empty")
		return func(string) bool { return false }
	}
	ids := make(map[string]bool, len(fills))
	for _, f := range fills {
		ids[f.OrderID] = true
	}
	return func(orderID string) bool { return ids[orderID] }
}

func handleDisappeared(ctx context.Context, d scanDeps, order types.TriggerOrder, lookup analyzer.RecentFillsLookup, now time.Time) {
	rec, ok := d.store.BySource(order.OrderID)
	if !ok {
		// Never mirrored (startup-excluded, deduped, or a placement failure
		// that never reached the store), nothing to reconcile.
		return
	}

	lock := d.store.LockOrder(order.OrderID)
	lock.Lock()
	defer lock.Unlock()

	// Re-check under the per-order lock: another tick may have already
	// resolved this order between the lookup above and acquiring the lock.
	rec, ok = d.store.BySource(order.OrderID)
	if !ok {
		return
	}

	srcPrice, mirPrice := d.priceTracker.Prices()
	outcome := analyzer.Analyze(order, srcPrice, mirPrice, lookup)

	switch {
	case outcome.Decision == analyzer.Uncertain:
		log.Debug().Str("source_order", order.OrderID).Msg("trigger_scan: disappeared order is uncertain, waiting for next tick")
		return

	case outcome.IsFilled:
		mirrorPositions, err := d.mirror.GetPositions(ctx, d.cfg.MirrorContract)
		if err != nil {
			log.Warn().Err(err).Str("source_order", order.OrderID).Msg("trigger_scan: mirror positions unavailable for immediate fill")
			return
		}
		mirrorPos := firstOrFlat(mirrorPositions)
		if outcome.ForceImmediate {
			log.Warn().Str("source_order", order.OrderID).Str("diff", srcPrice.Sub(mirPrice).Abs().String()).Msg("large source/mirror price divergence, forcing immediate fill")
		}
		if err := d.executor.Execute(ctx, rec, d.cfg.MirrorContract, mirrorPos); err != nil {
			log.Error().Err(err).Str("source_order", order.OrderID).Msg("trigger_scan: immediate fill failed")
			return
		}
		d.store.Remove(order.OrderID)

	default: // Canceled or Traditional-resolved-as-not-filled
		res := d.canceler.Cancel(ctx, order.OrderID, rec.MirrorOrderID)
		if res.Removed {
			d.store.Remove(order.OrderID)
		}
	}
}

func handleAppeared(ctx context.Context, d scanDeps, order types.TriggerOrder, now time.Time) {
	if d.store.IsStartupSourceTrigger(order.OrderID) {
		return
	}
	if d.recentlyProcessed.WasProcessed(order.OrderID, now) {
		return
	}

	hashes := hashcache.CanonicalHashes(order.Contract, order.TriggerPrice, order.Size, order.HasTP || order.HasSL, order.TPPrice, order.SLPrice)
	if d.orderHashes.AnyPresent(hashes, now) || anyStartupMirrorHash(d.store, hashes) {
		return
	}

	if diff := d.priceTracker.Diff(); diff.ShouldDelay {
		log.Debug().Str("source_order", order.OrderID).Str("price_diff", diff.DiffAbs.String()).Msg("trigger_scan: cross-venue price gap too wide, deferring placement to next tick")
		return
	}

	d.recentlyProcessed.Mark(order.OrderID, now)

	if ok := d.guard.Ensure(ctx); !ok {
		log.Warn().Str("source_order", order.OrderID).Msg("trigger_scan: proceeding with placement despite cross-margin coercion failure")
	}

	sourceAccount, err := d.source.GetAccount(ctx)
	if err != nil {
		log.Warn().Err(err).Str("source_order", order.OrderID).Msg("trigger_scan: source account unavailable, skipping placement")
		return
	}
	sourcePositions, err := d.source.GetPositions(ctx, order.Contract)
	if err != nil {
		log.Warn().Err(err).Str("source_order", order.OrderID).Msg("trigger_scan: source positions unavailable, skipping placement")
		return
	}
	mirrorAccount, err := d.mirror.GetAccount(ctx)
	if err != nil {
		log.Warn().Err(err).Str("source_order", order.OrderID).Msg("trigger_scan: mirror account unavailable, skipping placement")
		return
	}

	leverage := placement.ExtractLeverage(placement.LeverageSource{
		FromOrder:     order.Leverage,
		FromPosition:  positionLeverage(sourcePositions, order.Contract),
		FromAccount:   sourceAccount.LeverageDefault,
		CachedDefault: d.cfg.DefaultLeverage,
	})

	base, final := placement.MarginRatio(order.Size, order.TriggerPrice, leverage, sourceAccount.TotalEquity, d.ctrl.Ratio())
	if final.IsZero() {
		log.Warn().Str("source_order", order.OrderID).Msg("trigger_scan: computed margin ratio is zero, skipping placement")
		return
	}

	srcPrice, mirPrice := d.priceTracker.Prices()
	adjustedTrigger := placement.AdjustTriggerPrice(order.Side, order.TriggerPrice, srcPrice, mirPrice)

	mirrorSize := placement.MirrorSize(final, mirrorAccount.TotalEquity, leverage, adjustedTrigger, contractUnit)
	requiredMargin := mirrorSize.Mul(adjustedTrigger).Div(decimal.NewFromInt(int64(leverage)))
	if _, ok := placement.ClampToAvailableMargin(requiredMargin, mirrorAccount.Available, d.cfg.MinimumMarginUSD); !ok {
		log.Warn().Str("source_order", order.OrderID).Msg("trigger_scan: insufficient mirror margin even after clamp, aborting placement")
		d.stats.IncFailedMirrors()
		return
	}

	var tp, sl *decimal.Decimal
	if order.HasTP {
		tpv := order.TPPrice
		tp = &tpv
	}
	if order.HasSL {
		slv := order.SLPrice
		sl = &slv
	}

	if placement.IsCloseOrder(order.Side) {
		// Permissive by design: a close-side trigger is mirrored even when no
		// matching mirror position is currently open, exactly as the source
		// account intends it; the position reconciler cleans up any orphan
		// this creates rather than the placement pipeline refusing it.
		d.stats.IncPermissiveCloseMirrors()
	}

	mirrorOrderID, err := d.mirror.PlaceTrigger(ctx, d.cfg.MirrorContract, order.Side, adjustedTrigger, mirrorSize, order.ReduceOnly(), tp, sl)
	if err != nil {
		log.Error().Err(err).Str("source_order", order.OrderID).Msg("trigger_scan: mirror placement failed")
		d.stats.IncFailedMirrors()
		d.notify.Send("placement_failure", "failed to mirror source order "+order.OrderID)
		return
	}

	rec := types.MirrorRecord{
		SourceOrderID: order.OrderID, MirrorOrderID: mirrorOrderID,
		SourceSnapshot: order, BaseMarginRatio: base, AppliedRatioMultiplier: d.ctrl.Ratio(), FinalMarginRatio: final,
		RequestedTriggerPrice: order.TriggerPrice, AdjustedTriggerPrice: adjustedTrigger,
		HasTPSL: order.HasTP || order.HasSL, TPPrice: order.TPPrice, SLPrice: order.SLPrice,
		CreatedAt: now,
	}
	d.store.Insert(rec)
	d.orderHashes.Insert(hashes, now)
	d.stats.IncMirrorsPlaced()
	log.Info().Str("source_order", order.OrderID).Str("mirror_order", mirrorOrderID).Str("final_ratio", final.String()).Msg("placed mirror trigger order")
}

func positionLeverage(positions []types.Position, contract string) int {
	for _, p := range positions {
		if p.Contract == contract {
			return p.Leverage
		}
	}
	return 0
}

// anyStartupMirrorHash reports whether any canonical hash variant of a
// freshly-appeared order matches a trigger order that already existed on the
// mirror venue at startup; it must not be re-placed as a new mirror.
func anyStartupMirrorHash(s *engine.Store, hashes []string) bool {
	for _, h := range hashes {
		if s.IsStartupMirrorTriggerHash(h) {
			return true
		}
	}
	return false
}
