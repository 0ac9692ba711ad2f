// Command mirrorengine runs the cross-exchange order mirroring engine: it
// observes a source derivatives account and replicates its trigger orders,
// positions, and TP/SL legs onto a mirror account on another venue.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polybot/internal/cancelsync"
	"github.com/web3guy0/polybot/internal/clock"
	"github.com/web3guy0/polybot/internal/config"
	"github.com/web3guy0/polybot/internal/controller"
	"github.com/web3guy0/polybot/internal/diff"
	"github.com/web3guy0/polybot/internal/engine"
	"github.com/web3guy0/polybot/internal/exchange"
	"github.com/web3guy0/polybot/internal/fillexec"
	"github.com/web3guy0/polybot/internal/hashcache"
	"github.com/web3guy0/polybot/internal/marginguard"
	"github.com/web3guy0/polybot/internal/notifier"
	"github.com/web3guy0/polybot/internal/posreconciler"
	"github.com/web3guy0/polybot/internal/pricetracker"
	"github.com/web3guy0/polybot/internal/stats"
	"github.com/web3guy0/polybot/internal/storage"
	"github.com/web3guy0/polybot/internal/supervisor"
	"github.com/web3guy0/polybot/types"
)

// startupFetchAttempts/startupFetchBackoff match spec.md §4.11's startup
// retry allowance: transient failures fetching the startup snapshot get 3
// attempts with a 10s back-off before the corresponding startup set is left
// empty.
const (
	startupFetchAttempts = 3
	startupFetchBackoff  = 10 * time.Second
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, continuing with process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("configuration error")
	}
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	source := exchange.NewBitgetAdapter(cfg, cfg.SourceCredentials, "https://api.bitget.com", "wss://ws.bitget.com/v2/ws/public")
	mirror := exchange.NewGateioAdapter(cfg, cfg.MirrorCredentials, "https://api.gateio.ws", "wss://fx-ws.gateio.ws/v4/ws/usdt")
	source.Start(ctx)
	mirror.Start(ctx)
	defer source.Stop()
	defer mirror.Stop()

	db, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatal().Err(err).Msg("storage init failed")
	}
	defer db.Close()

	var notify notifier.Notifier
	if cfg.TelegramBotToken != "" {
		sink, err := notifier.NewTelegramSink(cfg.TelegramBotToken, cfg.NotificationChatID)
		if err != nil {
			log.Fatal().Err(err).Msg("telegram init failed")
		}
		notify = notifier.NewRateLimited(sink)
	} else {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set, notifications will be logged only")
		notify = notifier.NewRateLimited(noopSink{})
	}
	notify = auditingNotifier{inner: notify, db: db}

	st := stats.New()
	priceTracker := pricetracker.New()
	store := engine.NewStore()
	orderHashes := hashcache.NewOrderHashes()
	recentlyProcessed := hashcache.NewRecentlyProcessed()
	recentlyFilled := hashcache.NewRecentlyFilled()
	cancelRetries := hashcache.NewCancelRetryCount()
	diffEngine := diff.New()

	guard := marginguard.New(mirror, cfg.MirrorContract, notify, st)
	executor := fillexec.New(mirror, guard, notify, st)
	canceler := cancelsync.New(mirror, guard, cancelRetries, notify, st)

	startupMirrorPositions := loadStartupMirrorPositions(ctx, mirror, cfg.MirrorContract)
	reconciler := posreconciler.New(mirror, guard, st, startupMirrorPositions)

	ctrl := controller.New(cfg.MirrorEnabledDefault, cfg.RatioDefault, func() {
		log.Info().Msg("mirror_enabled transitioned off->on: re-running margin-mode check, price refresh and startup-set rebuild")
		guard.Ensure(ctx)
		srcTicker, srcErr := source.GetTicker(ctx)
		priceTracker.UpdateSource(srcTicker.Last, srcErr)
		mirTicker, mirErr := mirror.GetTicker(ctx)
		priceTracker.UpdateMirror(mirTicker.Last, mirErr)
		startupReplay(ctx, source, mirror, store, cfg)
	})
	st.SetEnabled(ctrl.Enabled())
	st.SetRatio(ctrl.Ratio())
	ctrl.OnAudit(func(e controller.AuditEntry) {
		db.LogRatioChange(e.Old, e.New, e.By, e.Description, e.DeltaPct, e.At)
	})

	sup := supervisor.New(clock.Real{})

	sup.Register(supervisor.Fiber{Name: "price_refresh", Interval: 5 * time.Second, Run: func(ctx context.Context) {
		if !ctrl.Enabled() {
			return
		}
		srcTicker, srcErr := source.GetTicker(ctx)
		priceTracker.UpdateSource(srcTicker.Last, srcErr)
		mirTicker, mirErr := mirror.GetTicker(ctx)
		priceTracker.UpdateMirror(mirTicker.Last, mirErr)
	}})

	sup.Register(supervisor.Fiber{Name: "trigger_scan", Interval: cfg.TriggerScanInterval, Run: func(ctx context.Context) {
		if !ctrl.Enabled() {
			return
		}
		runTriggerScan(ctx, scanDeps{
			source: source, mirror: mirror, cfg: cfg, ctrl: ctrl, guard: guard,
			priceTracker: priceTracker, store: store, diffEngine: diffEngine,
			orderHashes: orderHashes, recentlyProcessed: recentlyProcessed,
			recentlyFilled: recentlyFilled, executor: executor, canceler: canceler,
			stats: st, notify: notify,
		})
	}})

	sup.Register(supervisor.Fiber{Name: "position_sync", Interval: cfg.PositionSyncInterval, Run: func(ctx context.Context) {
		if !ctrl.Enabled() {
			return
		}
		srcPositions, err := source.GetPositions(ctx, cfg.SourceContract)
		if err != nil {
			log.Warn().Err(err).Msg("position_sync: source positions unavailable")
			return
		}
		mirPositions, err := mirror.GetPositions(ctx, cfg.MirrorContract)
		if err != nil {
			log.Warn().Err(err).Msg("position_sync: mirror positions unavailable")
			return
		}
		srcPos, mirPos := firstOrFlat(srcPositions), firstOrFlat(mirPositions)
		reconciler.Check(ctx, cfg.MirrorContract, srcPos, mirPos)
	}})

	sup.Register(supervisor.Fiber{Name: "margin_guard", Interval: cfg.MarginGuardInterval, Run: func(ctx context.Context) {
		guard.Ensure(ctx)
	}})

	sup.Register(supervisor.Fiber{Name: "hash_cache_sweep", Interval: 60 * time.Second, Run: func(ctx context.Context) {
		now := time.Now()
		orderHashes.Sweep(now)
		recentlyProcessed.Sweep(now)
		recentlyFilled.Sweep(now)
	}})

	sup.Register(supervisor.Fiber{Name: "daily_report", Interval: 24 * time.Hour, InitialDelay: nextLocal0900(time.Now()), Run: func(ctx context.Context) {
		snap := st.Snapshot()
		notify.Send("daily_report", notifier.DailySummary(snap))
		db.UpsertDailyStat(time.Now().Format("2006-01-02"), storage.DailyStat{
			MirrorsPlaced: snap.MirrorsPlaced, ImmediateFills: snap.ImmediateFills,
			CancelsSynced: snap.CancelsSynced, ForcedCancelCleanups: snap.ForcedCancelCleanups,
			FailedMirrors: snap.FailedMirrors, CancelFailures: snap.CancelFailures,
			MarginModeFailures: snap.MarginModeFailures, ImmediateFillFailures: snap.ImmediateFillFailures,
			PermissiveCloseMirrors: snap.PermissiveCloseMirrors,
		})
		st.ResetDaily()
	}})

	startupReplay(ctx, source, mirror, store, cfg)

	sup.Start(ctx)
	notify.Send("lifecycle", fmt.Sprintf("mirror engine started: %s -> %s, ratio=%s, enabled=%v", cfg.SourceContract, cfg.MirrorContract, ctrl.Ratio().String(), ctrl.Enabled()))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	notify.Send("lifecycle", "mirror engine shutting down")
	sup.Shutdown()
	cancel()
}

// loadStartupMirrorPositions queries the mirror venue once at boot so the
// Position Reconciler never treats a position that already existed before
// this process started as an orphan.
func loadStartupMirrorPositions(ctx context.Context, mirror exchange.MirrorClient, contract string) map[string]bool {
	out := map[string]bool{}
	positions, err := mirror.GetPositions(ctx, contract)
	if err != nil {
		log.Warn().Err(err).Msg("startup: mirror positions unavailable, startup position set is empty")
		return out
	}
	for _, p := range positions {
		if !p.Flat() {
			out[p.Contract] = true
		}
	}
	return out
}

// startupReplay rebuilds the Store's immutable startup sets: trigger orders
// and positions present on either venue before this process started are
// never eligible for mirroring, cancel-sync, or orphan cleanup. Each
// snapshot fetch gets 3 attempts with a 10s back-off (spec.md §4.11)
// before its startup set is left empty; startup-excluded orders are never
// placed as new mirrors regardless of retry outcome.
func startupReplay(ctx context.Context, source exchange.SourceClient, mirror exchange.MirrorClient, store *engine.Store, cfg *config.Config) {
	var sourceTriggers []types.TriggerOrder
	if err := supervisor.RetryStartupReplay(ctx, clock.Real{}, startupFetchAttempts, startupFetchBackoff, func() error {
		var fetchErr error
		sourceTriggers, fetchErr = source.GetAllTriggerOrders(ctx, cfg.SourceContract)
		return fetchErr
	}); err != nil {
		log.Warn().Err(err).Msg("startup: failed to list source trigger orders after retries, startup trigger set is empty")
	}
	triggerIDs := make([]string, 0, len(sourceTriggers))
	for _, t := range sourceTriggers {
		triggerIDs = append(triggerIDs, t.OrderID)
	}

	var mirrorTriggers []types.TriggerOrder
	if err := supervisor.RetryStartupReplay(ctx, clock.Real{}, startupFetchAttempts, startupFetchBackoff, func() error {
		var fetchErr error
		mirrorTriggers, fetchErr = mirror.GetAllTriggerOrders(ctx, cfg.MirrorContract)
		return fetchErr
	}); err != nil {
		log.Warn().Err(err).Msg("startup: failed to list mirror trigger orders after retries, startup hash set is empty")
	}
	var mirrorHashes []string
	for _, t := range mirrorTriggers {
		mirrorHashes = append(mirrorHashes, hashcache.CanonicalHashes(t.Contract, t.TriggerPrice, t.Size, t.HasTP || t.HasSL, t.TPPrice, t.SLPrice)...)
	}

	var sourcePositions []types.Position
	if err := supervisor.RetryStartupReplay(ctx, clock.Real{}, startupFetchAttempts, startupFetchBackoff, func() error {
		var fetchErr error
		sourcePositions, fetchErr = source.GetPositions(ctx, cfg.SourceContract)
		return fetchErr
	}); err != nil {
		log.Warn().Err(err).Msg("startup: failed to list source positions after retries, startup source position set is empty")
	}
	sourcePosContracts := make([]string, 0, len(sourcePositions))
	for _, p := range sourcePositions {
		if !p.Flat() {
			sourcePosContracts = append(sourcePosContracts, p.Contract)
		}
	}

	var mirrorPositions []types.Position
	if err := supervisor.RetryStartupReplay(ctx, clock.Real{}, startupFetchAttempts, startupFetchBackoff, func() error {
		var fetchErr error
		mirrorPositions, fetchErr = mirror.GetPositions(ctx, cfg.MirrorContract)
		return fetchErr
	}); err != nil {
		log.Warn().Err(err).Msg("startup: failed to list mirror positions after retries, startup mirror position set is empty")
	}
	mirrorPosContracts := make([]string, 0, len(mirrorPositions))
	for _, p := range mirrorPositions {
		if !p.Flat() {
			mirrorPosContracts = append(mirrorPosContracts, p.Contract)
		}
	}

	store.InitStartupSets(sourcePosContracts, mirrorPosContracts, triggerIDs, mirrorHashes)
	log.Info().Int("startup_source_triggers", len(triggerIDs)).Int("startup_mirror_hashes", len(mirrorHashes)).Msg("startup sets rebuilt")
}

// nextLocal0900 returns the delay until the next 09:00 in now's local
// timezone, rolling over to tomorrow if 09:00 has already passed today.
func nextLocal0900(now time.Time) time.Duration {
	target := time.Date(now.Year(), now.Month(), now.Day(), 9, 0, 0, 0, now.Location())
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target.Sub(now)
}

func firstOrFlat[T any](items []T) T {
	var zero T
	if len(items) == 0 {
		return zero
	}
	return items[0]
}

// auditingNotifier forwards every notification through the rate-limited
// notifier and also records it in storage's notification log. The record is
// written for every Send/SendHighPriority call, including sends that the
// per-category cap suppresses.
type auditingNotifier struct {
	inner notifier.Notifier
	db    *storage.DB
}

func (a auditingNotifier) Send(category, text string) {
	a.inner.Send(category, text)
	a.db.LogNotification(category, text, time.Now())
}

func (a auditingNotifier) SendHighPriority(category, text string) {
	a.inner.SendHighPriority(category, text)
	a.db.LogNotification(category, text, time.Now())
}

type noopSink struct{}

func (noopSink) Deliver(text string) error {
	log.Info().Str("notification", text).Msg("notifier: no Telegram configured, logging instead")
	return nil
}
