// Package marginguard enforces that the mirror venue stays in cross-margin
// mode, making one ForceCrossMargin coercion call per check when it is not
// (there is no escalation to further coercion methods) and notifying after
// repeated failure without ever blocking the core reconciliation loop.
package marginguard

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polybot/internal/notifier"
	"github.com/web3guy0/polybot/internal/stats"
	"github.com/web3guy0/polybot/types"
)

// crossMarginChecker is the subset of MirrorClient the guard needs.
type crossMarginChecker interface {
	GetMarginMode(ctx context.Context, contract string) (types.MarginMode, error)
	ForceCrossMargin(ctx context.Context, contract string) (bool, error)
}

// Guard tracks consecutive cross-margin-coercion failures and notifies once
// after three in a row, exactly like a circuit breaker's trip threshold but
// without ever halting the caller; failure here degrades to best-effort.
type Guard struct {
	mu sync.Mutex

	client   crossMarginChecker
	contract string
	notifier notifier.Notifier
	stats    *stats.Stats

	consecutiveFailures int
	notifiedThisStreak  bool

	degradedFailures int // local mirror of stats.MarginModeFailures, for callers without a Stats reference
}

func New(client crossMarginChecker, contract string, n notifier.Notifier, st *stats.Stats) *Guard {
	return &Guard{client: client, contract: contract, notifier: n, stats: st}
}

// Ensure asserts cross-margin mode, coercing if necessary. It never returns
// an error that should stop the caller: on persistent failure it logs,
// notifies (rate-limited, once per failure streak), increments a stat
// counter, and returns false so the caller can decide to proceed anyway or
// skip the risky action.
func (g *Guard) Ensure(ctx context.Context) bool {
	mode, err := g.client.GetMarginMode(ctx, g.contract)
	if err == nil && mode == types.Cross {
		g.onSuccess()
		return true
	}

	ok, coerceErr := g.client.ForceCrossMargin(ctx, g.contract)
	if coerceErr == nil && ok {
		mode, err = g.client.GetMarginMode(ctx, g.contract)
		if err == nil && mode == types.Cross {
			g.onSuccess()
			return true
		}
	}

	g.onFailure()
	return false
}

func (g *Guard) onSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.consecutiveFailures = 0
	g.notifiedThisStreak = false
}

func (g *Guard) onFailure() {
	g.mu.Lock()
	g.consecutiveFailures++
	g.degradedFailures++
	shouldNotify := g.consecutiveFailures >= 3 && !g.notifiedThisStreak
	if shouldNotify {
		g.notifiedThisStreak = true
	}
	failures := g.consecutiveFailures
	g.mu.Unlock()

	if g.stats != nil {
		g.stats.IncMarginModeFailures()
	}

	log.Warn().Str("contract", g.contract).Int("consecutive_failures", failures).Msg("mirror venue not in cross-margin mode, coercion failed")

	if shouldNotify && g.notifier != nil {
		g.notifier.Send("margin_mode", "mirror account could not be forced into cross-margin after 3 attempts on "+g.contract)
	}
}

// DegradedFailures reports the cumulative count of failed Ensure calls
// observed by this Guard instance, for tests; the daily report reads the
// same counter off the shared Stats passed to New.
func (g *Guard) DegradedFailures() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.degradedFailures
}
