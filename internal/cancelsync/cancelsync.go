// Package cancelsync implements the Cancel Synchronizer (spec.md §4.8):
// cancel the mirror counterpart of a source order judged canceled, with
// bounded retries and a force-cleanup threshold.
package cancelsync

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polybot/internal/exchange"
	"github.com/web3guy0/polybot/internal/hashcache"
	"github.com/web3guy0/polybot/internal/notifier"
	"github.com/web3guy0/polybot/internal/stats"
)

const (
	softForceCleanupAttempts = 5
	hardForceCleanupAttempts = 10
	requeryDelay             = 2 * time.Second
)

type crossMarginEnsurer interface {
	Ensure(ctx context.Context) bool
}

// Result tells the caller whether the MirrorRecord should be removed.
type Result struct {
	Removed      bool
	ForcedCleanup bool
}

// Synchronizer drives the cancel retry/force-cleanup state machine.
type Synchronizer struct {
	client  exchange.MirrorClient
	guard   crossMarginEnsurer
	retries *hashcache.CancelRetryCount
	notify  notifier.Notifier
	stats   *stats.Stats
}

func New(client exchange.MirrorClient, guard crossMarginEnsurer, retries *hashcache.CancelRetryCount, n notifier.Notifier, s *stats.Stats) *Synchronizer {
	return &Synchronizer{client: client, guard: guard, retries: retries, notify: n, stats: s}
}

// Cancel ensures cross-margin, issues the cancel, and applies §4.8's retry
// counting and force-cleanup thresholds for one source order's mirror
// counterpart. It does not query the mirror's live trigger list, either
// before or after the cancel. The caller is responsible for step 1 (looking
// up the MirrorRecord and treating absence as immediate success).
func (s *Synchronizer) Cancel(ctx context.Context, sourceOrderID, mirrorOrderID string) Result {
	s.guard.Ensure(ctx)

	_, notFound, err := s.client.CancelTrigger(ctx, mirrorOrderID)
	if notFound {
		s.retries.Reset(sourceOrderID)
		return Result{Removed: true}
	}
	if err == nil {
		// The cancel ack alone counts as success: there is no wait and no
		// re-query of the mirror trigger set afterwards, and the caller
		// removes the MirrorRecord on this result.
		s.retries.Reset(sourceOrderID)
		s.stats.IncCancelsSynced()
		return Result{Removed: true}
	}

	attempts := s.retries.Increment(sourceOrderID)
	s.stats.IncCancelFailures()
	log.Warn().Err(err).Str("source_order", sourceOrderID).Int("attempts", attempts).Msg("cancel sync failed")

	if attempts >= hardForceCleanupAttempts {
		_, _, _ = s.client.CancelTrigger(ctx, mirrorOrderID) // one last blind cancel
		s.retries.Reset(sourceOrderID)
		s.stats.IncForcedCancelCleanups()
		s.notify.Send("forced_cancel_cleanup", "force-cleaned mirror record for "+sourceOrderID+" after 10 failed cancel attempts")
		return Result{Removed: true, ForcedCleanup: true}
	}
	if attempts >= softForceCleanupAttempts {
		s.notify.Send("forced_cancel_cleanup", "mirror record for "+sourceOrderID+" force-removed after 5 failed cancel attempts")
		return Result{Removed: true, ForcedCleanup: true}
	}

	return Result{Removed: false}
}
