// Package posreconciler implements the Position Reconciler (spec.md §4.10):
// detect orphan mirror positions and direction mismatches, close the
// offending mirror position at market.
package posreconciler

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/web3guy0/polybot/internal/exchange"
	"github.com/web3guy0/polybot/internal/stats"
	"github.com/web3guy0/polybot/types"
)

type crossMarginEnsurer interface {
	Ensure(ctx context.Context) bool
}

// Reconciler never opens positions; it only closes mirror positions that
// have no legitimate reason to exist.
type Reconciler struct {
	client exchange.MirrorClient
	guard  crossMarginEnsurer
	stats  *stats.Stats

	startupMirrorPositions map[string]bool // contract -> was present at init
}

func New(client exchange.MirrorClient, guard crossMarginEnsurer, s *stats.Stats, startupMirrorPositions map[string]bool) *Reconciler {
	if startupMirrorPositions == nil {
		startupMirrorPositions = map[string]bool{}
	}
	return &Reconciler{client: client, guard: guard, stats: s, startupMirrorPositions: startupMirrorPositions}
}

// Check compares source and mirror positions for one contract and closes
// the mirror side if it is orphaned (source flat, non-startup mirror
// holding) or mismatched (both holding, opposite directions).
func (r *Reconciler) Check(ctx context.Context, contract string, sourcePos, mirrorPos types.Position) {
	if mirrorPos.Flat() {
		return
	}

	orphan := sourcePos.Flat() && !r.startupMirrorPositions[contract]
	mismatch := !sourcePos.Flat() && sourcePos.Direction != mirrorPos.Direction

	if !orphan && !mismatch {
		return
	}

	r.guard.Ensure(ctx)
	if err := r.client.ClosePosition(ctx, contract); err != nil {
		log.Error().Err(err).Str("contract", contract).Bool("orphan", orphan).Bool("mismatch", mismatch).Msg("position reconciler close failed")
		r.stats.IncFailedMirrors()
		return
	}
	log.Info().Str("contract", contract).Bool("orphan", orphan).Bool("mismatch", mismatch).Msg("closed mismatched/orphan mirror position")
}
