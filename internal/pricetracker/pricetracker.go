// Package pricetracker maintains the last-valid (source, mirror) price pair,
// tolerating transient poll failures by reusing the previous sample.
package pricetracker

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// abnormalDiffUSD rejects a sample whose source/mirror divergence is
// implausibly large, almost certainly a bad tick rather than real jitter.
var abnormalDiffUSD = decimal.NewFromInt(5000)

// delayThresholdUSD mirrors should_delay_processing: placement decisions
// are deferred when the cross-venue gap is this wide.
var delayThresholdUSD = decimal.NewFromInt(1000)

// DiffInfo surfaces the current price-divergence snapshot, grounded on
// get_price_difference_info / should_delay_processing.
type DiffInfo struct {
	SourcePrice decimal.Decimal
	MirrorPrice decimal.Decimal
	DiffAbs     decimal.Decimal
	ShouldDelay bool
}

// Tracker holds the most recent valid prices per venue.
type Tracker struct {
	mu sync.RWMutex

	sourcePrice decimal.Decimal
	mirrorPrice decimal.Decimal

	sourceFailures int
	mirrorFailures int
}

func New() *Tracker {
	return &Tracker{}
}

// UpdateSource records a new source price sample if it passes sanity checks;
// on failure (err != nil) or an abnormal sample, the previous value is kept.
func (t *Tracker) UpdateSource(price decimal.Decimal, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.sourceFailures++
		log.Warn().Err(err).Int("failures", t.sourceFailures).Msg("source price poll failed, reusing last valid")
		return
	}
	if !t.sampleIsValidLocked(price, t.mirrorPrice) {
		log.Warn().Str("price", price.String()).Msg("rejected abnormal source price sample")
		return
	}
	t.sourcePrice = price
	t.sourceFailures = 0
}

// UpdateMirror is UpdateSource's mirror-venue counterpart.
func (t *Tracker) UpdateMirror(price decimal.Decimal, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.mirrorFailures++
		log.Warn().Err(err).Int("failures", t.mirrorFailures).Msg("mirror price poll failed, reusing last valid")
		return
	}
	if !t.sampleIsValidLocked(price, t.sourcePrice) {
		log.Warn().Str("price", price.String()).Msg("rejected abnormal mirror price sample")
		return
	}
	t.mirrorPrice = price
	t.mirrorFailures = 0
}

// sampleIsValidLocked checks a freshly polled price against the other
// venue's current price, not its own previous sample, so diff_abs is always
// the cross-venue |source - mirror| gap the spec's abnormal-divergence
// check is defined over.
func (t *Tracker) sampleIsValidLocked(price, reference decimal.Decimal) bool {
	if price.LessThanOrEqual(decimal.Zero) {
		return false
	}
	if reference.IsZero() {
		return true
	}
	diff := price.Sub(reference).Abs()
	return diff.LessThanOrEqual(abnormalDiffUSD)
}

// Prices returns the current (source, mirror) sample.
func (t *Tracker) Prices() (source, mirror decimal.Decimal) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sourcePrice, t.mirrorPrice
}

// Diff returns the current DiffInfo snapshot.
func (t *Tracker) Diff() DiffInfo {
	src, mir := t.Prices()
	diff := src.Sub(mir).Abs()
	return DiffInfo{
		SourcePrice: src,
		MirrorPrice: mir,
		DiffAbs:     diff,
		ShouldDelay: diff.GreaterThan(delayThresholdUSD),
	}
}

// MarkInterval returns the time elapsed since last, for diagnostics only.
func MarkInterval(last time.Time) time.Duration {
	return time.Since(last)
}
