// Package stats holds the Supervisor-owned counters every reconciliation
// fiber increments on a recoverable failure instead of exiting.
package stats

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Snapshot is a read-only copy of the counters, returned by Stats.Snapshot;
// the Controller does not expose it.
type Snapshot struct {
	MirrorsPlaced          int
	ImmediateFills         int
	CancelsSynced          int
	ForcedCancelCleanups   int
	FailedMirrors          int
	CancelFailures         int
	MarginModeFailures     int
	ImmediateFillFailures  int
	PermissiveCloseMirrors int
	LastError              string
	CurrentRatio           decimal.Decimal
	MirrorEnabled          bool
}

// Stats is the mutable counter set, guarded by its own lock so any fiber can
// increment without taking the engine's component lock.
type Stats struct {
	mu sync.Mutex
	s  Snapshot
}

func New() *Stats {
	return &Stats{}
}

func (s *Stats) IncMirrorsPlaced()          { s.inc(func(v *Snapshot) { v.MirrorsPlaced++ }) }
func (s *Stats) IncImmediateFills()         { s.inc(func(v *Snapshot) { v.ImmediateFills++ }) }
func (s *Stats) IncCancelsSynced()          { s.inc(func(v *Snapshot) { v.CancelsSynced++ }) }
func (s *Stats) IncForcedCancelCleanups()   { s.inc(func(v *Snapshot) { v.ForcedCancelCleanups++ }) }
func (s *Stats) IncFailedMirrors()          { s.inc(func(v *Snapshot) { v.FailedMirrors++ }) }
func (s *Stats) IncCancelFailures()         { s.inc(func(v *Snapshot) { v.CancelFailures++ }) }
func (s *Stats) IncMarginModeFailures()     { s.inc(func(v *Snapshot) { v.MarginModeFailures++ }) }
func (s *Stats) IncImmediateFillFailures()  { s.inc(func(v *Snapshot) { v.ImmediateFillFailures++ }) }
func (s *Stats) IncPermissiveCloseMirrors() { s.inc(func(v *Snapshot) { v.PermissiveCloseMirrors++ }) }

func (s *Stats) SetLastError(err string) {
	s.inc(func(v *Snapshot) { v.LastError = err })
}

func (s *Stats) SetRatio(r decimal.Decimal) {
	s.inc(func(v *Snapshot) { v.CurrentRatio = r })
}

func (s *Stats) SetEnabled(enabled bool) {
	s.inc(func(v *Snapshot) { v.MirrorEnabled = enabled })
}

func (s *Stats) inc(mutate func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.s)
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.s
}

// ResetDaily zeroes the per-day counters at the daily_report boundary,
// keeping current ratio/enabled as-is.
func (s *Stats) ResetDaily() {
	s.mu.Lock()
	defer s.mu.Unlock()
	ratio, enabled := s.s.CurrentRatio, s.s.MirrorEnabled
	s.s = Snapshot{CurrentRatio: ratio, MirrorEnabled: enabled}
}
