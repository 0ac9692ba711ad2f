// Package hashcache implements canonical order hashing and the four
// time-bounded caches the reconciliation core uses to prevent double-mirror
// and to track fill/cancel retry state.
package hashcache

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// absoluteOffsets mirrors the offset list used by the original mirror
// trading system verbatim, in USD, to absorb cross-venue trigger-price
// jitter for BTC-scale contracts.
var absoluteOffsets = []int64{-200, -100, -50, -20, 0, 20, 50, 100, 200}

// fractionalOffsets is the parameterized alternative flagged in spec.md §9:
// offsets as a fraction of trigger price, so symbols far from BTC's price
// scale don't get nonsensical absolute USD jitter bands. Inserted and checked
// alongside the absolute family: a match on any variant of either family
// causes dedup.
var fractionalOffsets = []float64{-0.002, -0.001, -0.0005, -0.0002, 0, 0.0002, 0.0005, 0.001, 0.002}

// CanonicalHashes returns every hash variant for an order: the base
// (contract, round2(trigger), |size|) tuple, roundings to 1 and 0 decimals,
// a TP/SL-aware variant when present, and every absolute/fractional offset
// variant of the trigger price.
func CanonicalHashes(contract string, triggerPrice, size decimal.Decimal, hasTPSL bool, tp, sl decimal.Decimal) []string {
	absSize := size.Abs()
	hashes := make([]string, 0, 24)

	add := func(price decimal.Decimal) {
		hashes = append(hashes, baseHash(contract, price, absSize))
	}

	add(triggerPrice.Round(2))
	add(triggerPrice.Round(1))
	add(triggerPrice.Round(0))

	for _, off := range absoluteOffsets {
		add(triggerPrice.Add(decimal.NewFromInt(off)).Round(2))
	}
	for _, frac := range fractionalOffsets {
		off := triggerPrice.Mul(decimal.NewFromFloat(frac))
		add(triggerPrice.Add(off).Round(2))
	}

	if hasTPSL {
		hashes = append(hashes, fmt.Sprintf("%s|tpsl|%s|%s|%s", contract, triggerPrice.Round(2).String(), tp.Round(2).String(), sl.Round(2).String()))
	}

	return dedupStrings(hashes)
}

func baseHash(contract string, price, size decimal.Decimal) string {
	return fmt.Sprintf("%s|%s|%s", contract, price.String(), size.String())
}

func dedupStrings(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ttlSet is a set of string members with per-entry expiry, swept lazily.
type ttlSet struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]time.Time
}

func newTTLSet(ttl time.Duration) *ttlSet {
	return &ttlSet{ttl: ttl, entries: make(map[string]time.Time)}
}

func (s *ttlSet) Add(key string, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = now.Add(s.ttl)
}

func (s *ttlSet) Has(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.entries[key]
	if !ok {
		return false
	}
	if now.After(exp) {
		delete(s.entries, key)
		return false
	}
	return true
}

func (s *ttlSet) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, exp := range s.entries {
		if now.After(exp) {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// OrderHashes is the dedup cache over canonical order hashes, TTL 3min.
type OrderHashes struct {
	set *ttlSet
}

func NewOrderHashes() *OrderHashes {
	return &OrderHashes{set: newTTLSet(3 * time.Minute)}
}

// Insert records every hash variant of an order as present, timestamped now.
func (h *OrderHashes) Insert(hashes []string, now time.Time) {
	for _, hh := range hashes {
		h.set.Add(hh, now)
	}
}

// AnyPresent reports whether any of the given hash variants is currently in
// the cache; membership of any variant causes dedup.
func (h *OrderHashes) AnyPresent(hashes []string, now time.Time) bool {
	for _, hh := range hashes {
		if h.set.Has(hh, now) {
			return true
		}
	}
	return false
}

func (h *OrderHashes) Sweep(now time.Time) int { return h.set.Sweep(now) }

// RecentlyProcessed tracks source_order_id -> processed_at, TTL 15s,
// preventing double-placement within a single tick storm.
type RecentlyProcessed struct {
	set *ttlSet
}

func NewRecentlyProcessed() *RecentlyProcessed {
	return &RecentlyProcessed{set: newTTLSet(15 * time.Second)}
}

func (r *RecentlyProcessed) Mark(sourceOrderID string, now time.Time) { r.set.Add(sourceOrderID, now) }
func (r *RecentlyProcessed) WasProcessed(sourceOrderID string, now time.Time) bool {
	return r.set.Has(sourceOrderID, now)
}
func (r *RecentlyProcessed) Sweep(now time.Time) int { return r.set.Sweep(now) }

// RecentlyFilled tracks source_order_id -> filled_at, TTL 5min. Membership
// is authoritative "this disappeared because it filled" evidence.
type RecentlyFilled struct {
	set *ttlSet
}

func NewRecentlyFilled() *RecentlyFilled {
	return &RecentlyFilled{set: newTTLSet(5 * time.Minute)}
}

func (r *RecentlyFilled) Mark(sourceOrderID string, now time.Time) { r.set.Add(sourceOrderID, now) }
func (r *RecentlyFilled) WasFilled(sourceOrderID string, now time.Time) bool {
	return r.set.Has(sourceOrderID, now)
}
func (r *RecentlyFilled) Sweep(now time.Time) int { return r.set.Sweep(now) }

// CancelRetryCount tracks source_order_id -> attempts, reset on success,
// forced cleanup at 10 attempts (5 for the softer force-cleanup threshold).
type CancelRetryCount struct {
	mu       sync.Mutex
	attempts map[string]int
}

func NewCancelRetryCount() *CancelRetryCount {
	return &CancelRetryCount{attempts: make(map[string]int)}
}

// Increment records another failed cancel attempt and returns the new count.
func (c *CancelRetryCount) Increment(sourceOrderID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[sourceOrderID]++
	return c.attempts[sourceOrderID]
}

// Reset clears the counter after a successful cancel.
func (c *CancelRetryCount) Reset(sourceOrderID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.attempts, sourceOrderID)
}

// Count returns the current attempt count without mutating it.
func (c *CancelRetryCount) Count(sourceOrderID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[sourceOrderID]
}
