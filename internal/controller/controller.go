// Package controller exposes the operator-mutable mirror_enabled/ratio
// knobs with validation, clamping, and an audit trail of changes.
package controller

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

var (
	minRatio = decimal.NewFromFloat(0.1)
	maxRatio = decimal.NewFromFloat(10.0)
)

// AuditEntry records one set_ratio call, including a human-readable
// description grounded on get_ratio_multiplier_description /
// analyze_ratio_multiplier_effect.
type AuditEntry struct {
	Old         decimal.Decimal
	New         decimal.Decimal
	By          string
	At          time.Time
	DeltaPct    decimal.Decimal
	Description string
}

// ReinitFunc is invoked on an off->on transition of mirror_enabled: the
// caller re-runs margin-mode check, price refresh, and startup-set rebuild.
type ReinitFunc func()

// AuditFunc is invoked after every SetRatio call, for a caller that wants to
// persist the audit trail (e.g. to storage) without the Controller itself
// depending on a persistence layer.
type AuditFunc func(AuditEntry)

// Controller is the Ratio/Enable Controller of spec.md §4.3.
type Controller struct {
	mu      sync.RWMutex
	enabled bool
	ratio   decimal.Decimal
	audit   []AuditEntry
	reinit  ReinitFunc
	onAudit AuditFunc
}

func New(enabledDefault bool, ratioDefault decimal.Decimal, reinit ReinitFunc) *Controller {
	return &Controller{enabled: enabledDefault, ratio: ratioDefault, reinit: reinit}
}

// OnAudit registers a callback fired after every recorded SetRatio call.
func (c *Controller) OnAudit(fn AuditFunc) {
	c.mu.Lock()
	c.onAudit = fn
	c.mu.Unlock()
}

// SetEnabled takes immediate effect; an off->on transition triggers an
// idempotent re-initialization.
func (c *Controller) SetEnabled(enabled bool) {
	c.mu.Lock()
	was := c.enabled
	c.enabled = enabled
	c.mu.Unlock()

	if !was && enabled && c.reinit != nil {
		c.reinit()
	}
}

func (c *Controller) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetRatio clamps the requested ratio into [0.1, 10.0] and records an audit
// entry with the delta and a human-readable description. The next placed
// mirror order uses the new value; in-flight orders are not resized.
func (c *Controller) SetRatio(requested decimal.Decimal, by string, now time.Time) decimal.Decimal {
	clamped := requested
	if clamped.LessThan(minRatio) {
		clamped = minRatio
	}
	if clamped.GreaterThan(maxRatio) {
		clamped = maxRatio
	}

	c.mu.Lock()
	old := c.ratio
	c.ratio = clamped
	entry := AuditEntry{
		Old: old, New: clamped, By: by, At: now,
		DeltaPct:    deltaPct(old, clamped),
		Description: describeRatioChange(old, clamped),
	}
	c.audit = append(c.audit, entry)
	onAudit := c.onAudit
	c.mu.Unlock()

	if onAudit != nil {
		onAudit(entry)
	}

	return clamped
}

func (c *Controller) Ratio() decimal.Decimal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ratio
}

// AuditLog returns a copy of every recorded ratio change, oldest first.
func (c *Controller) AuditLog() []AuditEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]AuditEntry, len(c.audit))
	copy(out, c.audit)
	return out
}

func deltaPct(old, new_ decimal.Decimal) decimal.Decimal {
	if old.IsZero() {
		return decimal.Zero
	}
	return new_.Sub(old).Div(old).Mul(decimal.NewFromInt(100))
}

// describeRatioChange mirrors get_ratio_multiplier_description /
// analyze_ratio_multiplier_effect: a short human-readable note on what the
// new multiplier means for mirror sizing relative to the base ratio.
func describeRatioChange(old, new_ decimal.Decimal) string {
	switch {
	case new_.Equal(decimal.NewFromInt(1)):
		return "ratio multiplier reset to 1.0x (mirror sizes match base margin ratio exactly)"
	case new_.GreaterThan(old):
		return fmt.Sprintf("ratio multiplier increased %s -> %sx, mirror positions will be sized larger relative to base ratio", old.StringFixed(2), new_.StringFixed(2))
	case new_.LessThan(old):
		return fmt.Sprintf("ratio multiplier decreased %s -> %sx, mirror positions will be sized smaller relative to base ratio", old.StringFixed(2), new_.StringFixed(2))
	default:
		return fmt.Sprintf("ratio multiplier unchanged at %sx", new_.StringFixed(2))
	}
}
