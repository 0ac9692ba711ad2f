// Package diff implements the Snapshot & Diff Engine: each tick computes
// which source trigger orders appeared and which disappeared since the
// previous tick.
package diff

import "github.com/web3guy0/polybot/types"

// Engine retains the previous tick's ID set and the full payload snapshot
// needed by the Fill-vs-Cancel Analyzer to inspect vanished orders.
type Engine struct {
	previousIDs map[string]bool
	previous    map[string]types.TriggerOrder
}

func New() *Engine {
	return &Engine{previousIDs: map[string]bool{}, previous: map[string]types.TriggerOrder{}}
}

// Result is one tick's diff output.
type Result struct {
	Appeared    []types.TriggerOrder
	Disappeared []types.TriggerOrder // carries the last known payload, for analysis
}

// Tick computes disappeared/appeared against the previous call's snapshot
// and retains current as the new baseline.
func (e *Engine) Tick(current []types.TriggerOrder) Result {
	currentByID := make(map[string]types.TriggerOrder, len(current))
	currentIDs := make(map[string]bool, len(current))
	for _, o := range current {
		currentByID[o.OrderID] = o
		currentIDs[o.OrderID] = true
	}

	var result Result
	for id := range e.previousIDs {
		if !currentIDs[id] {
			result.Disappeared = append(result.Disappeared, e.previous[id])
		}
	}
	for id, o := range currentByID {
		if !e.previousIDs[id] {
			result.Appeared = append(result.Appeared, o)
		}
	}

	e.previousIDs = currentIDs
	e.previous = currentByID
	return result
}
