// Package account tracks held positions reported by the exchange and
// detects drift between periodic snapshots.
package account

import (
	"sync"

	"github.com/shopspring/decimal"

	"triarb/pkg/types"
)

// Tracker holds the current per-instrument position map, rebuilt wholesale
// on every GetAccountPositions reply rather than patched incrementally.
type Tracker struct {
	mu        sync.RWMutex
	positions map[types.InstrumentId]decimal.Decimal
}

// New returns an empty Tracker.
func New() *Tracker {
	return &Tracker{positions: make(map[types.InstrumentId]decimal.Decimal)}
}

// ProcessPositions rebuilds the position map from a GetAccountPositions
// reply. Entries with zero or negative amount are omitted rather than
// stored as zero — a closed-out instrument simply has no entry.
func (t *Tracker) ProcessPositions(entries []types.AccountPositionEntry) error {
	next := make(map[types.InstrumentId]decimal.Decimal, len(entries))
	for _, e := range entries {
		amt, err := decimal.NewFromString(e.Amount)
		if err != nil {
			return err
		}
		if amt.Sign() > 0 {
			next[e.InstrumentId] = amt
		}
	}

	t.mu.Lock()
	t.positions = next
	t.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current position map.
func (t *Tracker) Snapshot() map[types.InstrumentId]decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[types.InstrumentId]decimal.Decimal, len(t.positions))
	for id, amt := range t.positions {
		out[id] = amt
	}
	return out
}

// Change records one instrument's held amount before and after.
type Change struct {
	InstrumentId types.InstrumentId
	Before       decimal.Decimal // zero if newly appeared
	After        decimal.Decimal // zero if removed
}

// Diff compares the current snapshot against a previous one and returns the
// set of instruments whose held amount changed, added, or was removed.
// Used by the asset-diff loop to log drift between quiescent snapshots.
func Diff(before, after map[types.InstrumentId]decimal.Decimal) []Change {
	var changes []Change

	for id, a := range after {
		b, existed := before[id]
		if !existed {
			changes = append(changes, Change{InstrumentId: id, Before: decimal.Zero, After: a})
			continue
		}
		if !b.Equal(a) {
			changes = append(changes, Change{InstrumentId: id, Before: b, After: a})
		}
	}
	for id, b := range before {
		if _, stillHeld := after[id]; !stillHeld {
			changes = append(changes, Change{InstrumentId: id, Before: b, After: decimal.Zero})
		}
	}
	return changes
}
