// Package orderbook implements the depth-capped multi-instrument order book
// the engine evaluates triangles against.
package orderbook

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"triarb/pkg/types"
)

// level is one price/quantity pair held by a ladder.
type level struct {
	price decimal.Decimal
	qty   decimal.Decimal
}

// ladder is an ordered mapping price → quantity, bounded by depth. Bid
// ladders are sorted descending (best bid first); ask ladders ascending
// (best ask first). On insertion that would grow the ladder beyond depth,
// the farthest-from-top entry (the last one in sort order) is evicted.
//
// Depth is always small in practice (tens of levels), so a sorted slice
// with binary-search insertion outperforms a balanced tree — the
// small-depth specialization.
type ladder struct {
	side   types.BookSide
	depth  int
	levels []level
}

func newLadder(side types.BookSide, depth int) *ladder {
	return &ladder{side: side, depth: depth, levels: make([]level, 0, depth)}
}

// cmp orders two prices according to this ladder's side: negative if a
// sorts before b (a is better-or-equal), positive if a sorts after b.
func (l *ladder) cmp(a, b decimal.Decimal) int {
	c := a.Cmp(b)
	if l.side == types.SideBid {
		return -c
	}
	return c
}

// apply sets levels[price] = qty, inserting in sorted position if price is
// new, or updating in place if it already exists. Evicts the farthest
// level if the ladder would exceed depth.
func (l *ladder) apply(priceStr, qtyStr string) error {
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return fmt.Errorf("parse price %q: %w", priceStr, err)
	}
	qty, err := decimal.NewFromString(qtyStr)
	if err != nil {
		return fmt.Errorf("parse quantity %q: %w", qtyStr, err)
	}

	for i := range l.levels {
		if l.levels[i].price.Equal(price) {
			l.levels[i].qty = qty
			return nil
		}
	}

	idx := sort.Search(len(l.levels), func(i int) bool {
		return l.cmp(l.levels[i].price, price) > 0
	})
	l.levels = append(l.levels, level{})
	copy(l.levels[idx+1:], l.levels[idx:])
	l.levels[idx] = level{price: price, qty: qty}

	if len(l.levels) > l.depth {
		l.levels = l.levels[:l.depth]
	}
	return nil
}

// delete removes price if present. Missing price is silently tolerated —
// the venue emits deletes for levels beyond the locally held depth.
func (l *ladder) delete(priceStr string) error {
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return fmt.Errorf("parse price %q: %w", priceStr, err)
	}
	for i := range l.levels {
		if l.levels[i].price.Equal(price) {
			l.levels = append(l.levels[:i], l.levels[i+1:]...)
			return nil
		}
	}
	return nil
}

// top returns the best level, or ok=false if the ladder is empty.
func (l *ladder) top() (price, qty decimal.Decimal, ok bool) {
	if len(l.levels) == 0 {
		return decimal.Zero, decimal.Zero, false
	}
	return l.levels[0].price, l.levels[0].qty, true
}

// first returns up to n best levels, best-first.
func (l *ladder) first(n int) []level {
	if n > len(l.levels) {
		n = len(l.levels)
	}
	out := make([]level, n)
	copy(out, l.levels[:n])
	return out
}

func (l *ladder) clear() {
	l.levels = l.levels[:0]
}

func (l *ladder) len() int {
	return len(l.levels)
}
