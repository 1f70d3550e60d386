package orderbook

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"triarb/pkg/types"
)

// OrderBook pairs a bid and ask ladder for one instrument, sharing one
// depth cap. Crossed books (best bid >= best ask) are tolerated — the
// book layer neither asserts nor relies on the soft non-crossed invariant;
// a crossed book simply yields an arbitrage signal the evaluator may or may
// not accept.
type OrderBook struct {
	mu  sync.RWMutex
	bid *ladder
	ask *ladder
}

// NewOrderBook creates an empty book with the given depth cap on both sides.
func NewOrderBook(depth int) *OrderBook {
	return &OrderBook{
		bid: newLadder(types.SideBid, depth),
		ask: newLadder(types.SideAsk, depth),
	}
}

// Apply mutates the appropriate side per the update's action. NEW/UPDATE
// assign side[price] = quantity; DELETE removes price if present. There is
// no failure mode for a missing DELETE target.
func (b *OrderBook) Apply(u types.L2Update) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	l := b.bid
	if u.Side == types.SideAsk {
		l = b.ask
	}

	switch u.Action {
	case types.ActionNew, types.ActionUpdate:
		return l.apply(u.Price, u.Quantity)
	case types.ActionDelete:
		return l.delete(u.Price)
	default:
		return fmt.Errorf("unknown action %v", u.Action)
	}
}

// TopBid returns the best bid level, or ok=false if the bid side is empty.
func (b *OrderBook) TopBid() (price, qty decimal.Decimal, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bid.top()
}

// TopAsk returns the best ask level, or ok=false if the ask side is empty.
func (b *OrderBook) TopAsk() (price, qty decimal.Decimal, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ask.top()
}

// Level is a read-only view of one ladder level, exported for callers
// that need more than top-of-book (e.g. diagnostics printing).
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
}

// Bids returns up to n best bid levels, best-first.
func (b *OrderBook) Bids(n int) []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return toLevels(b.bid.first(n))
}

// Asks returns up to n best ask levels, best-first.
func (b *OrderBook) Asks(n int) []Level {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return toLevels(b.ask.first(n))
}

func toLevels(ls []level) []Level {
	out := make([]Level, len(ls))
	for i, l := range ls {
		out[i] = Level{Price: l.price, Quantity: l.qty}
	}
	return out
}

// Clear empties both sides.
func (b *OrderBook) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bid.clear()
	b.ask.clear()
}

// Depths returns the current occupied depth of the bid and ask sides, for
// invariant checks and diagnostics.
func (b *OrderBook) Depths() (bidLen, askLen int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.bid.len(), b.ask.len()
}
