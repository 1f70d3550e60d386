package orderbook

import (
	"fmt"

	"triarb/pkg/types"
)

// MultiBook holds one OrderBook per instrument over a fixed set of
// instrument ids supplied at construction. It is constructed once; the set
// of instruments never changes afterward, so the map itself needs no lock —
// only the per-instrument OrderBook guards its own mutation.
type MultiBook struct {
	books map[types.InstrumentId]*OrderBook
}

// NewMultiBook creates one empty OrderBook per id, all sharing depth.
func NewMultiBook(ids []types.InstrumentId, depth int) *MultiBook {
	books := make(map[types.InstrumentId]*OrderBook, len(ids))
	for _, id := range ids {
		books[id] = NewOrderBook(depth)
	}
	return &MultiBook{books: books}
}

// Apply routes an update to the book for its instrument.
func (m *MultiBook) Apply(u types.L2Update) error {
	book, ok := m.books[u.InstrumentId]
	if !ok {
		return fmt.Errorf("unknown instrument %d", u.InstrumentId)
	}
	return book.Apply(u)
}

// Book returns the OrderBook for an instrument id, if tracked.
func (m *MultiBook) Book(id types.InstrumentId) (*OrderBook, bool) {
	b, ok := m.books[id]
	return b, ok
}

// Clear empties every tracked instrument's book without reallocating the map.
func (m *MultiBook) Clear() {
	for _, b := range m.books {
		b.Clear()
	}
}

// InstrumentIds returns the fixed set of tracked instruments.
func (m *MultiBook) InstrumentIds() []types.InstrumentId {
	ids := make([]types.InstrumentId, 0, len(m.books))
	for id := range m.books {
		ids = append(ids, id)
	}
	return ids
}
