// Package triangle computes triangular-arbitrage profitability and order
// sizing for a fixed three-instrument currency cycle.
package triangle

import (
	"fmt"

	"github.com/shopspring/decimal"

	"triarb/internal/orderbook"
	"triarb/pkg/types"
)

// Evaluator exposes the six operations a trade cycle's profitability check
// and order sizing are built from. Two concrete variants implement it,
// differing only in which legs are bought vs sold and how the fee
// propagates between legs — see bssTriangle and bbsTriangle.
type Evaluator interface {
	// Forward returns the gross fee-adjusted return multiplier for the
	// forward traversal of the cycle (>1 is profitable before throughput
	// constraints). ok is false if either side needed is empty.
	Forward() (multiplier decimal.Decimal, ok bool)
	Backward() (multiplier decimal.Decimal, ok bool)

	// ForwardNet returns the expected net cash profit: (Forward()-1) *
	// throughput(cash). ok is false if there is no opportunity (empty book
	// or non-positive throughput).
	ForwardNet(cash decimal.Decimal) (net decimal.Decimal, ok bool)
	BackwardNet(cash decimal.Decimal) (net decimal.Decimal, ok bool)

	// ForwardOrders returns the three-leg order intent sized to the
	// bottleneck throughput, or ok=false if there is no opportunity or any
	// leg rounds below its minimum tradable quantity.
	ForwardOrders(cash decimal.Decimal) (orders [3]types.Order, ok bool)
	BackwardOrders(cash decimal.Decimal) (orders [3]types.Order, ok bool)
}

// Precision maps an instrument to the number of decimal places its order
// quantity must be rounded to before emission. Instruments absent from the
// map fall back to DefaultQuantityDecimals.
type Precision map[types.InstrumentId]int32

// DefaultQuantityDecimals is used when Precision has no entry for an
// instrument — 6 decimals, matching the venue's default for BTC-denominated
// pairs (spec.md §6).
const DefaultQuantityDecimals = 6

func (p Precision) decimalsFor(id types.InstrumentId) int32 {
	if d, ok := p[id]; ok {
		return d
	}
	return DefaultQuantityDecimals
}

// round truncates qty to the instrument's precision. Truncation (not
// round-half-up) ensures a sized order never exceeds the throughput that
// justified it.
func (p Precision) round(qty decimal.Decimal, id types.InstrumentId) decimal.Decimal {
	return qty.Truncate(p.decimalsFor(id))
}

// Variant selects which leg-direction convention a cycle's forward
// traversal uses.
type Variant string

const (
	VariantBSS Variant = "bss" // buy-sell-sell (default)
	VariantBBS Variant = "bbs" // buy-buy-sell
)

// base holds the state shared by both variants: the book to read top-of-book
// from, the three instrument ids forming the cycle, and the fee-derived
// constants.
type base struct {
	book *orderbook.MultiBook
	i1   types.InstrumentId
	i2   types.InstrumentId
	i3   types.InstrumentId

	s  decimal.Decimal // 1 - fee, single-leg multiplier
	s2 decimal.Decimal // s^2
	s3 decimal.Decimal // s^3, round-trip fee multiplier

	prec Precision
}

func newBase(book *orderbook.MultiBook, ids [3]types.InstrumentId, fee decimal.Decimal, prec Precision) base {
	s := decimal.NewFromInt(1).Sub(fee)
	return base{
		book: book,
		i1:   ids[0],
		i2:   ids[1],
		i3:   ids[2],
		s:    s,
		s2:   s.Mul(s),
		s3:   s.Mul(s).Mul(s),
		prec: prec,
	}
}

// New constructs an Evaluator for the given cycle and fee. Variant selects
// the leg-direction convention; an empty string defaults to VariantBSS.
func New(variant Variant, book *orderbook.MultiBook, ids [3]types.InstrumentId, fee decimal.Decimal, prec Precision) (Evaluator, error) {
	b := newBase(book, ids, fee, prec)
	switch variant {
	case "", VariantBSS:
		return &bssTriangle{base: b}, nil
	case VariantBBS:
		return &bbsTriangle{base: b}, nil
	default:
		return nil, fmt.Errorf("unknown triangle variant %q", variant)
	}
}

// topAsk/topBid are small helpers shared by both variants' throughput math.

func (b *base) topAsk(id types.InstrumentId) (price, qty decimal.Decimal, ok bool) {
	book, tracked := b.book.Book(id)
	if !tracked {
		return decimal.Zero, decimal.Zero, false
	}
	return book.TopAsk()
}

func (b *base) topBid(id types.InstrumentId) (price, qty decimal.Decimal, ok bool) {
	book, tracked := b.book.Book(id)
	if !tracked {
		return decimal.Zero, decimal.Zero, false
	}
	return book.TopBid()
}

// bottleneck returns the minimum of cash and the three leg throughputs,
// or ok=false if the result is non-positive (no opportunity).
func bottleneck(cash decimal.Decimal, legs ...decimal.Decimal) (decimal.Decimal, bool) {
	best := cash
	for _, t := range legs {
		if t.LessThan(best) {
			best = t
		}
	}
	if best.Sign() <= 0 {
		return decimal.Zero, false
	}
	return best, true
}
