package orderbook

import (
	"testing"

	"github.com/shopspring/decimal"

	"triarb/pkg/types"
)

func newUpdate(side types.BookSide, action types.Action, price, qty string) types.L2Update {
	return types.L2Update{Side: side, Action: action, Price: price, Quantity: qty}
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestApplyNewAndTopOfBook(t *testing.T) {
	t.Parallel()
	b := NewOrderBook(10)

	must(t, b.Apply(newUpdate(types.SideBid, types.ActionNew, "100.00", "1.5")))
	must(t, b.Apply(newUpdate(types.SideBid, types.ActionNew, "101.00", "2.0")))
	must(t, b.Apply(newUpdate(types.SideAsk, types.ActionNew, "102.00", "3.0")))

	price, qty, ok := b.TopBid()
	if !ok || !price.Equal(dec("101.00")) || !qty.Equal(dec("2.0")) {
		t.Fatalf("TopBid = %v %v %v, want 101.00 2.0 true", price, qty, ok)
	}

	aprice, aqty, ok := b.TopAsk()
	if !ok || !aprice.Equal(dec("102.00")) || !aqty.Equal(dec("3.0")) {
		t.Fatalf("TopAsk = %v %v %v, want 102.00 3.0 true", aprice, aqty, ok)
	}
}

func TestUpdateReplacesQuantity(t *testing.T) {
	t.Parallel()
	b := NewOrderBook(10)

	must(t, b.Apply(newUpdate(types.SideBid, types.ActionNew, "100.00", "1.5")))
	must(t, b.Apply(newUpdate(types.SideBid, types.ActionUpdate, "100.00", "9.0")))

	_, qty, ok := b.TopBid()
	if !ok || !qty.Equal(dec("9.0")) {
		t.Fatalf("qty after update = %v, want 9.0", qty)
	}
	if bidLen, _ := b.Depths(); bidLen != 1 {
		t.Fatalf("bid depth = %d, want 1 (update must not duplicate level)", bidLen)
	}
}

func TestDeleteRemovesPrice(t *testing.T) {
	t.Parallel()
	b := NewOrderBook(10)

	must(t, b.Apply(newUpdate(types.SideBid, types.ActionNew, "100.00", "1.5")))
	must(t, b.Apply(newUpdate(types.SideBid, types.ActionDelete, "100.00", "")))

	_, _, ok := b.TopBid()
	if ok {
		t.Fatal("expected empty bid side after delete")
	}
}

func TestDeleteMissingPriceIsTolerated(t *testing.T) {
	t.Parallel()
	b := NewOrderBook(10)

	must(t, b.Apply(newUpdate(types.SideBid, types.ActionNew, "100.00", "1.5")))
	if err := b.Apply(newUpdate(types.SideBid, types.ActionDelete, "999.00", "")); err != nil {
		t.Fatalf("delete of absent price should not error, got %v", err)
	}

	_, qty, ok := b.TopBid()
	if !ok || !qty.Equal(dec("1.5")) {
		t.Fatal("book should be unchanged after deleting an absent price")
	}
}

func TestDepthCapEvictsFarthestFromTop(t *testing.T) {
	t.Parallel()
	b := NewOrderBook(2)

	must(t, b.Apply(newUpdate(types.SideBid, types.ActionNew, "100.00", "1")))
	must(t, b.Apply(newUpdate(types.SideBid, types.ActionNew, "99.00", "1")))
	must(t, b.Apply(newUpdate(types.SideBid, types.ActionNew, "101.00", "1")))

	bidLen, _ := b.Depths()
	if bidLen != 2 {
		t.Fatalf("bid depth = %d, want 2", bidLen)
	}

	levels := b.Bids(10)
	if len(levels) != 2 || !levels[0].Price.Equal(dec("101.00")) || !levels[1].Price.Equal(dec("100.00")) {
		t.Fatalf("levels = %+v, want [101.00 100.00] (99.00 evicted as farthest-from-top)", levels)
	}
}

func TestClearEmptiesBothSides(t *testing.T) {
	t.Parallel()
	b := NewOrderBook(10)
	must(t, b.Apply(newUpdate(types.SideBid, types.ActionNew, "100.00", "1")))
	must(t, b.Apply(newUpdate(types.SideAsk, types.ActionNew, "101.00", "1")))

	b.Clear()

	if _, _, ok := b.TopBid(); ok {
		t.Error("expected empty bid after clear")
	}
	if _, _, ok := b.TopAsk(); ok {
		t.Error("expected empty ask after clear")
	}
}

func TestReapplyingSnapshotIsIdempotent(t *testing.T) {
	t.Parallel()
	b := NewOrderBook(10)
	updates := []types.L2Update{
		newUpdate(types.SideBid, types.ActionNew, "100.00", "1.5"),
		newUpdate(types.SideBid, types.ActionNew, "99.50", "2.5"),
		newUpdate(types.SideAsk, types.ActionNew, "101.00", "3.0"),
	}
	for _, u := range updates {
		must(t, b.Apply(u))
	}
	for _, u := range updates {
		must(t, b.Apply(u))
	}

	bidLen, askLen := b.Depths()
	if bidLen != 2 || askLen != 1 {
		t.Fatalf("depths after reapply = %d,%d, want 2,1", bidLen, askLen)
	}
}

func TestMultiBookClearPreservesInstruments(t *testing.T) {
	t.Parallel()
	ids := []types.InstrumentId{1, 82, 80}
	mb := NewMultiBook(ids, 10)

	must(t, mb.Apply(types.L2Update{InstrumentId: 1, Side: types.SideBid, Action: types.ActionNew, Price: "10", Quantity: "1"}))
	mb.Clear()

	for _, id := range ids {
		book, ok := mb.Book(id)
		if !ok {
			t.Fatalf("instrument %d missing after clear", id)
		}
		if _, _, ok := book.TopBid(); ok {
			t.Fatalf("instrument %d bid not cleared", id)
		}
	}
}

func TestMultiBookRejectsUnknownInstrument(t *testing.T) {
	t.Parallel()
	mb := NewMultiBook([]types.InstrumentId{1}, 10)
	err := mb.Apply(types.L2Update{InstrumentId: 999, Side: types.SideBid, Action: types.ActionNew, Price: "1", Quantity: "1"})
	if err == nil {
		t.Fatal("expected error for unknown instrument")
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
