package account

import (
	"testing"

	"github.com/shopspring/decimal"

	"triarb/pkg/types"
)

func TestProcessPositionsOmitsNonPositive(t *testing.T) {
	t.Parallel()
	tr := New()

	err := tr.ProcessPositions([]types.AccountPositionEntry{
		{InstrumentId: 1, Amount: "1.5"},
		{InstrumentId: 2, Amount: "0"},
		{InstrumentId: 3, Amount: "-2"},
	})
	if err != nil {
		t.Fatalf("ProcessPositions: %v", err)
	}

	snap := tr.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot = %v, want exactly instrument 1", snap)
	}
	if !snap[1].Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("positions[1] = %v, want 1.5", snap[1])
	}
}

func TestProcessPositionsRebuildsWholesale(t *testing.T) {
	t.Parallel()
	tr := New()

	must(t, tr.ProcessPositions([]types.AccountPositionEntry{{InstrumentId: 1, Amount: "5"}}))
	must(t, tr.ProcessPositions([]types.AccountPositionEntry{{InstrumentId: 2, Amount: "3"}}))

	snap := tr.Snapshot()
	if _, ok := snap[1]; ok {
		t.Error("instrument 1 should be gone after the second snapshot replaced it")
	}
	if !snap[2].Equal(decimal.RequireFromString("3")) {
		t.Errorf("positions[2] = %v, want 3", snap[2])
	}
}

func TestDiffDetectsAddedChangedRemoved(t *testing.T) {
	t.Parallel()
	before := map[types.InstrumentId]decimal.Decimal{
		1: decimal.RequireFromString("10"),
		2: decimal.RequireFromString("5"),
	}
	after := map[types.InstrumentId]decimal.Decimal{
		1: decimal.RequireFromString("10"), // unchanged
		2: decimal.RequireFromString("7"),  // changed
		3: decimal.RequireFromString("1"),  // added
	}

	changes := Diff(before, after)
	byId := map[types.InstrumentId]Change{}
	for _, c := range changes {
		byId[c.InstrumentId] = c
	}

	if _, ok := byId[1]; ok {
		t.Error("instrument 1 unchanged, should not appear in diff")
	}
	if c, ok := byId[2]; !ok || !c.After.Equal(decimal.RequireFromString("7")) {
		t.Errorf("instrument 2 diff = %+v, want After=7", c)
	}
	if c, ok := byId[3]; !ok || !c.Before.IsZero() {
		t.Errorf("instrument 3 diff = %+v, want Before=0 (newly appeared)", c)
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
