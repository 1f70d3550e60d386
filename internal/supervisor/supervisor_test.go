package supervisor

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"triarb/internal/account"
	"triarb/internal/coordination"
	"triarb/internal/orderbook"
	"triarb/internal/router"
	"triarb/internal/trader"
	"triarb/pkg/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type noopSession struct{}

func (noopSession) SendOrder(context.Context, types.SendOrderRequest) error { return nil }

type noopEvaluator struct{}

func (noopEvaluator) Forward() (decimal.Decimal, bool)  { return decimal.Zero, false }
func (noopEvaluator) Backward() (decimal.Decimal, bool) { return decimal.Zero, false }
func (noopEvaluator) ForwardNet(decimal.Decimal) (decimal.Decimal, bool) {
	return decimal.Zero, false
}
func (noopEvaluator) BackwardNet(decimal.Decimal) (decimal.Decimal, bool) {
	return decimal.Zero, false
}
func (noopEvaluator) ForwardOrders(decimal.Decimal) ([3]types.Order, bool) {
	return [3]types.Order{}, false
}
func (noopEvaluator) BackwardOrders(decimal.Decimal) ([3]types.Order, bool) {
	return [3]types.Order{}, false
}

func newTestSupervisor(t *testing.T, frames <-chan types.Frame, cfg Config) (*Supervisor, *orderbook.MultiBook, *coordination.ResetSignal) {
	t.Helper()
	book := orderbook.NewMultiBook([]types.InstrumentId{1, 82, 80}, 10)
	acct := account.New()
	lock := coordination.NewTradeLock()
	reset := coordination.NewResetSignal()
	tr := trader.New(noopSession{}, noopEvaluator{}, lock, reset, trader.Config{MinTradeValue: decimal.NewFromInt(1)}, testLogger())
	r := router.New(book, acct, tr, reset, testLogger())
	s := New(book, acct, tr, r, lock, reset, frames, cfg, testLogger())
	return s, book, reset
}

func TestRunExitsCleanlyOnContextCancel(t *testing.T) {
	t.Parallel()
	frames := make(chan types.Frame)
	s, _, _ := newTestSupervisor(t, frames, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v, want nil on context cancel", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not exit after context cancel")
	}
}

func TestRunPerformsResetWhenSignalFires(t *testing.T) {
	t.Parallel()
	frames := make(chan types.Frame)
	s, book, reset := newTestSupervisor(t, frames, Config{})

	must(t, book.Apply(types.L2Update{InstrumentId: 1, Side: types.SideBid, Action: types.ActionNew, Price: "100", Quantity: "1"}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	reset.Set()

	// Give the reset sequence time to run: book should be cleared and the
	// signal cleared, after which a new generation starts.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		b, _ := book.Book(1)
		if _, _, ok := b.TopBid(); !ok && !reset.Fired() {
			cancel()
			<-done
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
	t.Fatal("expected book to clear and reset signal to clear within deadline")
}

func TestRunRoutesFramesThroughBotLoop(t *testing.T) {
	t.Parallel()
	frames := make(chan types.Frame, 1)
	s, book, _ := newTestSupervisor(t, frames, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	frames <- types.Frame{
		Op:      "Level2UpdateEvent",
		Payload: `[{"InstrumentId":1,"Action":0,"Side":0,"Price":"55","Quantity":"2"}]`,
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		b, _ := book.Book(1)
		if price, qty, ok := b.TopBid(); ok && price.Equal(decimal.RequireFromString("55")) && qty.Equal(decimal.RequireFromString("2")) {
			cancel()
			<-done
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done
	t.Fatal("expected frame to be routed into the book within deadline")
}

func TestRunStopsOnFatalSubscriptionRefusal(t *testing.T) {
	t.Parallel()
	frames := make(chan types.Frame, 1)
	s, _, reset := newTestSupervisor(t, frames, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	frames <- types.Frame{Op: "SubscribeAccountEvents", Payload: `{"Subscribed":false}`}

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected Run to return the fatal subscription-refusal error")
		}
		if reset.Fired() {
			t.Error("a fatal condition should not leave ResetSignal set, Run already stopped")
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after a fatal subscription refusal")
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
