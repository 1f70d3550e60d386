// Package supervisor runs the engine's tasks under structured concurrency
// and restarts them wholesale whenever any task finishes or ResetSignal
// fires: log the exception, acquire TradeLock, cancel the remaining tasks,
// clear the book, clear permalock and the signal, then restart.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"triarb/internal/account"
	"triarb/internal/coordination"
	"triarb/internal/metrics"
	"triarb/internal/orderbook"
	"triarb/internal/router"
	"triarb/internal/trader"
	"triarb/pkg/types"
)

// errResetRequested is returned internally by the reset-watcher task to
// unwind the current generation's errgroup; it is never surfaced to Run's
// caller as a failure.
var errResetRequested = errors.New("reset requested")

// Config bundles the intervals the periodic tasks run at. A zero interval
// disables the corresponding task (book printing is optional).
type Config struct {
	AutoResetInterval time.Duration
	BookPrintInterval time.Duration
	AssetDiffInterval time.Duration
	CashAvailable     decimal.Decimal
}

// Supervisor owns task lifecycle for one engine generation.
type Supervisor struct {
	book    *orderbook.MultiBook
	account *account.Tracker
	trader  *trader.Trader
	router  *router.Router
	lock    *coordination.TradeLock
	reset   *coordination.ResetSignal
	frames  <-chan types.Frame
	cfg     Config
	logger  *slog.Logger
}

func New(book *orderbook.MultiBook, acct *account.Tracker, tr *trader.Trader, r *router.Router, lock *coordination.TradeLock, reset *coordination.ResetSignal, frames <-chan types.Frame, cfg Config, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		book:    book,
		account: acct,
		trader:  tr,
		router:  r,
		lock:    lock,
		reset:   reset,
		frames:  frames,
		cfg:     cfg,
		logger:  logger.With("component", "supervisor"),
	}
}

// Run drives generations until ctx is cancelled. Each generation ends when
// any task returns (including the reset-watcher observing ResetSignal), at
// which point Run performs the reset sequence and starts a fresh
// generation — unless the task returned router.ErrSubscriptionRefused, a
// fatal condition no resync can fix, in which case Run stops and returns
// the error to its caller.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return nil
		}

		err := s.runGeneration(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, router.ErrSubscriptionRefused) {
			s.logger.Error("fatal condition, shutting down", "error", err)
			return err
		}
		if err != nil && !errors.Is(err, errResetRequested) {
			s.logger.Error("task exited, resetting", "error", err)
		} else {
			s.logger.Info("reset signal observed, resetting")
		}

		s.performReset()
	}
}

func (s *Supervisor) performReset() {
	metrics.ResetsTriggered.Inc()
	s.lock.Acquire()
	s.trader.ResetState()
	s.book.Clear()
	s.reset.Clear()
	s.lock.Release()
}

func (s *Supervisor) runGeneration(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error { return s.botLoop(gctx) })
	group.Go(func() error { return s.watchReset(gctx) })

	if s.cfg.AutoResetInterval > 0 {
		group.Go(func() error { return s.autoResetTimer(gctx) })
	}
	if s.cfg.BookPrintInterval > 0 {
		group.Go(func() error { return s.bookPrinter(gctx) })
	}
	if s.cfg.AssetDiffInterval > 0 {
		group.Go(func() error { return s.assetDiffLoop(gctx) })
	}

	return group.Wait()
}

// botLoop consumes inbound frames and routes them until ctx is cancelled.
func (s *Supervisor) botLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-s.frames:
			if !ok {
				return errors.New("frame channel closed")
			}
			if err := s.router.Route(ctx, frame, func(ctx context.Context) {
				s.trader.Recheck(ctx, s.cfg.CashAvailable)
			}); err != nil {
				return err
			}
		}
	}
}

// watchReset returns errResetRequested as soon as ResetSignal fires,
// cancelling every other task in the generation's errgroup.
func (s *Supervisor) watchReset(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.reset.Wait():
		return errResetRequested
	}
}

// autoResetTimer fires ResetSignal on a fixed interval regardless of any
// observed desync, bounding how long the engine runs on a single book
// state between forced resyncs.
func (s *Supervisor) autoResetTimer(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.AutoResetInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.logger.Info("auto-reset interval elapsed")
			s.reset.Set()
		}
	}
}

// bookPrinter periodically logs top-of-book for every tracked instrument,
// holding TradeLock while it reads so the snapshot is consistent.
func (s *Supervisor) bookPrinter(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.BookPrintInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.lock.Acquire()
			for _, id := range s.book.InstrumentIds() {
				b, ok := s.book.Book(id)
				if !ok {
					continue
				}
				bidPrice, bidQty, bidOK := b.TopBid()
				askPrice, askQty, askOK := b.TopAsk()
				s.logger.Info("book snapshot",
					"instrument_id", id,
					"bid_ok", bidOK, "bid_price", bidPrice.String(), "bid_qty", bidQty.String(),
					"ask_ok", askOK, "ask_price", askPrice.String(), "ask_qty", askQty.String(),
				)
			}
			s.lock.Release()
		}
	}
}

// assetDiffLoop snapshots positions every interval while holding TradeLock
// (so the comparison is against a quiescent state) and logs any change
// since the previous snapshot.
func (s *Supervisor) assetDiffLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.AssetDiffInterval)
	defer ticker.Stop()

	prev := map[types.InstrumentId]decimal.Decimal{}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.lock.Acquire()
			curr := s.account.Snapshot()
			s.lock.Release()

			for _, change := range account.Diff(prev, curr) {
				s.logger.Info("position changed",
					"instrument_id", change.InstrumentId,
					"before", change.Before.String(),
					"after", change.After.String(),
				)
			}
			for id, amt := range curr {
				v, _ := amt.Float64()
				metrics.AccountPositionValue.WithLabelValues(idLabel(id)).Set(v)
			}
			prev = curr
		}
	}
}

func idLabel(id types.InstrumentId) string {
	return strconv.Itoa(int(id))
}
