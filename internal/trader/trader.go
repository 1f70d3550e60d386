// Package trader serializes trade cycles behind a mutual-exclusion lock,
// dispatches sized orders through a Session, and reconciles fills against
// expectation.
package trader

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"triarb/internal/coordination"
	"triarb/internal/metrics"
	"triarb/internal/triangle"
	"triarb/pkg/types"
)

// ValueDiffThresh is the fractional price deviation above which a fill is
// treated as mispriced rather than ordinary slippage.
const ValueDiffThresh = 0.001

// Session is the minimal send surface the trader needs from the exchange
// connection. The concrete session lives in internal/exchange.
type Session interface {
	SendOrder(ctx context.Context, req types.SendOrderRequest) error
}

// orderRecord is what the trader expects back for one leg of an in-flight
// cycle.
type orderRecord struct {
	order         types.Order
	expectedPrice decimal.Decimal
	cycleID       string
}

// Trader holds the state of at most one in-flight trade cycle at a time.
type Trader struct {
	session   Session
	evaluator triangle.Evaluator
	lock      *coordination.TradeLock
	reset     *coordination.ResetSignal
	minValue  decimal.Decimal
	oms       int
	accountID int
	dryRun    bool
	logger    *slog.Logger

	nextID      int64
	mu          sync.Mutex
	records     map[types.ClientOrderId]orderRecord
	outstanding map[types.ClientOrderId]struct{}
	permalock   atomic.Bool
}

// Config bundles the fixed parameters a Trader needs beyond its
// collaborators.
type Config struct {
	MinTradeValue decimal.Decimal
	OMSId         int
	AccountId     int
	// DryRun suppresses real order emission: Recheck still evaluates and
	// logs the cycle it would have traded, but emit neither calls
	// Session.SendOrder nor holds TradeLock across a fill that will never
	// arrive.
	DryRun bool
}

func New(session Session, evaluator triangle.Evaluator, lock *coordination.TradeLock, reset *coordination.ResetSignal, cfg Config, logger *slog.Logger) *Trader {
	return &Trader{
		session:     session,
		evaluator:   evaluator,
		lock:        lock,
		reset:       reset,
		minValue:    cfg.MinTradeValue,
		oms:         cfg.OMSId,
		accountID:   cfg.AccountId,
		dryRun:      cfg.DryRun,
		logger:      logger.With("component", "trader"),
		records:     make(map[types.ClientOrderId]orderRecord),
		outstanding: make(map[types.ClientOrderId]struct{}),
	}
}

// Permalocked reports whether a mispriced fill has suspended new trades
// pending a supervisor reset.
func (t *Trader) Permalocked() bool {
	return t.permalock.Load()
}

// ResetState clears permalock and any stale in-flight bookkeeping. Called
// by the Supervisor once a reset sequence has acquired TradeLock.
func (t *Trader) ResetState() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.permalock.Store(false)
	t.records = make(map[types.ClientOrderId]orderRecord)
	t.outstanding = make(map[types.ClientOrderId]struct{})
}

// Recheck evaluates both cycle directions and, if a profitable one clears
// the minimum trade value and no cycle is already in flight, emits its
// three orders under TradeLock. It is a no-op while permalocked or while
// TradeLock is already held by an outstanding cycle.
func (t *Trader) Recheck(ctx context.Context, cash decimal.Decimal) {
	if t.permalock.Load() {
		return
	}
	if !t.lock.TryAcquire() {
		return
	}

	orders, direction, ok := t.pickOrders(cash)
	if !ok {
		t.lock.Release()
		return
	}

	metrics.CyclesAttempted.WithLabelValues(direction).Inc()
	cycleID := uuid.NewString()
	t.logger.Info("opportunity detected", "direction", direction, "cash", cash.String(), "cycle_id", cycleID)
	t.emit(ctx, cycleID, orders)
}

func (t *Trader) pickOrders(cash decimal.Decimal) ([3]types.Order, string, bool) {
	if net, ok := t.evaluator.ForwardNet(cash); ok {
		metrics.LastNetProfit.WithLabelValues("forward").Set(f64(net))
		if net.GreaterThan(t.minValue) {
			metrics.CyclesProfitable.WithLabelValues("forward").Inc()
			if orders, ok := t.evaluator.ForwardOrders(cash); ok {
				return orders, "forward", true
			}
		}
	}
	if net, ok := t.evaluator.BackwardNet(cash); ok {
		metrics.LastNetProfit.WithLabelValues("backward").Set(f64(net))
		if net.GreaterThan(t.minValue) {
			metrics.CyclesProfitable.WithLabelValues("backward").Inc()
			if orders, ok := t.evaluator.BackwardOrders(cash); ok {
				return orders, "backward", true
			}
		}
	}
	return [3]types.Order{}, "", false
}

func f64(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}

// emit records each order and sends it, leaving TradeLock held until every
// leg's fill has been reconciled via OnStateChange. cycleID correlates the
// three legs in logs; it plays no role in exchange wire messages. In
// DryRun mode no order is sent and no fill will ever arrive to reconcile,
// so TradeLock is released immediately instead.
func (t *Trader) emit(ctx context.Context, cycleID string, orders [3]types.Order) {
	if t.dryRun {
		for _, o := range orders {
			t.logger.Info("dry-run: order suppressed",
				"cycle_id", cycleID,
				"instrument_id", o.InstrumentId,
				"side", o.Side,
				"quantity", o.Quantity,
				"expected_price", o.ExpectedPrice)
		}
		t.lock.Release()
		return
	}

	t.mu.Lock()
	for _, o := range orders {
		id := t.mintID()
		price, _ := decimal.NewFromString(o.ExpectedPrice)
		t.records[id] = orderRecord{order: o, expectedPrice: price, cycleID: cycleID}
		t.outstanding[id] = struct{}{}
	}
	ids := make([]types.ClientOrderId, 0, len(t.records))
	for id := range t.outstanding {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	for _, id := range ids {
		rec := t.records[id]
		tif := rec.order.TimeInForce
		if tif == 0 {
			tif = types.TimeInForceIOC
		}
		req := types.SendOrderRequest{
			InstrumentId:       rec.order.InstrumentId,
			OMSId:              t.oms,
			AccountId:          t.accountID,
			TimeInForce:        tif,
			ClientOrderId:      int64(id),
			OrderIdOCO:         0,
			UseDisplayQuantity: false,
			Side:               rec.order.Side,
			Quantity:           rec.order.Quantity,
			OrderType:          rec.order.OrderType,
			PegPriceType:       1,
			LimitPrice:         rec.order.ExpectedPrice,
		}
		if err := t.session.SendOrder(ctx, req); err != nil {
			t.logger.Error("send order failed", "client_order_id", id, "cycle_id", rec.cycleID, "error", err)
		}
	}
}

func (t *Trader) mintID() types.ClientOrderId {
	return types.ClientOrderId(atomic.AddInt64(&t.nextID, 1))
}

// OnFill reconciles a trade against its expected order. A full-size fill
// priced worse than ValueDiffThresh is treated as state desync: it sets
// ResetSignal and permalocks the trader against new cycles until the
// Supervisor completes a reset. A partial-size mispriced fill is logged
// but otherwise tolerated.
func (t *Trader) OnFill(event types.OrderTradeEvent) error {
	t.mu.Lock()
	rec, known := t.records[event.ClientOrderId]
	t.mu.Unlock()
	if !known {
		return fmt.Errorf("fill for unknown client order id %d", event.ClientOrderId)
	}

	actualPrice, err := decimal.NewFromString(event.Price)
	if err != nil {
		return fmt.Errorf("parse fill price: %w", err)
	}
	actualQty, err := decimal.NewFromString(event.Quantity)
	if err != nil {
		return fmt.Errorf("parse fill quantity: %w", err)
	}
	expectedQty, err := decimal.NewFromString(rec.order.Quantity)
	if err != nil {
		return fmt.Errorf("parse expected quantity: %w", err)
	}

	priceRatio := priceRatio(rec.order.Side, rec.expectedPrice, actualPrice)
	var quantityRatio decimal.Decimal
	if expectedQty.Sign() != 0 {
		quantityRatio = actualQty.Div(expectedQty)
	}

	threshold := decimal.NewFromFloat(1 + ValueDiffThresh)
	if priceRatio.GreaterThan(threshold) {
		if quantityRatio.GreaterThan(decimal.NewFromFloat(0.99)) {
			t.logger.Error("mispriced full-size fill, desyncing",
				"client_order_id", event.ClientOrderId,
				"cycle_id", rec.cycleID,
				"price_ratio", priceRatio.String(),
				"quantity_ratio", quantityRatio.String())
			metrics.SlippageAborts.Inc()
			t.permalock.Store(true)
			t.reset.Set()
			return nil
		}
		t.logger.Warn("partial slippage on fill",
			"client_order_id", event.ClientOrderId,
			"cycle_id", rec.cycleID,
			"price_ratio", priceRatio.String(),
			"quantity_ratio", quantityRatio.String())
	}

	return nil
}

// priceRatio returns how unfavorably a fill executed relative to
// expectation: >1 on a BUY means overpaid, >1 on a SELL means undersold.
func priceRatio(side types.Side, expected, actual decimal.Decimal) decimal.Decimal {
	if expected.Sign() == 0 {
		return decimal.Zero
	}
	if side == types.BUY {
		return actual.Div(expected)
	}
	return expected.Div(actual)
}

// OnStateChange removes a fully-executed leg from the outstanding set and
// releases TradeLock once every leg of the current cycle has cleared.
func (t *Trader) OnStateChange(event types.OrderStateEvent) {
	if event.OrderState != types.OrderStateFullyExecuted {
		if event.OrderState != types.OrderStateWorking {
			t.logger.Warn("order did not fully execute, leg left outstanding",
				"client_order_id", event.ClientOrderId,
				"order_state", event.OrderState)
		}
		return
	}

	t.mu.Lock()
	_, wasOutstanding := t.outstanding[event.ClientOrderId]
	delete(t.outstanding, event.ClientOrderId)
	empty := wasOutstanding && len(t.outstanding) == 0
	if empty {
		// Cycle complete: drop its records rather than letting them
		// accumulate across the process lifetime.
		t.records = make(map[types.ClientOrderId]orderRecord)
	}
	t.mu.Unlock()

	if empty {
		t.lock.Release()
	}
}
