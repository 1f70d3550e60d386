package triangle

import (
	"github.com/shopspring/decimal"

	"triarb/pkg/types"
)

// bssTriangle implements Evaluator for the "buy-sell-sell" cycle
// convention: forward traversal is BUY I1 (at ask), SELL I2 (at bid),
// SELL I3 (at bid) — e.g. buy BTC with CAD, sell BTC for USDT, sell USDT
// for CAD. This is the venue's primary cycle shape.
type bssTriangle struct {
	base
}

// Forward returns (I2.bid * I3.bid / I1.ask) * s^3.
func (t *bssTriangle) Forward() (decimal.Decimal, bool) {
	aa, _, aok := t.topAsk(t.i1)
	bb, _, bok := t.topBid(t.i2)
	cb, _, cok := t.topBid(t.i3)
	if !aok || !bok || !cok || aa.Sign() <= 0 {
		return decimal.Zero, false
	}
	return bb.Mul(cb).Div(aa).Mul(t.s3), true
}

// Backward returns (I1.bid / I3.ask / I2.ask) * s^3.
func (t *bssTriangle) Backward() (decimal.Decimal, bool) {
	usda, _, uok := t.topAsk(t.i3)
	btcua, _, bok := t.topAsk(t.i2)
	btccb, _, cok := t.topBid(t.i1)
	if !uok || !bok || !cok || usda.Sign() <= 0 || btcua.Sign() <= 0 {
		return decimal.Zero, false
	}
	return btccb.Div(usda).Div(btcua).Mul(t.s3), true
}

// forwardThroughput returns the bottleneck cash throughput for the forward
// cycle: min(cash, T1, T2, T3) where
//
//	T1 = Aq * Aa                  (I1 ask liquidity, in cash)
//	T2 = Bq * Aa / s              (I2 bid liquidity propagated through one fee)
//	T3 = Cq * Aa / (Bb * s^2)     (I3 bid liquidity propagated through two fees)
func (t *bssTriangle) forwardThroughput(cash decimal.Decimal) (best, aa, bb, cb decimal.Decimal, ok bool) {
	aa, aq, aok := t.topAsk(t.i1)
	bb, bq, bok := t.topBid(t.i2)
	cb, cq, cok := t.topBid(t.i3)
	if !aok || !bok || !cok || aa.Sign() <= 0 || bb.Sign() <= 0 {
		return decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, false
	}

	t1 := aq.Mul(aa)
	t2 := bq.Mul(aa).Div(t.s)
	t3 := cq.Mul(aa).Div(bb.Mul(t.s2))

	best, ok = bottleneck(cash, t1, t2, t3)
	return best, aa, bb, cb, ok
}

func (t *bssTriangle) ForwardNet(cash decimal.Decimal) (decimal.Decimal, bool) {
	throughput, _, _, _, ok := t.forwardThroughput(cash)
	if !ok {
		return decimal.Zero, false
	}
	mult, ok := t.Forward()
	if !ok {
		return decimal.Zero, false
	}
	return mult.Sub(decimal.NewFromInt(1)).Mul(throughput), true
}

// ForwardOrders sizes: O1.qty = T/Aa (BUY I1); O2.qty = O1.qty*s (SELL I2);
// O3.qty = O2.qty*Bb*s (SELL I3).
func (t *bssTriangle) ForwardOrders(cash decimal.Decimal) ([3]types.Order, bool) {
	throughput, aa, bb, cb, ok := t.forwardThroughput(cash)
	if !ok {
		return [3]types.Order{}, false
	}

	o1Qty := t.prec.round(throughput.Div(aa), t.i1)
	o2Qty := t.prec.round(o1Qty.Mul(t.s), t.i2)
	o3Qty := t.prec.round(o2Qty.Mul(bb).Mul(t.s), t.i3)

	if o1Qty.Sign() <= 0 || o2Qty.Sign() <= 0 || o3Qty.Sign() <= 0 {
		return [3]types.Order{}, false
	}

	return [3]types.Order{
		{InstrumentId: t.i1, Side: types.BUY, Quantity: o1Qty.String(), OrderType: types.OrderTypeMarket, ExpectedPrice: aa.String()},
		{InstrumentId: t.i2, Side: types.SELL, Quantity: o2Qty.String(), OrderType: types.OrderTypeMarket, ExpectedPrice: bb.String()},
		{InstrumentId: t.i3, Side: types.SELL, Quantity: o3Qty.String(), OrderType: types.OrderTypeMarket, ExpectedPrice: cb.String()},
	}, true
}

// backwardThroughput mirrors forwardThroughput for the reverse traversal:
// leg1=I3 ask, leg2=I2 ask, leg3=I1 bid.
//
//	T1 = usdq * usda
//	T2 = btcuq * btcua * usda / s
//	T3 = btccq * usda * btcua / s^2
func (t *bssTriangle) backwardThroughput(cash decimal.Decimal) (best, usda, btcua, btccb decimal.Decimal, ok bool) {
	usda, usdq, uok := t.topAsk(t.i3)
	btcua, btcuq, bok := t.topAsk(t.i2)
	btccb, btccq, cok := t.topBid(t.i1)
	if !uok || !bok || !cok || usda.Sign() <= 0 {
		return decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, false
	}

	t1 := usdq.Mul(usda)
	t2 := btcuq.Mul(btcua).Mul(usda).Div(t.s)
	t3 := btccq.Mul(usda).Mul(btcua).Div(t.s2)

	best, ok = bottleneck(cash, t1, t2, t3)
	return best, usda, btcua, btccb, ok
}

func (t *bssTriangle) BackwardNet(cash decimal.Decimal) (decimal.Decimal, bool) {
	throughput, _, _, _, ok := t.backwardThroughput(cash)
	if !ok {
		return decimal.Zero, false
	}
	mult, ok := t.Backward()
	if !ok {
		return decimal.Zero, false
	}
	return mult.Sub(decimal.NewFromInt(1)).Mul(throughput), true
}

// BackwardOrders sizes: O1.qty = T/usda (BUY I3); O2.qty = O1.qty/btcua*s
// (BUY I2); O3.qty = O2.qty*s (SELL I1).
func (t *bssTriangle) BackwardOrders(cash decimal.Decimal) ([3]types.Order, bool) {
	throughput, usda, btcua, btccb, ok := t.backwardThroughput(cash)
	if !ok {
		return [3]types.Order{}, false
	}

	o1Qty := t.prec.round(throughput.Div(usda), t.i3)
	o2Qty := t.prec.round(o1Qty.Div(btcua).Mul(t.s), t.i2)
	o3Qty := t.prec.round(o2Qty.Mul(t.s), t.i1)

	if o1Qty.Sign() <= 0 || o2Qty.Sign() <= 0 || o3Qty.Sign() <= 0 {
		return [3]types.Order{}, false
	}

	return [3]types.Order{
		{InstrumentId: t.i3, Side: types.BUY, Quantity: o1Qty.String(), OrderType: types.OrderTypeMarket, ExpectedPrice: usda.String()},
		{InstrumentId: t.i2, Side: types.BUY, Quantity: o2Qty.String(), OrderType: types.OrderTypeMarket, ExpectedPrice: btcua.String()},
		{InstrumentId: t.i1, Side: types.SELL, Quantity: o3Qty.String(), OrderType: types.OrderTypeMarket, ExpectedPrice: btccb.String()},
	}, true
}
