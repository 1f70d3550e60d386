package triangle

import (
	"github.com/shopspring/decimal"

	"triarb/pkg/types"
)

// bbsTriangle implements Evaluator for the "buy-buy-sell" cycle
// convention: forward traversal is BUY I1 (at ask, spend cash), BUY I2 (at
// ask, spend I1's base currency), SELL I3 (at bid, for cash) — the shape
// Design Notes names alongside BSS for a triangle whose middle pair is
// quoted in the opposite direction (I2's quote currency is I1's base,
// rather than I2's base matching I1's base directly).
//
// No worked BBS implementation exists anywhere in the reference pack; this
// is derived by the same fee-propagation algebra as bssTriangle, applied to
// the mirrored leg-2 direction (see DESIGN.md).
type bbsTriangle struct {
	base
}

// Forward returns (I3.bid / (I1.ask * I2.ask)) * s^3.
func (t *bbsTriangle) Forward() (decimal.Decimal, bool) {
	aa, _, aok := t.topAsk(t.i1)
	ba, _, bok := t.topAsk(t.i2)
	cb, _, cok := t.topBid(t.i3)
	if !aok || !bok || !cok || aa.Sign() <= 0 || ba.Sign() <= 0 {
		return decimal.Zero, false
	}
	return cb.Div(aa.Mul(ba)).Mul(t.s3), true
}

// Backward returns (I2.bid * I1.bid / I3.ask) * s^3 — the reverse
// traversal: BUY I3, SELL I2, SELL I1.
func (t *bbsTriangle) Backward() (decimal.Decimal, bool) {
	ca, _, cok := t.topAsk(t.i3)
	bb, _, bok := t.topBid(t.i2)
	ab, _, aok := t.topBid(t.i1)
	if !cok || !bok || !aok || ca.Sign() <= 0 {
		return decimal.Zero, false
	}
	return bb.Mul(ab).Div(ca).Mul(t.s3), true
}

// forwardThroughput: leg1=I1 ask (Aa,Aq), leg2=I2 ask (Ba,Bq), leg3=I3 bid
// (Cb,Cq).
//
//	T1 = Aq * Aa
//	T2 = Bq * Ba * Aa / s
//	T3 = Cq * Ba * Aa / s^2
func (t *bbsTriangle) forwardThroughput(cash decimal.Decimal) (best, aa, ba, cb decimal.Decimal, ok bool) {
	aa, aq, aok := t.topAsk(t.i1)
	ba, bq, bok := t.topAsk(t.i2)
	cb, cq, cok := t.topBid(t.i3)
	if !aok || !bok || !cok || aa.Sign() <= 0 {
		return decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, false
	}

	t1 := aq.Mul(aa)
	t2 := bq.Mul(ba).Mul(aa).Div(t.s)
	t3 := cq.Mul(ba).Mul(aa).Div(t.s2)

	best, ok = bottleneck(cash, t1, t2, t3)
	return best, aa, ba, cb, ok
}

func (t *bbsTriangle) ForwardNet(cash decimal.Decimal) (decimal.Decimal, bool) {
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

// ForwardOrders sizes: O1.qty = T/Aa (BUY I1); O2.qty = O1.qty*s/Ba
// (BUY I2); O3.qty = O2.qty*s (SELL I3).
func (t *bbsTriangle) ForwardOrders(cash decimal.Decimal) ([3]types.Order, bool) {
	throughput, aa, ba, cb, ok := t.forwardThroughput(cash)
	if !ok {
		return [3]types.Order{}, false
	}

	o1Qty := t.prec.round(throughput.Div(aa), t.i1)
	o2Qty := t.prec.round(o1Qty.Mul(t.s).Div(ba), t.i2)
	o3Qty := t.prec.round(o2Qty.Mul(t.s), t.i3)

	if o1Qty.Sign() <= 0 || o2Qty.Sign() <= 0 || o3Qty.Sign() <= 0 {
		return [3]types.Order{}, false
	}

	return [3]types.Order{
		{InstrumentId: t.i1, Side: types.BUY, Quantity: o1Qty.String(), OrderType: types.OrderTypeMarket, ExpectedPrice: aa.String()},
		{InstrumentId: t.i2, Side: types.BUY, Quantity: o2Qty.String(), OrderType: types.OrderTypeMarket, ExpectedPrice: ba.String()},
		{InstrumentId: t.i3, Side: types.SELL, Quantity: o3Qty.String(), OrderType: types.OrderTypeMarket, ExpectedPrice: cb.String()},
	}, true
}

// backwardThroughput: leg1=I3 ask (Ca,Cq), leg2=I2 bid (Bb,Bq), leg3=I1 bid
// (Ab,Aq).
//
//	T1 = Cq * Ca
//	T2 = Bq * Ca / s
//	T3 = Aq * Ca / (Bb * s^2)
func (t *bbsTriangle) backwardThroughput(cash decimal.Decimal) (best, ca, bb, ab decimal.Decimal, ok bool) {
	ca, cq, cok := t.topAsk(t.i3)
	bb, bq, bok := t.topBid(t.i2)
	ab, aq, aok := t.topBid(t.i1)
	if !cok || !bok || !aok || ca.Sign() <= 0 || bb.Sign() <= 0 {
		return decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero, false
	}

	t1 := cq.Mul(ca)
	t2 := bq.Mul(ca).Div(t.s)
	t3 := aq.Mul(ca).Div(bb.Mul(t.s2))

	best, ok = bottleneck(cash, t1, t2, t3)
	return best, ca, bb, ab, ok
}

func (t *bbsTriangle) BackwardNet(cash decimal.Decimal) (decimal.Decimal, bool) {
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

// BackwardOrders sizes: O1.qty = T/Ca (BUY I3); O2.qty = O1.qty*s
// (SELL I2); O3.qty = O2.qty*Bb*s (SELL I1).
func (t *bbsTriangle) BackwardOrders(cash decimal.Decimal) ([3]types.Order, bool) {
	throughput, ca, bb, ab, ok := t.backwardThroughput(cash)
	if !ok {
		return [3]types.Order{}, false
	}

	o1Qty := t.prec.round(throughput.Div(ca), t.i3)
	o2Qty := t.prec.round(o1Qty.Mul(t.s), t.i2)
	o3Qty := t.prec.round(o2Qty.Mul(bb).Mul(t.s), t.i1)

	if o1Qty.Sign() <= 0 || o2Qty.Sign() <= 0 || o3Qty.Sign() <= 0 {
		return [3]types.Order{}, false
	}

	return [3]types.Order{
		{InstrumentId: t.i3, Side: types.BUY, Quantity: o1Qty.String(), OrderType: types.OrderTypeMarket, ExpectedPrice: ca.String()},
		{InstrumentId: t.i2, Side: types.SELL, Quantity: o2Qty.String(), OrderType: types.OrderTypeMarket, ExpectedPrice: bb.String()},
		{InstrumentId: t.i1, Side: types.SELL, Quantity: o3Qty.String(), OrderType: types.OrderTypeMarket, ExpectedPrice: ab.String()},
	}, true
}
