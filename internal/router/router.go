// Package router classifies inbound exchange frames and dispatches them to
// the order book, account tracker, and trader. A frame that fails to parse
// sets ResetSignal rather than propagating an error — the feed is ground
// truth, and a local resync is cheaper than halting.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"triarb/internal/account"
	"triarb/internal/coordination"
	"triarb/internal/orderbook"
	"triarb/internal/trader"
	"triarb/pkg/types"
)

// ErrSubscriptionRefused is returned by Route when the exchange rejects
// the account-events subscription. It is fatal: the engine cannot observe
// fills or state changes without this channel, so there is nothing a
// resync can fix.
var ErrSubscriptionRefused = errors.New("account events subscription refused")

// accountEvents are account-channel notifications the router acknowledges
// but does not act on beyond logging.
var accountEvents = map[string]bool{
	"AccountPositionEvent":         true,
	"CancelAllOrdersRejectEvent":   true,
	"CancelOrderRejectEvent":       true,
	"CancelReplaceOrderRejectEvent": true,
	"MarketStatusUpdate":           true,
	"NewOrderRejectEvent":          true,
	"PendingDepositUpdate":         true,
}

// subscribeAccountEventsReply carries just the field the router needs to
// decide whether the subscription succeeded.
type subscribeAccountEventsReply struct {
	Subscribed bool `json:"Subscribed"`
}

// Router dispatches parsed frames by operation name.
type Router struct {
	book    *orderbook.MultiBook
	account *account.Tracker
	trader  *trader.Trader
	reset   *coordination.ResetSignal
	logger  *slog.Logger
}

// New constructs a Router.
func New(book *orderbook.MultiBook, acct *account.Tracker, tr *trader.Trader, reset *coordination.ResetSignal, logger *slog.Logger) *Router {
	return &Router{
		book:    book,
		account: acct,
		trader:  tr,
		reset:   reset,
		logger:  logger.With("component", "router"),
	}
}

// Route parses one inbound frame and dispatches it. ctx bounds any order
// emission the dispatch triggers (via Trader.Recheck). It returns
// ErrSubscriptionRefused if the exchange rejects the account-events
// subscription; every other error condition is handled internally via
// ResetSignal and Route returns nil.
func (r *Router) Route(ctx context.Context, frame types.Frame, recheckCash func(context.Context)) error {
	switch frame.Op {
	case "Level2Subscribe", "Level2UpdateEvent":
		var updates []types.L2Update
		if !r.unmarshalOrReset(frame.Payload, &updates, frame.Op) {
			return nil
		}
		for _, u := range updates {
			if err := r.book.Apply(u); err != nil {
				r.logger.Error("apply book update", "error", err, "instrument_id", u.InstrumentId)
			}
		}
		recheckCash(ctx)

	case "GetAccountPositions":
		var entries []types.AccountPositionEntry
		if !r.unmarshalOrReset(frame.Payload, &entries, frame.Op) {
			return nil
		}
		if err := r.account.ProcessPositions(entries); err != nil {
			r.logger.Error("process account positions", "error", err)
		}

	case "OrderTradeEvent":
		var evt types.OrderTradeEvent
		if !r.unmarshalOrReset(frame.Payload, &evt, frame.Op) {
			return nil
		}
		if err := r.trader.OnFill(evt); err != nil {
			r.logger.Error("reconcile fill", "error", err, "client_order_id", evt.ClientOrderId)
		}

	case "OrderStateEvent":
		var evt types.OrderStateEvent
		if !r.unmarshalOrReset(frame.Payload, &evt, frame.Op) {
			return nil
		}
		r.trader.OnStateChange(evt)

	case "SubscribeAccountEvents":
		var reply subscribeAccountEventsReply
		if !r.unmarshalOrReset(frame.Payload, &reply, frame.Op) {
			return nil
		}
		if !reply.Subscribed {
			r.logger.Error("account events subscription refused, halting")
			return ErrSubscriptionRefused
		}
		r.logger.Info("account events subscribed")

	case "SendOrder":
		r.logger.Debug("send order acknowledged", "payload", frame.Payload)

	default:
		if accountEvents[frame.Op] {
			r.logger.Warn("unhandled account event, continuing", "op", frame.Op)
			return nil
		}
		r.logger.Error("unhandled message, continuing", "op", frame.Op)
	}
	return nil
}

// unmarshalOrReset decodes payload into v, setting ResetSignal and logging
// on failure. Returns whether decoding succeeded.
func (r *Router) unmarshalOrReset(payload string, v interface{}, op string) bool {
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		r.logger.Error("parse failure, requesting reset", "op", op, "error", err)
		r.reset.Set()
		return false
	}
	return true
}
