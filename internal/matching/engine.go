// Package matching implements the order matching engine: price-time
// priority matching against a single instrument's two-sided book, with
// an append-only event log and market-data projections.
//
// Architecture: Single-Threaded Core
//
// Unlike an exchange core built for concurrent ingestion (the LMAX
// Disruptor ring-buffer pattern), this engine drives one deterministic
// backtest replay at a time: orders arrive from a sorted CSV row set,
// not from concurrent network sessions. There is exactly one caller,
// so Submit/Cancel/Replace need no internal locking — determinism and
// replayability matter more here than concurrent throughput.
package matching

import (
	"github.com/rishav/lobx/internal/events"
	"github.com/rishav/lobx/internal/orderbook"
	"github.com/rishav/lobx/internal/tick"
)

// SubmitResult is the outcome of Submit or Replace.
type SubmitResult struct {
	Accepted     bool
	RejectReason tick.RejectReason
	Trades       []tick.Trade
}

// Engine holds one book per side for a single instrument plus an
// append-only event log.
type Engine struct {
	bids *orderbook.Book
	asks *orderbook.Book
	log  *events.EventLog
}

// NewEngine creates an empty engine with an empty event log.
func NewEngine() *Engine {
	return &Engine{
		bids: orderbook.New(tick.Buy),
		asks: orderbook.New(tick.Sell),
		log:  events.NewEventLog(),
	}
}

func (e *Engine) bookFor(side tick.Side) *orderbook.Book {
	if side == tick.Buy {
		return e.bids
	}
	return e.asks
}

// Submit validates and attempts to match an incoming order, resting any
// residual quantity per its type and time-in-force. Validation runs in
// a fixed order and the first violated rule determines RejectReason.
func (e *Engine) Submit(order tick.Order) SubmitResult {
	if order.Quantity <= 0 {
		return SubmitResult{Accepted: false, RejectReason: tick.RejectInvalidQuantity}
	}
	if order.Type == tick.Limit && order.PriceTicks <= 0 {
		return SubmitResult{Accepted: false, RejectReason: tick.RejectInvalidPrice}
	}
	if e.bids.Contains(order.ID) || e.asks.Contains(order.ID) {
		return SubmitResult{Accepted: false, RejectReason: tick.RejectDuplicateOrderID}
	}

	opposite := e.bookFor(order.Side.Opposite())
	if order.Type == tick.Market && opposite.IsEmpty() {
		return SubmitResult{Accepted: false, RejectReason: tick.RejectNoLiquidity}
	}

	trades := e.match(&order, opposite)

	if order.Quantity > 0 && order.Type == tick.Limit && order.TIF == tick.GTC {
		same := e.bookFor(order.Side)
		// precondition already checked above: id is not resting on either side
		_ = same.Add(&order)
		e.log.Append(events.BookEvent{
			Type:       events.Add,
			OrderID:    order.ID,
			Side:       order.Side,
			PriceTicks: order.PriceTicks,
			Quantity:   order.Quantity,
		})
	}

	return SubmitResult{Accepted: true, RejectReason: tick.RejectNone, Trades: trades}
}

// match runs the price-time-priority matching loop against opposite,
// mutating order's residual Quantity and appending a TRADE event per
// execution. The caller rests whatever quantity remains once match
// returns.
func (e *Engine) match(order *tick.Order, opposite *orderbook.Book) []tick.Trade {
	trades := make([]tick.Trade, 0)

	for order.Quantity > 0 && !opposite.IsEmpty() && crosses(order, opposite) {
		resting := opposite.BestOrder()
		exec := order.Quantity
		if resting.Quantity < exec {
			exec = resting.Quantity
		}

		var trade tick.Trade
		if order.Side == tick.Buy {
			trade = tick.Trade{BuyOrderID: order.ID, SellOrderID: resting.ID, PriceTicks: resting.PriceTicks, Quantity: exec}
		} else {
			trade = tick.Trade{BuyOrderID: resting.ID, SellOrderID: order.ID, PriceTicks: resting.PriceTicks, Quantity: exec}
		}
		trades = append(trades, trade)

		e.log.Append(events.BookEvent{
			Type:        events.Trade,
			BuyOrderID:  trade.BuyOrderID,
			SellOrderID: trade.SellOrderID,
			PriceTicks:  trade.PriceTicks,
			Quantity:    trade.Quantity,
		})

		order.Quantity -= exec
		resting.Quantity -= exec
		opposite.ReduceBestHeadQuantity(exec)

		if resting.Quantity == 0 {
			opposite.ConsumeBest()
		}
	}

	return trades
}

// crosses reports whether order may execute against the opposite book's
// best level: always true for MARKET orders, price-compatible for LIMIT.
func crosses(order *tick.Order, opposite *orderbook.Book) bool {
	if order.Type == tick.Market {
		return true
	}
	best := opposite.BestPriceTicks()
	if order.Side == tick.Buy {
		return order.PriceTicks >= best
	}
	return order.PriceTicks <= best
}

// Cancel removes a resting order from whichever side holds it, emitting
// a CANCEL event on success.
func (e *Engine) Cancel(id int32) bool {
	if removed, ok := e.bids.Remove(id); ok {
		e.log.Append(events.BookEvent{Type: events.Cancel, OrderID: id, Side: tick.Buy, PriceTicks: removed.PriceTicks, Quantity: removed.Quantity})
		return true
	}
	if removed, ok := e.asks.Remove(id); ok {
		e.log.Append(events.BookEvent{Type: events.Cancel, OrderID: id, Side: tick.Sell, PriceTicks: removed.PriceTicks, Quantity: removed.Quantity})
		return true
	}
	return false
}

// Replace validates then either mutates a resting order in place
// (priority-preserving: same price, quantity not increased) or removes
// and re-injects it through Submit (priority-breaking). In both cases a
// REPLACE event is emitted before any TRADE events the re-injection
// produces.
func (e *Engine) Replace(id int32, newPriceTicks int64, newQuantity int32) SubmitResult {
	if newQuantity <= 0 {
		return SubmitResult{Accepted: false, RejectReason: tick.RejectInvalidQuantity}
	}
	if newPriceTicks <= 0 {
		return SubmitResult{Accepted: false, RejectReason: tick.RejectInvalidPrice}
	}

	existing, side, found := e.findEither(id)
	if !found {
		return SubmitResult{Accepted: false, RejectReason: tick.RejectOrderNotFound}
	}

	if newPriceTicks == existing.PriceTicks && newQuantity <= existing.Quantity {
		oldQuantity := existing.Quantity
		e.bookFor(side).MutateQuantity(id, newQuantity)

		e.log.Append(events.BookEvent{
			Type:          events.Replace,
			OrderID:       id,
			Side:          side,
			OldPriceTicks: existing.PriceTicks,
			OldQuantity:   oldQuantity,
			PriceTicks:    newPriceTicks,
			Quantity:      newQuantity,
		})
		return SubmitResult{Accepted: true, RejectReason: tick.RejectNone, Trades: nil}
	}

	oldPriceTicks, oldQuantity := existing.PriceTicks, existing.Quantity
	e.bookFor(side).Cancel(id)

	e.log.Append(events.BookEvent{
		Type:          events.Replace,
		OrderID:       id,
		Side:          side,
		OldPriceTicks: oldPriceTicks,
		OldQuantity:   oldQuantity,
		PriceTicks:    newPriceTicks,
		Quantity:      newQuantity,
	})

	reinjected := tick.Order{ID: id, Side: side, PriceTicks: newPriceTicks, Quantity: newQuantity, TIF: tick.GTC, Type: tick.Limit}
	return e.Submit(reinjected)
}

func (e *Engine) findEither(id int32) (*tick.Order, tick.Side, bool) {
	if o, ok := e.bids.Find(id); ok {
		return o, tick.Buy, true
	}
	if o, ok := e.asks.Find(id); ok {
		return o, tick.Sell, true
	}
	return nil, 0, false
}

// TopOfBook returns the best level on each side, nil where a side is
// empty.
func (e *Engine) TopOfBook() tick.TopOfBook {
	var top tick.TopOfBook
	if level, ok := e.bids.BestLevel(); ok {
		top.BestBid = &tick.BookLevel{PriceTicks: level.PriceTicks, AggregateQuantity: level.TotalQuantity}
	}
	if level, ok := e.asks.BestLevel(); ok {
		top.BestAsk = &tick.BookLevel{PriceTicks: level.PriceTicks, AggregateQuantity: level.TotalQuantity}
	}
	return top
}

// Depth returns up to n best levels per side, best-first.
func (e *Engine) Depth(n int) tick.BookSnapshot {
	return tick.BookSnapshot{
		Bids: e.bids.Depth(n),
		Asks: e.asks.Depth(n),
	}
}

// LastSeqNum returns the SeqNum of the most recently emitted event, or 0.
func (e *Engine) LastSeqNum() uint64 {
	return e.log.LastSeqNum()
}

// EventsSince returns all events with SeqNum > s, in order.
func (e *Engine) EventsSince(s uint64) []events.BookEvent {
	return e.log.EventsSince(s)
}
