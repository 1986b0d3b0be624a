// Package events defines the append-only event log produced by the
// matching engine.
//
// Event Sourcing Pattern:
// Every effect the engine produces — an order resting on the book, a
// trade, a cancellation, a replace — is recorded as an immutable
// BookEvent before the operation returns. Downstream consumers (a
// market-data feed, a reconciliation job) can read the log through
// EventsSince rather than polling mutable book state directly. The
// trade CSVs written by the replay driver and the backtester are built
// from SubmitResult trades, not from this log.
//
// Unlike a persistent write-ahead log, this log is in-memory only: the
// engine runs as one single-threaded process per backtest run, and
// there is no crash-recovery requirement to design for.
package events

import "github.com/rishav/lobx/internal/tick"

// EventType identifies the kind of effect a BookEvent records.
type EventType uint8

const (
	Add EventType = iota + 1
	Trade
	Cancel
	Replace
)

func (t EventType) String() string {
	switch t {
	case Add:
		return "ADD"
	case Trade:
		return "TRADE"
	case Cancel:
		return "CANCEL"
	case Replace:
		return "REPLACE"
	default:
		return "UNKNOWN"
	}
}

// BookEvent is one record in the append-only event log. SeqNum is
// strictly increasing and gap-free within a single engine instance.
// Only the fields relevant to Type are meaningful; the rest are zero.
//
//   - ADD:     OrderID, Side, PriceTicks, Quantity (residual resting quantity)
//   - TRADE:   BuyOrderID, SellOrderID, PriceTicks, Quantity
//   - CANCEL:  OrderID, Side, PriceTicks, Quantity (quantity removed)
//   - REPLACE: OrderID, Side, OldPriceTicks, OldQuantity, PriceTicks, Quantity
type BookEvent struct {
	SeqNum uint64
	Type   EventType

	OrderID     int32
	Side        tick.Side
	PriceTicks  int64
	Quantity    int32
	BuyOrderID  int32
	SellOrderID int32

	OldPriceTicks int64
	OldQuantity   int32
}
