// Package tick defines the core price, order, and trade types shared by the
// order book, matching engine, and execution backtester.
//
// Key Design Decisions:
//
// 1. Fixed-Point Arithmetic: prices are stored as int64 in units of
//    1/10,000 of one price unit ("ticks"), not floating point. For example,
//    $150.0025 is stored as 1500025. This is critical in financial systems
//    where accumulated rounding errors are unacceptable.
//
// 2. Sequence Numbers: every book event receives a sequence number that
//    is unique and monotonically increasing within one matching engine
//    (each engine starts at 1). This enables deterministic replay and gap
//    detection by downstream consumers of events_since.
//
// 3. Time Representation: timestamps are nanoseconds since an
//    externally-supplied epoch (uint64), never read from the wall clock.
package tick

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TicksPerUnit is the number of ticks per whole price unit.
const TicksPerUnit = 10000

// Side represents which side of the book an order or trade belongs to.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// TimeInForce controls whether unfilled quantity rests on the book.
type TimeInForce int

const (
	GTC TimeInForce = iota
	IOC
)

func (t TimeInForce) String() string {
	if t == IOC {
		return "IOC"
	}
	return "GTC"
}

// OrderType selects limit vs. market matching semantics.
type OrderType int

const (
	Limit OrderType = iota
	Market
)

func (t OrderType) String() string {
	if t == Market {
		return "MARKET"
	}
	return "LIMIT"
}

// RejectReason explains why submit/replace declined an order.
type RejectReason int

const (
	RejectNone RejectReason = iota
	RejectInvalidPrice
	RejectInvalidQuantity
	RejectDuplicateOrderID
	RejectNoLiquidity
	RejectOrderNotFound
)

func (r RejectReason) String() string {
	switch r {
	case RejectNone:
		return "NONE"
	case RejectInvalidPrice:
		return "INVALID_PRICE"
	case RejectInvalidQuantity:
		return "INVALID_QUANTITY"
	case RejectDuplicateOrderID:
		return "DUPLICATE_ORDER_ID"
	case RejectNoLiquidity:
		return "NO_LIQUIDITY"
	case RejectOrderNotFound:
		return "ORDER_NOT_FOUND"
	default:
		return "UNKNOWN"
	}
}

// Order is a single resting or incoming order. ID must be positive and
// unique across both sides of a book.
type Order struct {
	ID         int32
	Side       Side
	PriceTicks int64
	Quantity   int32
	TIF        TimeInForce
	Type       OrderType
}

// Clone returns a copy of the order.
func (o Order) Clone() Order {
	return o
}

func (o Order) String() string {
	return fmt.Sprintf("Order{id:%d %s %s %d@%s tif:%s}",
		o.ID, o.Type, o.Side, o.Quantity, FormatPriceTicks(o.PriceTicks), o.TIF)
}

// Trade records a single execution. Price is always the resting
// (passive) order's price.
type Trade struct {
	BuyOrderID  int32
	SellOrderID int32
	PriceTicks  int64
	Quantity    int32
}

// BookLevel is one price level's aggregate resting quantity.
type BookLevel struct {
	PriceTicks       int64
	AggregateQuantity int32
}

// TopOfBook is the best level on each side, if present.
type TopOfBook struct {
	BestBid *BookLevel
	BestAsk *BookLevel
}

// BookSnapshot is up to N best levels per side, best-first.
type BookSnapshot struct {
	Bids []BookLevel
	Asks []BookLevel
}

// PriceToTicks converts a decimal display price to integer ticks using
// round-half-away-from-zero, per decimal.Decimal.Round semantics.
func PriceToTicks(price decimal.Decimal) int64 {
	scaled := price.Mul(decimal.NewFromInt(TicksPerUnit)).Round(0)
	return scaled.IntPart()
}

// PriceToTicksFromFloat is a convenience wrapper for callers (tests, the
// demo CLI) that already hold a float64 display price.
func PriceToTicksFromFloat(price float64) int64 {
	return PriceToTicks(decimal.NewFromFloat(price))
}

// TicksToPrice converts integer ticks back to a decimal display price.
func TicksToPrice(priceTicks int64) decimal.Decimal {
	return decimal.New(priceTicks, 0).Div(decimal.NewFromInt(TicksPerUnit))
}

// FormatPriceTicks renders ticks as a fixed 4-decimal price string, the
// format used by the trade CSV and CLI output.
func FormatPriceTicks(priceTicks int64) string {
	return TicksToPrice(priceTicks).StringFixed(4)
}
