package matching

import (
	"testing"

	"github.com/rishav/lobx/internal/tick"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lim(id int32, side tick.Side, price int64, qty int32) tick.Order {
	return tick.Order{ID: id, Side: side, PriceTicks: price, Quantity: qty, TIF: tick.GTC, Type: tick.Limit}
}

func TestAggressiveCross(t *testing.T) {
	e := NewEngine()

	r1 := e.Submit(lim(1, tick.Buy, 1010000, 10))
	require.True(t, r1.Accepted)
	assert.Empty(t, r1.Trades)

	r2 := e.Submit(lim(2, tick.Sell, 1000000, 6))
	require.True(t, r2.Accepted)
	require.Len(t, r2.Trades, 1)
	assert.Equal(t, tick.Trade{BuyOrderID: 1, SellOrderID: 2, PriceTicks: 1010000, Quantity: 6}, r2.Trades[0])

	resting, ok := e.bids.Find(1)
	require.True(t, ok)
	assert.Equal(t, int32(4), resting.Quantity)
	assert.True(t, e.asks.IsEmpty())
}

func TestPriceTimePriorityPreservingReplace(t *testing.T) {
	e := NewEngine()
	require.True(t, e.Submit(lim(50, tick.Buy, 1000000, 5)).Accepted)
	require.True(t, e.Submit(lim(51, tick.Buy, 1000000, 5)).Accepted)

	rep := e.Replace(50, 1000000, 2)
	require.True(t, rep.Accepted)
	assert.Empty(t, rep.Trades)

	r := e.Submit(lim(52, tick.Sell, 1000000, 3))
	require.Len(t, r.Trades, 2)
	assert.Equal(t, int32(2), r.Trades[0].Quantity)
	assert.Equal(t, int32(50), r.Trades[0].BuyOrderID)
	assert.Equal(t, int32(1), r.Trades[1].Quantity)
	assert.Equal(t, int32(51), r.Trades[1].BuyOrderID)
}

func TestPriorityBreakingReplaceRequeues(t *testing.T) {
	e := NewEngine()
	require.True(t, e.Submit(lim(60, tick.Buy, 1000000, 2)).Accepted)
	require.True(t, e.Submit(lim(61, tick.Buy, 1000000, 2)).Accepted)

	rep := e.Replace(60, 1000000, 5)
	require.True(t, rep.Accepted)

	r := e.Submit(lim(62, tick.Sell, 1000000, 3))
	require.Len(t, r.Trades, 2)
	assert.Equal(t, int32(61), r.Trades[0].BuyOrderID)
	assert.Equal(t, int32(2), r.Trades[0].Quantity)
	assert.Equal(t, int32(60), r.Trades[1].BuyOrderID)
	assert.Equal(t, int32(1), r.Trades[1].Quantity)
}

func TestIOCNeverRests(t *testing.T) {
	e := NewEngine()
	order := lim(200, tick.Buy, 990000, 5)
	order.TIF = tick.IOC

	r := e.Submit(order)
	require.True(t, r.Accepted)
	assert.Empty(t, r.Trades)
	assert.False(t, e.bids.Contains(200))
}

func TestMarketIntoEmptyBookRejected(t *testing.T) {
	e := NewEngine()
	order := tick.Order{ID: 300, Side: tick.Buy, Quantity: 3, TIF: tick.IOC, Type: tick.Market}

	r := e.Submit(order)
	assert.False(t, r.Accepted)
	assert.Equal(t, tick.RejectNoLiquidity, r.RejectReason)
}

func TestValidationOrderInvalidQuantityFirst(t *testing.T) {
	e := NewEngine()
	r := e.Submit(tick.Order{ID: 1, Side: tick.Buy, PriceTicks: -5, Quantity: 0, Type: tick.Limit})
	assert.Equal(t, tick.RejectInvalidQuantity, r.RejectReason)
}

func TestValidationInvalidPrice(t *testing.T) {
	e := NewEngine()
	r := e.Submit(lim(1, tick.Buy, 0, 10))
	assert.Equal(t, tick.RejectInvalidPrice, r.RejectReason)
}

func TestValidationDuplicateOrderID(t *testing.T) {
	e := NewEngine()
	require.True(t, e.Submit(lim(1, tick.Buy, 1000000, 10)).Accepted)
	r := e.Submit(lim(1, tick.Sell, 1000000, 5))
	assert.Equal(t, tick.RejectDuplicateOrderID, r.RejectReason)
}

// TestTradeQuantityCappedAtSmallerSide is invariant 4: a trade quantity
// never exceeds the smaller of the aggressor's and resting order's
// quantities at the moment of matching.
func TestTradeQuantityCappedAtSmallerSide(t *testing.T) {
	e := NewEngine()
	require.True(t, e.Submit(lim(1, tick.Buy, 1000000, 3)).Accepted)

	r := e.Submit(lim(2, tick.Sell, 1000000, 10))
	require.Len(t, r.Trades, 1)
	assert.Equal(t, int32(3), r.Trades[0].Quantity)
	assert.Empty(t, e.Depth(1).Bids)
	require.Len(t, e.Depth(1).Asks, 1)
	assert.Equal(t, int32(7), e.Depth(1).Asks[0].AggregateQuantity)
}

// TestAcceptedTrueAndReasonNoneWhenTradesOccur is invariant 7.
func TestAcceptedTrueAndReasonNoneWhenTradesOccur(t *testing.T) {
	e := NewEngine()
	require.True(t, e.Submit(lim(1, tick.Buy, 1000000, 5)).Accepted)

	r := e.Submit(lim(2, tick.Sell, 1000000, 5))
	require.NotEmpty(t, r.Trades)
	assert.True(t, r.Accepted)
	assert.Equal(t, tick.RejectNone, r.RejectReason)
}

// TestDuplicateOrderIDRejectedKeepsIndexUnique is invariant 3: a
// resting order's id appears in exactly one side's order index, so a
// duplicate submit must be rejected rather than silently overwriting.
func TestDuplicateOrderIDRejectedKeepsIndexUnique(t *testing.T) {
	e := NewEngine()
	require.True(t, e.Submit(lim(1, tick.Buy, 1000000, 10)).Accepted)

	r := e.Submit(lim(1, tick.Buy, 1010000, 4))
	assert.False(t, r.Accepted)
	assert.Equal(t, tick.RejectDuplicateOrderID, r.RejectReason)

	require.Len(t, e.Depth(5).Bids, 1)
	assert.Equal(t, int32(10), e.Depth(5).Bids[0].AggregateQuantity)
}

func TestCancelEmitsEventAndReturnsFalseWhenMissing(t *testing.T) {
	e := NewEngine()
	require.True(t, e.Submit(lim(1, tick.Buy, 1000000, 10)).Accepted)

	assert.True(t, e.Cancel(1))
	assert.False(t, e.Cancel(1))
}

func TestReplaceNotFound(t *testing.T) {
	e := NewEngine()
	r := e.Replace(999, 1000000, 5)
	assert.Equal(t, tick.RejectOrderNotFound, r.RejectReason)
}

func TestEventOrderingReplaceBeforeTrade(t *testing.T) {
	e := NewEngine()
	require.True(t, e.Submit(lim(60, tick.Buy, 1000000, 2)).Accepted)
	e.Replace(60, 1000000, 5)
	e.Submit(lim(62, tick.Sell, 1000000, 3))

	all := e.EventsSince(0)
	var sawReplace, sawTradeAfterReplace bool
	for _, ev := range all {
		if ev.Type.String() == "REPLACE" {
			sawReplace = true
		}
		if sawReplace && ev.Type.String() == "TRADE" {
			sawTradeAfterReplace = true
		}
	}
	assert.True(t, sawTradeAfterReplace)
}

func TestTopOfBookAndDepth(t *testing.T) {
	e := NewEngine()
	require.True(t, e.Submit(lim(1, tick.Buy, 1000000, 10)).Accepted)
	require.True(t, e.Submit(lim(2, tick.Sell, 1010000, 5)).Accepted)

	top := e.TopOfBook()
	require.NotNil(t, top.BestBid)
	require.NotNil(t, top.BestAsk)
	assert.Equal(t, int64(1000000), top.BestBid.PriceTicks)
	assert.Equal(t, int64(1010000), top.BestAsk.PriceTicks)

	snap := e.Depth(5)
	assert.Len(t, snap.Bids, 1)
	assert.Len(t, snap.Asks, 1)
}

func TestSeqNumStrictlyIncreasingNoGaps(t *testing.T) {
	e := NewEngine()
	e.Submit(lim(1, tick.Buy, 1000000, 10))
	e.Submit(lim(2, tick.Sell, 1000000, 4))
	e.Cancel(1)

	last := e.LastSeqNum()
	events := e.EventsSince(0)
	require.Len(t, events, int(last))
	for i, ev := range events {
		assert.Equal(t, uint64(i+1), ev.SeqNum)
	}
}
