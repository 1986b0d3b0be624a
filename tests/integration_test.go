// Package tests exercises the order book, matching engine, replay
// driver, and execution backtester together against the concrete
// scenarios and invariants the rest of the suite covers in isolation.
package tests

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rishav/lobx/internal/backtest"
	"github.com/rishav/lobx/internal/matching"
	"github.com/rishav/lobx/internal/replay"
	"github.com/rishav/lobx/internal/tick"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func px(value float64) int64 {
	return tick.PriceToTicksFromFloat(value)
}

// TestScenarioS1AggressiveCross mirrors spec.md's S1: a resting bid
// that a crossing sell partially fills.
func TestScenarioS1AggressiveCross(t *testing.T) {
	engine := matching.NewEngine()

	r1 := engine.Submit(tick.Order{ID: 1, Side: tick.Buy, PriceTicks: px(101.0), Quantity: 10, Type: tick.Limit, TIF: tick.GTC})
	require.True(t, r1.Accepted)
	require.Empty(t, r1.Trades)

	r2 := engine.Submit(tick.Order{ID: 2, Side: tick.Sell, PriceTicks: px(100.0), Quantity: 6, Type: tick.Limit, TIF: tick.GTC})
	require.True(t, r2.Accepted)
	require.Len(t, r2.Trades, 1)
	assert.Equal(t, int32(1), r2.Trades[0].BuyOrderID)
	assert.Equal(t, int32(2), r2.Trades[0].SellOrderID)
	assert.Equal(t, px(101.0), r2.Trades[0].PriceTicks)
	assert.Equal(t, int32(6), r2.Trades[0].Quantity)

	snapshot := engine.Depth(5)
	require.Len(t, snapshot.Bids, 1)
	assert.Equal(t, int32(4), snapshot.Bids[0].AggregateQuantity)
	assert.Empty(t, snapshot.Asks)
}

// TestScenarioS2PriceTimePriorityPreservingReplace mirrors S2.
func TestScenarioS2PriceTimePriorityPreservingReplace(t *testing.T) {
	engine := matching.NewEngine()

	require.True(t, engine.Submit(tick.Order{ID: 50, Side: tick.Buy, PriceTicks: px(100.0), Quantity: 5, Type: tick.Limit, TIF: tick.GTC}).Accepted)
	require.True(t, engine.Submit(tick.Order{ID: 51, Side: tick.Buy, PriceTicks: px(100.0), Quantity: 5, Type: tick.Limit, TIF: tick.GTC}).Accepted)

	replaceResult := engine.Replace(50, px(100.0), 2)
	require.True(t, replaceResult.Accepted)

	result := engine.Submit(tick.Order{ID: 52, Side: tick.Sell, PriceTicks: px(100.0), Quantity: 3, Type: tick.Limit, TIF: tick.GTC})
	require.Len(t, result.Trades, 2)
	assert.Equal(t, int32(50), result.Trades[0].BuyOrderID)
	assert.Equal(t, int32(2), result.Trades[0].Quantity)
	assert.Equal(t, int32(51), result.Trades[1].BuyOrderID)
	assert.Equal(t, int32(1), result.Trades[1].Quantity)
}

// TestScenarioS3PriorityBreakingReplaceRequeues mirrors S3.
func TestScenarioS3PriorityBreakingReplaceRequeues(t *testing.T) {
	engine := matching.NewEngine()

	require.True(t, engine.Submit(tick.Order{ID: 60, Side: tick.Buy, PriceTicks: px(100.0), Quantity: 2, Type: tick.Limit, TIF: tick.GTC}).Accepted)
	require.True(t, engine.Submit(tick.Order{ID: 61, Side: tick.Buy, PriceTicks: px(100.0), Quantity: 2, Type: tick.Limit, TIF: tick.GTC}).Accepted)

	replaceResult := engine.Replace(60, px(100.0), 5)
	require.True(t, replaceResult.Accepted)

	result := engine.Submit(tick.Order{ID: 62, Side: tick.Sell, PriceTicks: px(100.0), Quantity: 3, Type: tick.Limit, TIF: tick.GTC})
	require.Len(t, result.Trades, 2)
	assert.Equal(t, int32(61), result.Trades[0].BuyOrderID)
	assert.Equal(t, int32(2), result.Trades[0].Quantity)
	assert.Equal(t, int32(60), result.Trades[1].BuyOrderID)
	assert.Equal(t, int32(1), result.Trades[1].Quantity)
}

// TestScenarioS4IOCNeverRests mirrors S4.
func TestScenarioS4IOCNeverRests(t *testing.T) {
	engine := matching.NewEngine()

	result := engine.Submit(tick.Order{ID: 200, Side: tick.Buy, PriceTicks: px(99.0), Quantity: 5, Type: tick.Limit, TIF: tick.IOC})
	require.True(t, result.Accepted)
	assert.Empty(t, result.Trades)
	assert.Empty(t, engine.Depth(1).Bids)
}

// TestScenarioS5MarketIntoEmptyBookRejected mirrors S5.
func TestScenarioS5MarketIntoEmptyBookRejected(t *testing.T) {
	engine := matching.NewEngine()

	result := engine.Submit(tick.Order{ID: 300, Side: tick.Buy, Quantity: 3, Type: tick.Market, TIF: tick.IOC})
	assert.False(t, result.Accepted)
	assert.Equal(t, tick.RejectNoLiquidity, result.RejectReason)
}

// TestBookNeverCrossed is invariant 1 from spec.md §8: after any
// sequence of operations, if both sides are non-empty the best bid is
// strictly below the best ask.
func TestBookNeverCrossed(t *testing.T) {
	engine := matching.NewEngine()

	engine.Submit(tick.Order{ID: 1, Side: tick.Buy, PriceTicks: px(99.0), Quantity: 10, Type: tick.Limit, TIF: tick.GTC})
	engine.Submit(tick.Order{ID: 2, Side: tick.Sell, PriceTicks: px(101.0), Quantity: 10, Type: tick.Limit, TIF: tick.GTC})
	engine.Submit(tick.Order{ID: 3, Side: tick.Buy, PriceTicks: px(100.0), Quantity: 5, Type: tick.Limit, TIF: tick.GTC})

	top := engine.TopOfBook()
	require.NotNil(t, top.BestBid)
	require.NotNil(t, top.BestAsk)
	assert.Less(t, top.BestBid.PriceTicks, top.BestAsk.PriceTicks)
}

// TestSeqNumStrictlyIncreasingWithNoGaps is invariant 2.
func TestSeqNumStrictlyIncreasingWithNoGaps(t *testing.T) {
	engine := matching.NewEngine()

	engine.Submit(tick.Order{ID: 1, Side: tick.Buy, PriceTicks: px(100.0), Quantity: 5, Type: tick.Limit, TIF: tick.GTC})
	engine.Submit(tick.Order{ID: 2, Side: tick.Sell, PriceTicks: px(100.0), Quantity: 5, Type: tick.Limit, TIF: tick.GTC})
	engine.Cancel(999)

	log := engine.EventsSince(0)
	require.NotEmpty(t, log)
	var last uint64
	for _, event := range log {
		assert.Greater(t, event.SeqNum, last)
		assert.Equal(t, last+1, event.SeqNum)
		last = event.SeqNum
	}
	assert.Equal(t, last, engine.LastSeqNum())
}

// TestDepthBoundedAndOrdered is invariant 5.
func TestDepthBoundedAndOrdered(t *testing.T) {
	engine := matching.NewEngine()

	for i, p := range []float64{100.0, 99.0, 98.0, 97.0} {
		engine.Submit(tick.Order{ID: int32(i + 1), Side: tick.Buy, PriceTicks: px(p), Quantity: 1, Type: tick.Limit, TIF: tick.GTC})
	}

	snapshot := engine.Depth(2)
	require.Len(t, snapshot.Bids, 2)
	assert.Greater(t, snapshot.Bids[0].PriceTicks, snapshot.Bids[1].PriceTicks)
	for _, level := range snapshot.Bids {
		assert.Positive(t, level.AggregateQuantity)
	}
}

func writeCSV(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "actions.csv")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

const actionHeader = "ts_ns,seq,action,order_id,side,type,price,qty,tif,new_price,new_qty,notes\n"

// TestReplayDriverEndToEnd exercises the CSV replay path against the
// same S1 scenario to confirm the CSV boundary round-trips correctly.
func TestReplayDriverEndToEnd(t *testing.T) {
	path := writeCSV(t, actionHeader+
		"0,1,NEW,1,BUY,LIMIT,101.0,10,GTC,,,\n"+
		"0,2,NEW,2,SELL,LIMIT,100.0,6,GTC,,,\n")

	engine := matching.NewEngine()
	result, err := replay.RunFile(path, engine)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Stats.RowsProcessed)
	assert.Equal(t, 1, result.Stats.TradesGenerated)
	require.Len(t, result.Trades, 1)
	assert.Equal(t, int32(1), result.Trades[0].BuyOrderID)
	assert.Equal(t, int32(2), result.Trades[0].SellOrderID)

	out := filepath.Join(t.TempDir(), "trades.csv")
	require.NoError(t, replay.WriteTradeCSV(out, result.Trades))
	contents, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "101.0000")
}

// TestTWAPBacktestEndToEnd exercises backtest.RunFile against a CSV
// file (rather than an in-memory []replay.Row fixture, which the
// backtest package's own tests already cover), confirming slice
// quantities still sum to the target through the full CSV boundary.
func TestTWAPBacktestEndToEnd(t *testing.T) {
	path := writeCSV(t, actionHeader+
		"0,1,NEW,1,SELL,LIMIT,100.0,50,GTC,,,\n"+
		"10,2,NEW,2,SELL,LIMIT,101.0,1,GTC,,,\n")

	config := backtest.Config{Side: tick.Buy, TargetQuantity: 6, Slices: 3, Strategy: backtest.TWAP, FirstChildOrderID: backtest.DefaultFirstChildOrderID}
	result, err := backtest.RunFile(path, config)
	require.NoError(t, err)

	require.Len(t, result.ChildOrders, 3)
	var sum int32
	for _, child := range result.ChildOrders {
		sum += child.RequestedQuantity
	}
	assert.Equal(t, int32(6), sum)
	assert.Equal(t, int32(6), result.TCA.FilledQuantity)
	assert.InDelta(t, 1.0, result.TCA.FillRate, 1e-9)
}
