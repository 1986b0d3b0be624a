package orderbook

import (
	"testing"

	"github.com/rishav/lobx/internal/tick"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func order(id int32, side tick.Side, priceTicks int64, qty int32) *tick.Order {
	return &tick.Order{ID: id, Side: side, PriceTicks: priceTicks, Quantity: qty, TIF: tick.GTC, Type: tick.Limit}
}

func TestAddAndBestPriceTicks(t *testing.T) {
	b := New(tick.Buy)
	require.NoError(t, b.Add(order(1, tick.Buy, 100, 10)))
	require.NoError(t, b.Add(order(2, tick.Buy, 105, 5)))

	assert.Equal(t, int64(105), b.BestPriceTicks())
	assert.Equal(t, int32(2), b.BestOrder().ID)
}

func TestBidsDescendingAsksAscending(t *testing.T) {
	bids := New(tick.Buy)
	require.NoError(t, bids.Add(order(1, tick.Buy, 100, 1)))
	require.NoError(t, bids.Add(order(2, tick.Buy, 110, 1)))
	require.NoError(t, bids.Add(order(3, tick.Buy, 90, 1)))
	assert.Equal(t, int64(110), bids.BestPriceTicks())

	asks := New(tick.Sell)
	require.NoError(t, asks.Add(order(1, tick.Sell, 100, 1)))
	require.NoError(t, asks.Add(order(2, tick.Sell, 90, 1)))
	require.NoError(t, asks.Add(order(3, tick.Sell, 110, 1)))
	assert.Equal(t, int64(90), asks.BestPriceTicks())
}

func TestAddDuplicateIDFails(t *testing.T) {
	b := New(tick.Buy)
	require.NoError(t, b.Add(order(1, tick.Buy, 100, 10)))
	err := b.Add(order(1, tick.Buy, 105, 5))
	assert.Error(t, err)
}

func TestRemoveDeletesEmptyLevel(t *testing.T) {
	b := New(tick.Buy)
	require.NoError(t, b.Add(order(1, tick.Buy, 100, 10)))

	removed, ok := b.Remove(1)
	require.True(t, ok)
	assert.Equal(t, int32(1), removed.ID)
	assert.True(t, b.IsEmpty())
	assert.Equal(t, 0, b.LevelCount())
}

func TestRemoveMissingReturnsFalse(t *testing.T) {
	b := New(tick.Buy)
	_, ok := b.Remove(999)
	assert.False(t, ok)
}

func TestCancelIsSugarForRemove(t *testing.T) {
	b := New(tick.Buy)
	require.NoError(t, b.Add(order(1, tick.Buy, 100, 10)))
	assert.True(t, b.Cancel(1))
	assert.False(t, b.Cancel(1))
}

func TestConsumeBestRemovesHeadAndKeepsFIFO(t *testing.T) {
	b := New(tick.Sell)
	require.NoError(t, b.Add(order(1, tick.Sell, 100, 5)))
	require.NoError(t, b.Add(order(2, tick.Sell, 100, 5)))

	b.ConsumeBest()

	assert.False(t, b.Contains(1))
	assert.True(t, b.Contains(2))
	assert.Equal(t, int32(2), b.BestOrder().ID)
}

func TestBestPriceTicksPanicsWhenEmpty(t *testing.T) {
	b := New(tick.Buy)
	assert.Panics(t, func() { b.BestPriceTicks() })
}

func TestBestOrderPanicsWhenEmpty(t *testing.T) {
	b := New(tick.Sell)
	assert.Panics(t, func() { b.BestOrder() })
}

func TestDepthOrderingAndLimit(t *testing.T) {
	b := New(tick.Buy)
	require.NoError(t, b.Add(order(1, tick.Buy, 100, 10)))
	require.NoError(t, b.Add(order(2, tick.Buy, 105, 5)))
	require.NoError(t, b.Add(order(3, tick.Buy, 95, 7)))

	full := b.Depth(0)
	require.Len(t, full, 3)
	assert.Equal(t, []int64{105, 100, 95}, []int64{full[0].PriceTicks, full[1].PriceTicks, full[2].PriceTicks})

	top := b.Depth(2)
	assert.Len(t, top, 2)
	assert.Equal(t, int64(105), top[0].PriceTicks)
}

func TestFindAndContains(t *testing.T) {
	b := New(tick.Buy)
	require.NoError(t, b.Add(order(1, tick.Buy, 100, 10)))

	got, ok := b.Find(1)
	require.True(t, ok)
	assert.Equal(t, int64(100), got.PriceTicks)
	assert.True(t, b.Contains(1))
	assert.False(t, b.Contains(2))
}

func TestReduceBestHeadQuantityKeepsAggregateInSync(t *testing.T) {
	b := New(tick.Buy)
	require.NoError(t, b.Add(order(1, tick.Buy, 100, 10)))

	b.ReduceBestHeadQuantity(4)

	level, ok := b.BestLevel()
	require.True(t, ok)
	assert.Equal(t, int32(6), level.TotalQuantity)
}

func TestOrderCount(t *testing.T) {
	b := New(tick.Buy)
	require.NoError(t, b.Add(order(1, tick.Buy, 100, 10)))
	require.NoError(t, b.Add(order(2, tick.Buy, 100, 5)))
	assert.Equal(t, 2, b.OrderCount())
	assert.Equal(t, 1, b.LevelCount())
}
