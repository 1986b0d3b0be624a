package orderbook

import (
	"fmt"

	"github.com/rishav/lobx/internal/tick"
)

// Book is a single-sided limit order book: one height-balanced tree of
// price levels (best-first for this side) plus a hash index from order
// id to its node for O(1) lookup and cancellation.
//
// Price-time priority is implemented by composing the two primitives:
// the tree gives price priority (best level first), the FIFO queue at
// each level gives time priority (first order first).
type Book struct {
	side  tick.Side
	tree  *RBTree
	index map[int32]*OrderNode
}

// New creates an empty single-sided book. Bids are keyed descending
// (highest price first); asks are keyed ascending (lowest price first).
func New(side tick.Side) *Book {
	return &Book{
		side:  side,
		tree:  NewRBTree(side == tick.Buy),
		index: make(map[int32]*OrderNode),
	}
}

// Side returns which side of the market this book represents.
func (b *Book) Side() tick.Side {
	return b.side
}

// Add appends order to the tail of its price level's queue, creating the
// level if absent. Fails if the id is already indexed on this book.
// Time complexity: O(log L) level lookup + O(1) insertion.
func (b *Book) Add(order *tick.Order) error {
	if _, exists := b.index[order.ID]; exists {
		return fmt.Errorf("order %d already resting on this side", order.ID)
	}

	level := b.tree.Get(order.PriceTicks)
	if level == nil {
		level = NewPriceLevel(order.PriceTicks)
		b.tree.Insert(level)
	}

	node := level.Append(order)
	b.index[order.ID] = node
	return nil
}

// Remove takes the order with id out of the book, deleting its price
// level if the queue becomes empty. Returns (nil, false) if not present.
// Time complexity: O(1) average.
func (b *Book) Remove(id int32) (*tick.Order, bool) {
	node, exists := b.index[id]
	if !exists {
		return nil, false
	}

	level := node.level
	order := node.Order

	level.Remove(node)
	delete(b.index, id)

	if level.IsEmpty() {
		b.tree.Delete(level.PriceTicks)
	}

	return order, true
}

// Cancel is sugar for Remove that discards the removed order.
func (b *Book) Cancel(id int32) bool {
	_, ok := b.Remove(id)
	return ok
}

// ConsumeBest removes the front order of the best level once it has been
// fully matched, deleting the level if it becomes empty.
func (b *Book) ConsumeBest() {
	level := b.tree.Min()
	if level == nil {
		return
	}

	order := level.PopFront()
	if order != nil {
		delete(b.index, order.ID)
	}

	if level.IsEmpty() {
		b.tree.Delete(level.PriceTicks)
	}
}

// ReduceBestHeadQuantity decrements the resting quantity of the best
// level's head order in place, after a partial fill, keeping the level's
// aggregate quantity in sync.
func (b *Book) ReduceBestHeadQuantity(delta int32) {
	level := b.tree.Min()
	if level == nil {
		return
	}
	level.ReduceQuantity(delta)
}

// MutateQuantity sets the resting order's Quantity in place, keeping
// its price level's aggregate and queue position unchanged. Used by a
// priority-preserving replace. No-op if id is not resting on this side.
func (b *Book) MutateQuantity(id int32, newQuantity int32) {
	node, ok := b.index[id]
	if !ok {
		return
	}
	delta := node.Order.Quantity - newQuantity
	node.Order.Quantity = newQuantity
	node.level.ReduceQuantity(delta)
}

// IsEmpty reports whether this side has no resting orders.
func (b *Book) IsEmpty() bool {
	return b.tree.IsEmpty()
}

// BestLevel returns the best price level on this side, or (nil, false) if
// empty. Time complexity: O(1).
func (b *Book) BestLevel() (*PriceLevel, bool) {
	level := b.tree.Min()
	if level == nil {
		return nil, false
	}
	return level, true
}

// BestPriceTicks returns the best resting price. Precondition: the book
// is non-empty; callers must check IsEmpty/BestLevel first.
func (b *Book) BestPriceTicks() int64 {
	level := b.tree.Min()
	if level == nil {
		panic("orderbook: BestPriceTicks called on empty book")
	}
	return level.PriceTicks
}

// BestOrder returns the head of the best level's queue. Precondition: the
// book is non-empty.
func (b *Book) BestOrder() *tick.Order {
	level := b.tree.Min()
	if level == nil {
		panic("orderbook: BestOrder called on empty book")
	}
	head := level.Head()
	if head == nil {
		panic("orderbook: best level has no resting orders")
	}
	return head.Order
}

// Contains reports whether an order with this id is resting on this side.
func (b *Book) Contains(id int32) bool {
	_, ok := b.index[id]
	return ok
}

// Find returns the resting order with this id, if any.
func (b *Book) Find(id int32) (*tick.Order, bool) {
	node, ok := b.index[id]
	if !ok {
		return nil, false
	}
	return node.Order, true
}

// Depth returns at most n best levels, best-first, each with its
// aggregate resting quantity. n<=0 returns every level.
func (b *Book) Depth(n int) []tick.BookLevel {
	result := make([]tick.BookLevel, 0)
	count := 0

	b.tree.ForEach(func(level *PriceLevel) bool {
		result = append(result, tick.BookLevel{
			PriceTicks:        level.PriceTicks,
			AggregateQuantity: level.TotalQuantity,
		})
		count++
		if n > 0 && count >= n {
			return false
		}
		return true
	})

	return result
}

// LevelCount returns the number of distinct price levels on this side.
func (b *Book) LevelCount() int {
	return b.tree.Size()
}

// OrderCount returns the number of resting orders on this side.
func (b *Book) OrderCount() int {
	return len(b.index)
}
