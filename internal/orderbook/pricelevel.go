// Package orderbook implements a single-sided, price-time-priority limit
// order book: an ordered map from price to a FIFO queue of orders, plus an
// auxiliary index for O(1) lookup and cancellation by order id.
package orderbook

import (
	"container/list"

	"github.com/rishav/lobx/internal/tick"
)

// OrderNode wraps a resting order together with its position in its
// price level's queue. The id->node index in Book holds onto this
// directly, so a node's queue position stays addressable (via elem)
// across insertions and removals happening elsewhere in the queue,
// which is what makes cancel-by-id O(1).
type OrderNode struct {
	Order *tick.Order
	elem  *list.Element
	level *PriceLevel // back-pointer, used for O(1) removal bookkeeping
}

// Next returns the next node in the queue, or nil at the tail.
func (n *OrderNode) Next() *OrderNode {
	next := n.elem.Next()
	if next == nil {
		return nil
	}
	return next.Value.(*OrderNode)
}

// PriceLevel represents all resting orders at a single price.
//
// Orders at the same price are stored in arrival order (FIFO), backed
// by container/list so the queue's own Element pointers — not a
// hand-rolled prev/next pair — are what gives each OrderNode a stable
// position. TotalQuantity is maintained incrementally so depth queries
// never need to walk the queue.
type PriceLevel struct {
	PriceTicks    int64 // price in ticks (1/10000 of one price unit)
	queue         *list.List
	TotalQuantity int32 // sum of resting quantity at this level
}

// NewPriceLevel creates a new empty price level.
func NewPriceLevel(priceTicks int64) *PriceLevel {
	return &PriceLevel{PriceTicks: priceTicks, queue: list.New()}
}

// Count returns the number of orders at this price level.
func (pl *PriceLevel) Count() int {
	return pl.queue.Len()
}

// IsEmpty returns true if there are no orders at this level.
func (pl *PriceLevel) IsEmpty() bool {
	return pl.queue.Len() == 0
}

// Head returns the first order node (highest priority), or nil.
func (pl *PriceLevel) Head() *OrderNode {
	front := pl.queue.Front()
	if front == nil {
		return nil
	}
	return front.Value.(*OrderNode)
}

// Append adds an order to the end of the queue (lowest priority at this
// price). Returns the OrderNode, which the book's id index keeps for O(1)
// future cancellation. Time complexity: O(1).
func (pl *PriceLevel) Append(order *tick.Order) *OrderNode {
	node := &OrderNode{Order: order, level: pl}
	node.elem = pl.queue.PushBack(node)
	pl.TotalQuantity += order.Quantity
	return node
}

// Remove removes a node from the queue. Time complexity: O(1).
func (pl *PriceLevel) Remove(node *OrderNode) {
	if node == nil {
		return
	}
	pl.TotalQuantity -= node.Order.Quantity
	pl.queue.Remove(node.elem)
	node.level = nil
}

// PopFront removes and returns the first order (highest priority). Used
// once a resting order has been fully matched. Returns nil if the level
// is empty. Time complexity: O(1).
func (pl *PriceLevel) PopFront() *tick.Order {
	front := pl.queue.Front()
	if front == nil {
		return nil
	}

	node := front.Value.(*OrderNode)
	order := node.Order

	pl.TotalQuantity -= order.Quantity
	pl.queue.Remove(front)
	node.level = nil

	return order
}

// ReduceQuantity decrements TotalQuantity by delta, keeping the level's
// aggregate in sync when a resting order is partially filled in place.
func (pl *PriceLevel) ReduceQuantity(delta int32) {
	pl.TotalQuantity -= delta
}

// Orders returns every resting order at this level, oldest first. Used by
// depth/debug views only; allocates.
func (pl *PriceLevel) Orders() []*tick.Order {
	result := make([]*tick.Order, 0, pl.queue.Len())
	for e := pl.queue.Front(); e != nil; e = e.Next() {
		result = append(result, e.Value.(*OrderNode).Order)
	}
	return result
}
