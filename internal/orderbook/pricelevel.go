package orderbook

import "github.com/shopspring/decimal"

// OrderNode is a node in the doubly-linked FIFO queue of orders resting at
// one price. The back-pointer to Order lets cancel mutate the order's
// bookNode directly, giving O(1) removal from anywhere in the queue.
type OrderNode struct {
	Order *Order
	prev  *OrderNode
	next  *OrderNode
	level *PriceLevel
}

// Next returns the following node in the queue, or nil at the tail.
func (n *OrderNode) Next() *OrderNode { return n.next }

// PriceLevel holds every order resting at a single price, in arrival
// order, so matching always dequeues from Head first (price-time
// priority). TotalQty tracks the sum of visible remaining quantity
// (Order.VisibleQuantity, so icebergs count only their displayed clip) at
// this level without a scan, for depth queries.
type PriceLevel struct {
	Price    decimal.Decimal
	head     *OrderNode
	tail     *OrderNode
	count    int
	TotalQty decimal.Decimal
}

// NewPriceLevel creates an empty level at price.
func NewPriceLevel(price decimal.Decimal) *PriceLevel {
	return &PriceLevel{Price: price, TotalQty: decimal.Zero}
}

func (pl *PriceLevel) Count() int      { return pl.count }
func (pl *PriceLevel) IsEmpty() bool   { return pl.count == 0 }
func (pl *PriceLevel) Head() *OrderNode { return pl.head }

// Append adds order to the tail of the queue (lowest priority at this
// price) and returns its node handle for O(1) cancellation. O(1).
func (pl *PriceLevel) Append(order *Order) *OrderNode {
	node := &OrderNode{Order: order, level: pl}

	if pl.tail == nil {
		pl.head = node
		pl.tail = node
	} else {
		node.prev = pl.tail
		pl.tail.next = node
		pl.tail = node
	}

	pl.count++
	pl.TotalQty = pl.TotalQty.Add(order.VisibleQuantity())
	return node
}

// Remove splices node out of the queue. O(1).
func (pl *PriceLevel) Remove(node *OrderNode) {
	if node == nil {
		return
	}

	pl.TotalQty = pl.TotalQty.Sub(node.Order.VisibleQuantity())
	pl.count--

	if node.prev != nil {
		node.prev.next = node.next
	} else {
		pl.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		pl.tail = node.prev
	}

	node.prev = nil
	node.next = nil
	node.level = nil
}

// PopFront removes and returns the order with highest priority at this
// level (arrival order), or nil if empty. O(1).
func (pl *PriceLevel) PopFront() *Order {
	if pl.head == nil {
		return nil
	}

	node := pl.head
	order := node.Order

	pl.TotalQty = pl.TotalQty.Sub(order.VisibleQuantity())
	pl.count--

	pl.head = node.next
	if pl.head != nil {
		pl.head.prev = nil
	} else {
		pl.tail = nil
	}

	node.next = nil
	node.level = nil

	return order
}

// AdjustQuantity updates TotalQty when a resting order at this level fills
// partially without leaving the queue.
func (pl *PriceLevel) AdjustQuantity(delta decimal.Decimal) {
	pl.TotalQty = pl.TotalQty.Add(delta)
}

// Orders returns every order at this level in priority order. Allocates;
// intended for depth snapshots, not the match loop.
func (pl *PriceLevel) Orders() []*Order {
	result := make([]*Order, 0, pl.count)
	for node := pl.head; node != nil; node = node.next {
		result = append(result, node.Order)
	}
	return result
}
