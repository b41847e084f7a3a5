package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Book maintains one symbol's bid and ask sides: two red-black trees of
// price levels plus a flat order-id index for O(1) cancel.
type Book struct {
	symbol string
	bids   *RBTree // buy orders, best (highest) price first
	asks   *RBTree // sell orders, best (lowest) price first
	orders map[uint64]*OrderNode
}

// NewBook creates an empty book for symbol.
func NewBook(symbol string) *Book {
	return &Book{
		symbol: symbol,
		bids:   NewRBTree(true),
		asks:   NewRBTree(false),
		orders: make(map[uint64]*OrderNode),
	}
}

func (b *Book) Symbol() string { return b.symbol }

// AddOrder inserts order into the appropriate side at its price, creating
// the price level if needed. Returns an error if the order id is already
// resting. O(log P).
func (b *Book) AddOrder(order *Order) error {
	if _, exists := b.orders[order.ID]; exists {
		return fmt.Errorf("orderbook: order %d already on book", order.ID)
	}

	tree := b.treeFor(order.Side)
	level := tree.Get(order.Price)
	if level == nil {
		level = NewPriceLevel(order.Price)
		tree.Insert(level)
	}

	node := level.Append(order)
	order.bookNode = node
	b.orders[order.ID] = node
	return nil
}

// CancelOrder removes an order from the book and returns it, or nil if it
// was not resting. O(1) plus O(log P) if its level empties out.
func (b *Book) CancelOrder(orderID uint64) *Order {
	node, exists := b.orders[orderID]
	if !exists {
		return nil
	}

	order := node.Order
	level := node.level
	tree := b.treeFor(order.Side)

	level.Remove(node)
	delete(b.orders, orderID)
	order.bookNode = nil

	if level.IsEmpty() {
		tree.Delete(level.Price)
	}
	return order
}

// GetOrder looks up a resting order by id. O(1).
func (b *Book) GetOrder(orderID uint64) *Order {
	node, exists := b.orders[orderID]
	if !exists {
		return nil
	}
	return node.Order
}

// BestBid returns the top bid level, or nil.
func (b *Book) BestBid() *PriceLevel { return b.bids.Min() }

// BestAsk returns the top ask level, or nil.
func (b *Book) BestAsk() *PriceLevel { return b.asks.Min() }

// Spread returns best ask minus best bid, or zero if either side is empty.
func (b *Book) Spread() decimal.Decimal {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == nil || ask == nil {
		return decimal.Zero
	}
	return ask.Price.Sub(bid.Price)
}

// MidPrice returns the midpoint of best bid and ask, or zero if either
// side is empty.
func (b *Book) MidPrice() decimal.Decimal {
	bid, ask := b.BestBid(), b.BestAsk()
	if bid == nil || ask == nil {
		return decimal.Zero
	}
	return bid.Price.Add(ask.Price).Div(decimal.NewFromInt(2))
}

func (b *Book) BidLevelCount() int { return b.bids.Size() }
func (b *Book) AskLevelCount() int { return b.asks.Size() }
func (b *Book) TotalOrders() int   { return len(b.orders) }

// BidDepth returns the top `levels` bid price levels, best first. levels<=0
// returns every level.
func (b *Book) BidDepth(levels int) []*PriceLevel { return depth(b.bids, levels) }

// AskDepth returns the top `levels` ask price levels, best first. levels<=0
// returns every level.
func (b *Book) AskDepth(levels int) []*PriceLevel { return depth(b.asks, levels) }

func depth(tree *RBTree, maxLevels int) []*PriceLevel {
	result := make([]*PriceLevel, 0)
	tree.ForEach(func(level *PriceLevel) bool {
		result = append(result, level)
		if maxLevels > 0 && len(result) >= maxLevels {
			return false
		}
		return true
	})
	return result
}

// ApplyFill records fillQty against a resting order, adjusting its level's
// TotalQty, and pops it off the book once fully filled. O(1).
//
// TotalQty is adjusted by the change in VisibleQuantity, not by fillQty
// directly: for an ordinary order the two are the same, but an ICEBERG
// maker's visible clip refreshes back up to DisplayQty after it is
// consumed, so its VisibleQuantity does not always shrink 1:1 with the
// fill.
func (b *Book) ApplyFill(orderID uint64, fillQty decimal.Decimal) error {
	node, exists := b.orders[orderID]
	if !exists {
		return fmt.Errorf("orderbook: order %d not found", orderID)
	}

	order := node.Order
	before := order.VisibleQuantity()
	order.FilledQuantity = order.FilledQuantity.Add(fillQty)
	after := order.VisibleQuantity()
	node.level.AdjustQuantity(after.Sub(before))

	if order.IsFilled() {
		b.CancelOrder(orderID)
	}
	return nil
}

func (b *Book) treeFor(side Side) *RBTree {
	if side == Buy {
		return b.bids
	}
	return b.asks
}
