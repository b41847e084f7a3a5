package matching

import (
	"sync"

	"github.com/shopspring/decimal"

	"exchange-core/internal/orderbook"
)

// stopTable holds STOP / STOP_LIMIT / TRAILING_STOP orders for one symbol,
// none of which touch the live book until their trigger price is crossed.
type stopTable struct {
	mu      sync.Mutex
	entries map[uint64]*orderbook.Order
}

func newStopTable() *stopTable {
	return &stopTable{entries: make(map[uint64]*orderbook.Order)}
}

func (st *stopTable) add(order *orderbook.Order) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if order.Type == orderbook.TrailingStop {
		order.StopPrice = initialTrailStop(order)
	}
	st.entries[order.ID] = order
}

func (st *stopTable) remove(orderID uint64) *orderbook.Order {
	st.mu.Lock()
	defer st.mu.Unlock()
	o, ok := st.entries[orderID]
	if !ok {
		return nil
	}
	delete(st.entries, orderID)
	return o
}

func (st *stopTable) get(orderID uint64) *orderbook.Order {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.entries[orderID]
}

// sweep checks every resting stop against the last traded price, ratchets
// TRAILING_STOP trigger prices as the market moves favorably, and returns
// (removing from the table) every stop that just triggered.
func (st *stopTable) sweep(lastPrice decimal.Decimal) []*orderbook.Order {
	st.mu.Lock()
	defer st.mu.Unlock()

	var triggered []*orderbook.Order
	for id, order := range st.entries {
		if order.Type == orderbook.TrailingStop {
			ratchetTrail(order, lastPrice)
		}
		if crossed(order, lastPrice) {
			triggered = append(triggered, order)
			delete(st.entries, id)
		}
	}
	return triggered
}

func crossed(order *orderbook.Order, lastPrice decimal.Decimal) bool {
	if order.Side == orderbook.Buy {
		return lastPrice.GreaterThanOrEqual(order.StopPrice)
	}
	return lastPrice.LessThanOrEqual(order.StopPrice)
}

// initialTrailStop sets a TRAILING_STOP's first trigger price: the order's
// own StopPrice, unchanged (no callback amount/percent is applied to it),
// or, when none was given, zero, left for the first sweep to establish via
// ratchetTrail.
func initialTrailStop(order *orderbook.Order) decimal.Decimal {
	if order.StopPrice.IsPositive() {
		return order.StopPrice
	}
	return decimal.Zero
}

// ratchetTrail moves a TRAILING_STOP's trigger price in the direction that
// only ever tightens against favorable market movement: for a SELL
// trailing stop, the trigger rises as price rises and never falls; for a
// BUY trailing stop (a trailing stop-entry or stop-loss on a short), the
// trigger falls as price falls and never rises.
func ratchetTrail(order *orderbook.Order, lastPrice decimal.Decimal) {
	callback := trailDistance(order, lastPrice)

	if order.Side == orderbook.Sell {
		candidate := lastPrice.Sub(callback)
		if order.trailExtreme.IsZero() || lastPrice.GreaterThan(order.trailExtreme) {
			order.trailExtreme = lastPrice
			if candidate.GreaterThan(order.StopPrice) || order.StopPrice.IsZero() {
				order.StopPrice = candidate
			}
		}
		return
	}

	candidate := lastPrice.Add(callback)
	if order.trailExtreme.IsZero() || lastPrice.LessThan(order.trailExtreme) {
		order.trailExtreme = lastPrice
		if order.StopPrice.IsZero() || candidate.LessThan(order.StopPrice) {
			order.StopPrice = candidate
		}
	}
}

func trailDistance(order *orderbook.Order, lastPrice decimal.Decimal) decimal.Decimal {
	if order.TrailIsPercent {
		return lastPrice.Mul(order.TrailAmount).Div(decimal.NewFromInt(100))
	}
	return order.TrailAmount
}

// activateStop converts a triggered stop into a live order: STOP becomes
// MARKET, STOP_LIMIT becomes LIMIT at its configured Price, TRAILING_STOP
// becomes MARKET. It re-enters ProcessOrder's admission path fresh, keeping
// the stop's original order ID so a caller that locked funds against that
// ID at admission can still settle against it after activation.
func activateStop(stop *orderbook.Order, nowMS int64) *orderbook.Order {
	activated := *stop
	switch stop.Type {
	case orderbook.Stop, orderbook.TrailingStop:
		activated.Type = orderbook.Market
	case orderbook.StopLimit:
		activated.Type = orderbook.Limit
	}
	activated.Timestamp = nowMS
	activated.Status = orderbook.StatusNew
	return &activated
}
