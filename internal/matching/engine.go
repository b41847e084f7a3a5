// Package matching implements price-time priority order matching: one
// Engine per process, one order book per symbol. ProcessOrder is the
// single entry point; it is safe only when called from one goroutine per
// symbol (the exchange facade serializes admission per symbol to uphold
// this).
package matching

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"exchange-core/internal/clock"
	"exchange-core/internal/orderbook"
)

// RejectCode enumerates why ProcessOrder refused an order.
type RejectCode string

const (
	RejectNone                  RejectCode = ""
	RejectUnknownSymbol         RejectCode = "UNKNOWN_SYMBOL"
	RejectInvalidQuantity       RejectCode = "INVALID_QUANTITY"
	RejectInvalidPrice          RejectCode = "INVALID_PRICE"
	RejectInsufficientLiquidity RejectCode = "INSUFFICIENT_LIQUIDITY"
	RejectFOKUnfillable         RejectCode = "FOK_UNFILLABLE"
	RejectSelfTrade             RejectCode = "SELF_TRADE"
)

// Engine holds one order book and one stop table per symbol, plus the
// global id generators every order and trade draws from.
type Engine struct {
	mu        sync.RWMutex
	books     map[string]*orderbook.Book
	stops     map[string]*stopTable
	lastPrice map[string]decimal.Decimal

	clock *clock.Clock

	sequenceNum uint64
	tradeID     uint64
	orderID     uint64
}

// NewEngine creates an engine backed by clk for timestamps. A nil clk is
// invalid; pass clock.New() if the caller has no shared clock.
func NewEngine(clk *clock.Clock) *Engine {
	return &Engine{
		books:     make(map[string]*orderbook.Book),
		stops:     make(map[string]*stopTable),
		lastPrice: make(map[string]decimal.Decimal),
		clock:     clk,
	}
}

// AddSymbol registers a tradable symbol, creating its book and stop table.
// Idempotent.
func (e *Engine) AddSymbol(symbol string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.books[symbol]; !ok {
		e.books[symbol] = orderbook.NewBook(symbol)
		e.stops[symbol] = newStopTable()
	}
}

// Book returns the order book for symbol, or nil if unregistered.
func (e *Engine) Book(symbol string) *orderbook.Book {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.books[symbol]
}

// Symbols returns every registered symbol.
func (e *Engine) Symbols() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.books))
	for s := range e.books {
		out = append(out, s)
	}
	return out
}

// LastPrice returns the last traded price for symbol, or zero if none yet.
func (e *Engine) LastPrice(symbol string) decimal.Decimal {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastPrice[symbol]
}

// NextOrderID allocates a globally unique order id.
func (e *Engine) NextOrderID() uint64 { return atomic.AddUint64(&e.orderID, 1) }

func (e *Engine) nextTradeID() uint64  { return atomic.AddUint64(&e.tradeID, 1) }
func (e *Engine) nextSequence() uint64 { return atomic.AddUint64(&e.sequenceNum, 1) }

// ProcessOrder runs the full admission algorithm: validate, route
// STOP-family orders into the stop table, synthesize MARKET pricing,
// match, apply time-in-force to any remainder, then sweep the stop table
// for triggers crossed by the trades just produced.
func (e *Engine) ProcessOrder(order *orderbook.Order) *orderbook.Result {
	result := &orderbook.Result{Order: order, Accepted: false}

	book := e.Book(order.Symbol)
	if book == nil {
		order.Status = orderbook.StatusRejected
		order.RejectReason = string(RejectUnknownSymbol)
		return result
	}
	if order.Type != orderbook.Market && !order.Quantity.IsPositive() && !order.QuoteOrderQty.IsPositive() {
		order.Status = orderbook.StatusRejected
		order.RejectReason = string(RejectInvalidQuantity)
		return result
	}
	if (order.Type == orderbook.Limit || order.Type == orderbook.StopLimit) && !order.Price.IsPositive() {
		order.Status = orderbook.StatusRejected
		order.RejectReason = string(RejectInvalidPrice)
		return result
	}

	if order.ID == 0 {
		order.ID = e.NextOrderID()
	}
	order.SequenceNum = e.nextSequence()
	if order.Timestamp == 0 {
		order.Timestamp = e.clock.NowMS()
	}

	if order.Type.IsStopFamily() {
		e.stopTableFor(order.Symbol).add(order)
		order.Status = orderbook.StatusNew
		result.Accepted = true
		return result
	}

	order.Status = orderbook.StatusNew
	result.Accepted = true

	trades, expiredMakers := e.matchOrder(order, book)
	result.Trades = trades
	result.ExpiredMakers = expiredMakers

	if order.Status == orderbook.StatusRejected {
		result.Accepted = false
		return result
	}

	if order.IsFilled() {
		order.Status = orderbook.StatusFilled
	} else if order.Status != orderbook.StatusExpired && order.FilledQuantity.IsPositive() {
		order.Status = orderbook.StatusPartiallyFilled
	}

	remaining := order.RemainingQuantity()
	if remaining.IsPositive() && order.Status != orderbook.StatusExpired {
		switch order.Type {
		case orderbook.Market:
			order.Status = orderbook.StatusExpired
			order.RejectReason = string(RejectInsufficientLiquidity)
		default:
			switch order.TimeInForce {
			case orderbook.IOC:
				order.Status = orderbook.StatusExpired
			case orderbook.FOK:
				order.Status = orderbook.StatusExpired
				order.RejectReason = string(RejectFOKUnfillable)
			default: // GTC
				e.restOnBook(order, book)
			}
		}
	}

	if len(trades) > 0 {
		last := trades[len(trades)-1]
		e.mu.Lock()
		e.lastPrice[order.Symbol] = last.Price
		e.mu.Unlock()

		triggered := e.stopTableFor(order.Symbol).sweep(last.Price)
		for _, stop := range triggered {
			activated := activateStop(stop, e.clock.NowMS())
			sub := e.ProcessOrder(activated)
			result.Trades = append(result.Trades, sub.Trades...)
			result.Activated = append(result.Activated, sub)
		}
	}

	return result
}

// restOnBook admits a GTC remainder onto the live book. ICEBERG orders
// rest in full; Order.VisibleQuantity keeps only DisplayQty visible to
// depth queries and to how much a single execution may take.
func (e *Engine) restOnBook(order *orderbook.Order, book *orderbook.Book) {
	_ = book.AddOrder(order)
}

// matchOrder crosses order against the opposite side of book until it is
// exhausted or the opposite side is no longer eligible. FOK feasibility is
// checked up front so a FOK order either fills in full here or produces no
// trades at all.
func (e *Engine) matchOrder(order *orderbook.Order, book *orderbook.Book) ([]orderbook.Trade, []*orderbook.Order) {
	var trades []orderbook.Trade
	var expiredMakers []*orderbook.Order

	limitPrice := effectiveLimitPrice(order)

	if order.TimeInForce == orderbook.FOK {
		if !canFillEntirely(order, book, limitPrice) {
			return trades, expiredMakers
		}
	}

	bestOpposite := book.BestAsk
	if order.Side == orderbook.Sell {
		bestOpposite = book.BestBid
	}

	for order.RemainingQuantity().IsPositive() {
		level := bestOpposite()
		if level == nil {
			break
		}
		if !priceEligible(order, level.Price, limitPrice) {
			break
		}

		node := level.Head()
		for node != nil && order.RemainingQuantity().IsPositive() {
			maker := node.Order
			next := node.Next()

			if order.UserID != "" && maker.UserID == order.UserID {
				switch order.STP {
				case orderbook.STPExpireTaker:
					order.Status = orderbook.StatusExpired
					return trades, expiredMakers
				case orderbook.STPExpireMaker:
					book.CancelOrder(maker.ID)
					maker.Status = orderbook.StatusExpired
					expiredMakers = append(expiredMakers, maker)
					node = next
					continue
				case orderbook.STPExpireBoth:
					book.CancelOrder(maker.ID)
					maker.Status = orderbook.StatusExpired
					expiredMakers = append(expiredMakers, maker)
					order.Status = orderbook.StatusExpired
					return trades, expiredMakers
				default: // STPNone: self-trading is disallowed outright
					order.Status = orderbook.StatusRejected
					order.RejectReason = string(RejectSelfTrade)
					return nil, nil
				}
			}

			fillQty := decimal.Min(order.RemainingQuantity(), maker.VisibleQuantity())

			trade := e.buildTrade(order, maker, level.Price, fillQty)
			trades = append(trades, trade)

			order.FilledQuantity = order.FilledQuantity.Add(fillQty)
			if err := book.ApplyFill(maker.ID, fillQty); err != nil {
				// maker vanished from the index concurrently with our own
				// read; nothing left to reconcile for this node.
				_ = err
			}
			if maker.IsFilled() {
				maker.Status = orderbook.StatusFilled
			} else {
				maker.Status = orderbook.StatusPartiallyFilled
			}

			node = next
		}
	}

	return trades, expiredMakers
}

func (e *Engine) buildTrade(taker, maker *orderbook.Order, price, qty decimal.Decimal) orderbook.Trade {
	buyOrderID, sellOrderID := taker.ID, maker.ID
	buyerUser, sellerUser := taker.UserID, maker.UserID
	if taker.Side == orderbook.Sell {
		buyOrderID, sellOrderID = maker.ID, taker.ID
		buyerUser, sellerUser = maker.UserID, taker.UserID
	}

	return orderbook.Trade{
		ID:           e.nextTradeID(),
		Symbol:       taker.Symbol,
		Price:        price,
		Quantity:     qty,
		BuyOrderID:   buyOrderID,
		SellOrderID:  sellOrderID,
		BuyerUserID:  buyerUser,
		SellerUserID: sellerUser,
		TakerSide:    taker.Side,
		BuyerIsMaker: taker.Side == orderbook.Sell,
		Timestamp:    e.clock.NowMS(),
		SequenceNum:  e.nextSequence(),
	}
}

// CancelOrder removes a resting or stopped order. The caller (the
// exchange facade) is responsible for ownership and restriction checks
// before calling this.
func (e *Engine) CancelOrder(symbol string, orderID uint64) (*orderbook.Order, error) {
	book := e.Book(symbol)
	if book == nil {
		return nil, fmt.Errorf("matching: unknown symbol %q", symbol)
	}
	if order := book.CancelOrder(orderID); order != nil {
		order.Status = orderbook.StatusCanceled
		return order, nil
	}
	if order := e.stopTableFor(symbol).remove(orderID); order != nil {
		order.Status = orderbook.StatusCanceled
		return order, nil
	}
	return nil, fmt.Errorf("matching: order %d not found", orderID)
}

// GetOrder looks up a resting or stopped order by id.
func (e *Engine) GetOrder(symbol string, orderID uint64) *orderbook.Order {
	book := e.Book(symbol)
	if book == nil {
		return nil
	}
	if o := book.GetOrder(orderID); o != nil {
		return o
	}
	return e.stopTableFor(symbol).get(orderID)
}

func (e *Engine) stopTableFor(symbol string) *stopTable {
	e.mu.RLock()
	st := e.stops[symbol]
	e.mu.RUnlock()
	return st
}

// effectiveLimitPrice returns the price MARKET orders match against: +Inf
// for BUY (any ask is acceptable), -Inf for SELL, represented here as a
// sentinel handled by priceEligible instead of an actual infinite decimal.
func effectiveLimitPrice(order *orderbook.Order) decimal.Decimal {
	return order.Price
}

func priceEligible(order *orderbook.Order, bookPrice, limitPrice decimal.Decimal) bool {
	if order.Type == orderbook.Market {
		return true
	}
	if order.Side == orderbook.Buy {
		return bookPrice.LessThanOrEqual(limitPrice)
	}
	return bookPrice.GreaterThanOrEqual(limitPrice)
}

// canFillEntirely walks the opposite side's depth (without mutating it) to
// decide whether a FOK order's full quantity is available at acceptable
// prices.
func canFillEntirely(order *orderbook.Order, book *orderbook.Book, limitPrice decimal.Decimal) bool {
	remaining := order.Quantity
	var levels []*orderbook.PriceLevel
	if order.Side == orderbook.Buy {
		levels = book.AskDepth(0)
	} else {
		levels = book.BidDepth(0)
	}

	for _, level := range levels {
		if !priceEligible(order, level.Price, limitPrice) {
			break
		}
		if level.TotalQty.GreaterThanOrEqual(remaining) {
			return true
		}
		remaining = remaining.Sub(level.TotalQty)
	}
	return false
}

