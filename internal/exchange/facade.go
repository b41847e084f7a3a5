// Package exchange is the facade binding the order book, matching engine,
// account ledger and event bus into one coherent operation set: it is the
// only thing the REST and WebSocket edges call into.
package exchange

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"exchange-core/internal/account"
	"exchange-core/internal/clock"
	"exchange-core/internal/events"
	"exchange-core/internal/klines"
	"exchange-core/internal/matching"
	"exchange-core/internal/orderbook"
	"exchange-core/internal/pricecache"
)

// orderLock tracks how much of one order's admission-time reservation is
// still outstanding, so a terminal order (filled, canceled, expired) can
// release exactly the unused portion instead of guessing from balances.
type orderLock struct {
	mu      sync.Mutex
	asset   string
	locked  decimal.Decimal
	settled decimal.Decimal
}

func (l *orderLock) remaining() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.locked.Sub(l.settled)
}

func (l *orderLock) addSettled(amount decimal.Decimal) {
	l.mu.Lock()
	l.settled = l.settled.Add(amount)
	l.mu.Unlock()
}

// orderIndex remembers, per order id, what is needed to route a bare
// cancel/lookup call to the right symbol and owner without a linear scan.
type orderIndex struct {
	ID     uint64
	Symbol string
	UserID string
}

// Facade is the exchange's single entry point: construct one per process,
// register symbols with AddSymbol, then drive it with PlaceOrder /
// CancelOrder / the read-only query methods.
type Facade struct {
	clock    *clock.Clock
	bus      *events.Bus
	accounts *account.Manager
	engine   *matching.Engine
	symbols  *symbolRegistry
	klines   *klines.Aggregator
	quotes   *pricecache.Cache
	trades   *tradeHistory

	admission sync.Map // symbol string -> *sync.Mutex
	locks     sync.Map // orderID uint64 -> *orderLock
	index     sync.Map // orderID uint64 -> orderIndex
	byClient  sync.Map // userID+"|"+clientOrderID string -> orderID uint64

	twap *twapScheduler
}

// New constructs a facade. clk, bus and accounts are owned by the caller
// (typically main) and shared with the REST/WS edges; the facade does not
// start or stop them.
func New(clk *clock.Clock, bus *events.Bus, accounts *account.Manager) *Facade {
	f := &Facade{
		clock:    clk,
		bus:      bus,
		accounts: accounts,
		engine:   matching.NewEngine(clk),
		symbols:  newSymbolRegistry(),
		klines:   klines.NewAggregator(0),
		quotes:   pricecache.New(),
		trades:   newTradeHistory(),
	}
	f.twap = newTwapScheduler(f)
	return f
}

// AddSymbol registers a tradable pair with its asset split, precision
// filters and fee schedule (nil fees defaults to account.ZeroFees).
func (f *Facade) AddSymbol(info SymbolInfo, fees account.FeeSchedule) {
	f.engine.AddSymbol(info.Symbol)
	f.symbols.add(info, fees)
	f.admission.Store(info.Symbol, &sync.Mutex{})
}

// Symbols returns every registered symbol's info, for /exchangeInfo.
func (f *Facade) Symbols() []SymbolInfo { return f.symbols.all() }

// Klines exposes the trade-history candle aggregator for /klines.
func (f *Facade) Klines() *klines.Aggregator { return f.klines }

// MyTrades returns userID's fills, optionally scoped to symbol and
// truncated to limit (0 means unbounded), for /api/v3/myTrades.
func (f *Facade) MyTrades(userID, symbol string, limit int) []TradeRecord {
	return f.trades.forUser(userID, symbol, limit)
}

// Quotes exposes the last-price/top-of-book cache for read-mostly callers
// (the REST /ticker/price endpoint) that should not contend with the
// matching engine's per-symbol lock.
func (f *Facade) Quotes() *pricecache.Cache { return f.quotes }

// Bus exposes the shared event bus so the WS gateway can subscribe.
func (f *Facade) Bus() *events.Bus { return f.bus }

// Clock exposes the shared process clock for /time.
func (f *Facade) Clock() *clock.Clock { return f.clock }

func (f *Facade) admissionLock(symbol string) *sync.Mutex {
	v, _ := f.admission.Load(symbol)
	m, _ := v.(*sync.Mutex)
	return m
}

// OrderRequest is the edge-agnostic shape of a place-order call; the REST
// handler fills this in from the JSON body.
type OrderRequest struct {
	Symbol         string
	UserID         string
	ClientOrderID  string
	Side           orderbook.Side
	Type           orderbook.Type
	TimeInForce    orderbook.TimeInForce
	STP            orderbook.SelfTradePrevention
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	QuoteOrderQty  decimal.Decimal
	StopPrice      decimal.Decimal
	TrailAmount    decimal.Decimal
	TrailIsPercent bool
	DisplayQty     decimal.Decimal

	// Algo, set only for TWAP/VWAP, describes how the parent quantity is
	// sliced into child orders. Nil for every other type.
	Algo *SliceParams
}

// validate checks the request against the symbol registry and the basic
// field invariants §3 requires, without touching balances or the book.
func (f *Facade) validate(req *OrderRequest) (SymbolInfo, error) {
	info, err := f.symbols.get(req.Symbol)
	if err != nil {
		return SymbolInfo{}, &ValidationError{Field: "symbol", Reason: "unknown symbol"}
	}
	if req.UserID == "" {
		return SymbolInfo{}, &ValidationError{Field: "userId", Reason: "required"}
	}
	if req.Type != orderbook.Market && !req.Quantity.IsPositive() && !req.QuoteOrderQty.IsPositive() {
		return SymbolInfo{}, &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	if (req.Type == orderbook.Limit || req.Type == orderbook.StopLimit) && !req.Price.IsPositive() {
		return SymbolInfo{}, &ValidationError{Field: "price", Reason: "must be positive for LIMIT/STOP_LIMIT"}
	}
	if req.Type.IsStopFamily() && !req.StopPrice.IsPositive() {
		return SymbolInfo{}, &ValidationError{Field: "stopPrice", Reason: "required for STOP family"}
	}
	if req.Quantity.IsNegative() || req.Price.IsNegative() {
		return SymbolInfo{}, &ValidationError{Field: "quantity/price", Reason: "must not be negative"}
	}
	return info, nil
}

// lockSizingPrice is the price used to size the admission-time reservation:
// the limit price for LIMIT/STOP_LIMIT, and the stop's trigger price as a
// conservative stand-in for STOP/TRAILING_STOP orders that will only
// acquire a real execution price once activated (§4.F's MARKET synthesis
// happens after activation, so no execution price exists yet at admission).
func lockSizingPrice(req *OrderRequest, lastPrice decimal.Decimal) decimal.Decimal {
	switch {
	case req.Price.IsPositive():
		return req.Price
	case req.StopPrice.IsPositive():
		return req.StopPrice
	default:
		return lastPrice
	}
}

// PlaceOrder validates, reserves funds, admits the order to the matching
// engine, settles every fill it (or any stop it triggers) produces, and
// publishes ORDER/FILL/ACCOUNT events in that order. One admission runs at
// a time per symbol; cross-symbol orders proceed concurrently.
func (f *Facade) PlaceOrder(req *OrderRequest) (*orderbook.Result, error) {
	info, err := f.validate(req)
	if err != nil {
		return nil, err
	}

	if req.Type == orderbook.TWAP || req.Type == orderbook.VWAP {
		return f.twap.start(info, req)
	}

	feeRate := f.symbols.feeSchedule(req.Symbol)(req.Side, orderbook.Taker)
	sizingPrice := lockSizingPrice(req, f.engine.LastPrice(req.Symbol))
	asset, amount, err := f.accounts.LockForOrder(req.UserID, req.Side, info.BaseAsset, info.QuoteAsset, sizingPrice, req.Quantity, req.QuoteOrderQty, feeRate)
	if err != nil {
		return nil, &InsufficientFundsError{UserID: req.UserID, Asset: asset}
	}

	order := &orderbook.Order{
		ClientOrderID:  req.ClientOrderID,
		UserID:         req.UserID,
		Symbol:         req.Symbol,
		Side:           req.Side,
		Type:           req.Type,
		TimeInForce:    req.TimeInForce,
		STP:            req.STP,
		Price:          req.Price,
		Quantity:       req.Quantity,
		QuoteOrderQty:  req.QuoteOrderQty,
		StopPrice:      req.StopPrice,
		TrailAmount:    req.TrailAmount,
		TrailIsPercent: req.TrailIsPercent,
		DisplayQty:     req.DisplayQty,
	}

	mu := f.admissionLock(req.Symbol)
	mu.Lock()
	result := f.engine.ProcessOrder(order)
	mu.Unlock()

	if !result.Accepted {
		f.accounts.Unlock(req.UserID, asset, amount)
		return result, &OrderRejectedError{Reason: order.RejectReason}
	}

	// A FOK order that cannot fill in full is an admission-time rejection
	// from the caller's point of view even though the engine marks it
	// Accepted (it was a structurally valid order, just unfillable). No
	// trade, no resting order, and the reservation taken above is released.
	if order.RejectReason == string(matching.RejectFOKUnfillable) {
		f.accounts.Unlock(req.UserID, asset, amount)
		return result, &OrderRejectedError{Reason: order.RejectReason}
	}

	lock := &orderLock{asset: asset, locked: amount}
	f.locks.Store(order.ID, lock)
	f.index.Store(order.ID, orderIndex{ID: order.ID, Symbol: req.Symbol, UserID: req.UserID})
	if req.ClientOrderID != "" {
		f.byClient.Store(req.UserID+"|"+req.ClientOrderID, order.ID)
	}
	if order.Status.IsLive() {
		f.accounts.AddOpenOrder(req.UserID, order.ID)
	}

	f.settleResult(info, result)
	return result, nil
}

// settleResult walks a ProcessOrder result (and any activated stops it
// triggered, transitively) publishing events and settling fills, then
// releases any admission-time reservation left over once an order reaches
// a terminal state.
func (f *Facade) settleResult(info SymbolInfo, result *orderbook.Result) {
	f.publishOrderEvent(result.Order)

	// result.Trades ends with every activated stop's trades; those are
	// settled by the recursive call below, so only the leading own trades
	// are settled here.
	own := len(result.Trades)
	for _, sub := range result.Activated {
		own -= len(sub.Trades)
	}
	for i := 0; i < own; i++ {
		f.settleTrade(info, &result.Trades[i])
	}

	f.releaseIfTerminal(result.Order)

	for _, maker := range result.ExpiredMakers {
		f.publishOrderEvent(maker)
		f.releaseIfTerminal(maker)
	}

	for _, sub := range result.Activated {
		f.index.Store(sub.Order.ID, orderIndex{ID: sub.Order.ID, Symbol: info.Symbol, UserID: sub.Order.UserID})
		f.settleResult(info, sub)
	}
}

func (f *Facade) publishOrderEvent(o *orderbook.Order) {
	f.bus.Publish(events.Event{
		Type: events.TypeOrder,
		Data: events.OrderEvent{
			OrderID:       fmt.Sprintf("%d", o.ID),
			ClientOrderID: o.ClientOrderID,
			UserID:        o.UserID,
			Symbol:        o.Symbol,
			Side:          o.Side.String(),
			Type:          o.Type.String(),
			Status:        o.Status.String(),
			Price:         o.Price.String(),
			Quantity:      o.Quantity.String(),
			FilledQty:     o.FilledQuantity.String(),
		},
	})
}

func (f *Facade) publishFillEvent(symbol string, t *orderbook.Trade) {
	f.bus.Publish(events.Event{
		Type: events.TypeFill,
		Data: events.FillEvent{
			TradeID:       fmt.Sprintf("%d", t.ID),
			Symbol:        symbol,
			Price:         t.Price.String(),
			Quantity:      t.Quantity.String(),
			BuyerOrderID:  fmt.Sprintf("%d", t.BuyOrderID),
			SellerOrderID: fmt.Sprintf("%d", t.SellOrderID),
			BuyerUserID:   t.BuyerUserID,
			SellerUserID:  t.SellerUserID,
			BuyerIsMaker:  t.BuyerIsMaker,
		},
	})
}

func (f *Facade) publishAccountEvent(userID, asset, reason string) {
	bal := f.accounts.Balance(userID, asset)
	f.bus.Publish(events.Event{
		Type: events.TypeAccount,
		Data: events.AccountEvent{
			UserID: userID,
			Asset:  asset,
			Free:   bal.Free.String(),
			Locked: bal.Locked.String(),
			Reason: reason,
		},
	})
}

// settleTrade performs the two-sided transaction §4.D specifies: seller
// settle(base,qty)+credit(quote,qty*price-fee); buyer settle(quote,
// qty*price)+credit(base,qty-fee_base). Fee rates are looked up per role
// (the maker side is whichever order was already resting).
func (f *Facade) settleTrade(info SymbolInfo, t *orderbook.Trade) {
	fees := f.symbols.feeSchedule(info.Symbol)
	buyerRole, sellerRole := orderbook.Taker, orderbook.Maker
	if t.BuyerIsMaker {
		buyerRole, sellerRole = orderbook.Maker, orderbook.Taker
	}

	notional := t.Quantity.Mul(t.Price)

	buyerFee := info.roundBase(t.Quantity.Mul(fees(orderbook.Buy, buyerRole)))
	sellerFee := info.roundQuote(notional.Mul(fees(orderbook.Sell, sellerRole)))

	_ = f.accounts.Settle(t.BuyerUserID, info.QuoteAsset, notional)
	_ = f.accounts.Credit(t.BuyerUserID, info.BaseAsset, t.Quantity.Sub(buyerFee))

	_ = f.accounts.Settle(t.SellerUserID, info.BaseAsset, t.Quantity)
	_ = f.accounts.Credit(t.SellerUserID, info.QuoteAsset, notional.Sub(sellerFee))

	if l, ok := f.lockFor(t.BuyOrderID); ok {
		l.addSettled(notional)
	}
	if l, ok := f.lockFor(t.SellOrderID); ok {
		l.addSettled(t.Quantity)
	}

	f.refreshQuote(info.Symbol, t.Price)
	f.klines.RecordTrade(info.Symbol, t.Price, t.Quantity, t.Timestamp)

	f.trades.record(t.BuyerUserID, TradeRecord{TradeID: t.ID, OrderID: t.BuyOrderID, Symbol: info.Symbol, Price: t.Price, Quantity: t.Quantity, Side: orderbook.Buy, IsMaker: t.BuyerIsMaker, Time: t.Timestamp})
	f.trades.record(t.SellerUserID, TradeRecord{TradeID: t.ID, OrderID: t.SellOrderID, Symbol: info.Symbol, Price: t.Price, Quantity: t.Quantity, Side: orderbook.Sell, IsMaker: !t.BuyerIsMaker, Time: t.Timestamp})

	f.publishFillEvent(info.Symbol, t)
	f.publishAccountEvent(t.BuyerUserID, info.QuoteAsset, "FILL")
	f.publishAccountEvent(t.BuyerUserID, info.BaseAsset, "FILL")
	f.publishAccountEvent(t.SellerUserID, info.BaseAsset, "FILL")
	f.publishAccountEvent(t.SellerUserID, info.QuoteAsset, "FILL")
}

// refreshQuote updates the price cache's last-trade price and current
// top-of-book together, so a /ticker/price read right after a trade never
// shows a last price alongside a stale bid/ask from before that fill
// moved the book.
func (f *Facade) refreshQuote(symbol string, lastPrice decimal.Decimal) {
	book := f.engine.Book(symbol)
	q := pricecache.Quote{LastPrice: lastPrice}
	if book != nil {
		if bid := book.BestBid(); bid != nil {
			q.BestBid = bid.Price
		}
		if ask := book.BestAsk(); ask != nil {
			q.BestAsk = ask.Price
		}
	}
	f.quotes.Set(symbol, q)
}

func (f *Facade) lockFor(orderID uint64) (*orderLock, bool) {
	v, ok := f.locks.Load(orderID)
	if !ok {
		return nil, false
	}
	l, _ := v.(*orderLock)
	return l, l != nil
}

// releaseIfTerminal unlocks whatever portion of an order's admission-time
// reservation was never settled, once the order reaches a terminal state.
// Live (resting or untriggered) orders are left untouched.
func (f *Facade) releaseIfTerminal(o *orderbook.Order) {
	if o.Status.IsLive() {
		return
	}
	l, ok := f.lockFor(o.ID)
	if !ok {
		return
	}
	leftover := l.remaining()
	if leftover.IsPositive() {
		_ = f.accounts.Unlock(o.UserID, l.asset, leftover)
		f.publishAccountEvent(o.UserID, l.asset, string(o.Status))
	}
	f.locks.Delete(o.ID)
	f.accounts.RemoveOpenOrder(o.UserID, o.ID)
}

// CancelOrder cancels a resting or stopped order, unlocking its unused
// reservation. restriction narrows which live states are cancellable.
func (f *Facade) CancelOrder(symbol string, orderID uint64, userID string, restriction orderbook.CancelRestriction) (*orderbook.Order, error) {
	existing := f.engine.GetOrder(symbol, orderID)
	if existing == nil {
		return nil, &OrderNotFoundError{OrderID: orderID}
	}
	if existing.UserID != userID {
		return nil, &OrderNotFoundError{OrderID: orderID}
	}
	if !existing.Status.IsLive() {
		return nil, &CancelRejectedError{OrderID: orderID, Reason: "order is not live"}
	}
	switch restriction {
	case orderbook.CancelOnlyNew:
		if existing.Status != orderbook.StatusNew {
			return nil, &CancelRejectedError{OrderID: orderID, Reason: "order already partially filled"}
		}
	case orderbook.CancelOnlyPartiallyFilled:
		if existing.Status != orderbook.StatusPartiallyFilled {
			return nil, &CancelRejectedError{OrderID: orderID, Reason: "order not partially filled"}
		}
	}

	mu := f.admissionLock(symbol)
	mu.Lock()
	canceled, err := f.engine.CancelOrder(symbol, orderID)
	mu.Unlock()
	if err != nil {
		return nil, &OrderNotFoundError{OrderID: orderID}
	}

	f.publishOrderEvent(canceled)
	f.releaseIfTerminal(canceled)
	return canceled, nil
}

// CancelByClientOrderID resolves origClientOrderId to an order id for
// userID before delegating to CancelOrder.
func (f *Facade) CancelByClientOrderID(symbol, userID, clientOrderID string, restriction orderbook.CancelRestriction) (*orderbook.Order, error) {
	v, ok := f.byClient.Load(userID + "|" + clientOrderID)
	if !ok {
		return nil, &OrderNotFoundError{}
	}
	return f.CancelOrder(symbol, v.(uint64), userID, restriction)
}

// GetOrder looks up an order by id, scoped to symbol.
func (f *Facade) GetOrder(symbol string, orderID uint64) (*orderbook.Order, error) {
	o := f.engine.GetOrder(symbol, orderID)
	if o == nil {
		return nil, &OrderNotFoundError{OrderID: orderID}
	}
	return o, nil
}

// OpenOrders returns a user's currently live orders across the symbols
// they have open orders in.
func (f *Facade) OpenOrders(userID string) []*orderbook.Order {
	ids := f.accounts.OpenOrderIDs(userID)
	out := make([]*orderbook.Order, 0, len(ids))
	for _, id := range ids {
		v, ok := f.index.Load(id)
		if !ok {
			continue
		}
		idx := v.(orderIndex)
		if o := f.engine.GetOrder(idx.Symbol, id); o != nil {
			out = append(out, o)
		}
	}
	return out
}

// Depth returns up to levels price levels on each side of symbol's book.
func (f *Facade) Depth(symbol string, levels int) (bids, asks []*orderbook.PriceLevel, err error) {
	book := f.engine.Book(symbol)
	if book == nil {
		return nil, nil, &ValidationError{Field: "symbol", Reason: "unknown symbol"}
	}
	return book.BidDepth(levels), book.AskDepth(levels), nil
}

// AccountSnapshot returns every asset balance a user holds.
func (f *Facade) AccountSnapshot(userID string) map[string]account.Balance {
	return f.accounts.Balances(userID)
}

// TestOrder validates and reports what an order would look like on
// admission without mutating the book or any balance.
func (f *Facade) TestOrder(req *OrderRequest) (*orderbook.Order, error) {
	if _, err := f.validate(req); err != nil {
		return nil, err
	}
	return &orderbook.Order{
		ClientOrderID: req.ClientOrderID,
		UserID:        req.UserID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		TimeInForce:   req.TimeInForce,
		STP:           req.STP,
		Price:         req.Price,
		Quantity:      req.Quantity,
		QuoteOrderQty: req.QuoteOrderQty,
		StopPrice:     req.StopPrice,
		Status:        orderbook.StatusNew,
	}, nil
}
