package exchange

import (
	"time"

	"github.com/shopspring/decimal"

	"exchange-core/internal/orderbook"
)

// SliceParams configures how a TWAP/VWAP parent order is sliced into child
// orders. The core spec names TWAP/VWAP as order types but does not specify
// an execution algorithm (see SPEC_FULL.md's §4.E/4.F additions); this is
// the minimal scheduling primitive, with sizing policy left to the caller.
type SliceParams struct {
	// Slices is how many child orders the parent quantity splits into.
	Slices int
	// Interval is the real-time gap between successive child clips.
	Interval time.Duration
	// LimitPrice, if positive, sends each clip as a LIMIT order at this
	// price; zero sends each clip as MARKET.
	LimitPrice decimal.Decimal
}

// twapScheduler runs TWAP/VWAP parent orders as a bounded series of child
// clips on a real-time ticker. It does not attempt to synchronize clip
// timing to a BACKTEST virtual clock: each clip still timestamps through
// the facade's shared clock, but the pacing between clips is wall-clock,
// a known simplification documented in the repository's design notes.
type twapScheduler struct {
	facade *Facade
}

func newTwapScheduler(f *Facade) *twapScheduler {
	return &twapScheduler{facade: f}
}

// start validates the parent request, accepts it immediately as a NEW
// order with no trades, and schedules its child clips in the background.
// The parent never itself rests on the book or holds a balance lock;
// each child clip locks and settles independently through PlaceOrder.
func (s *twapScheduler) start(info SymbolInfo, req *OrderRequest) (*orderbook.Result, error) {
	if req.Algo == nil || req.Algo.Slices <= 0 {
		return nil, &ValidationError{Field: "algo", Reason: "TWAP/VWAP requires slices > 0"}
	}

	parent := &orderbook.Order{
		ClientOrderID: req.ClientOrderID,
		UserID:        req.UserID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Quantity:      req.Quantity,
		Status:        orderbook.StatusNew,
		Timestamp:     s.facade.clock.NowMS(),
	}

	clipQty := req.Quantity.Div(decimal.NewFromInt(int64(req.Algo.Slices)))
	go s.run(info, req, parent, clipQty)

	return &orderbook.Result{Order: parent, Accepted: true}, nil
}

func (s *twapScheduler) run(info SymbolInfo, req *OrderRequest, parent *orderbook.Order, clipQty decimal.Decimal) {
	childType := orderbook.Market
	if req.Algo.LimitPrice.IsPositive() {
		childType = orderbook.Limit
	}

	filled := decimal.Zero
	sent := decimal.Zero
	for i := 0; i < req.Algo.Slices; i++ {
		if i > 0 && req.Algo.Interval > 0 {
			time.Sleep(req.Algo.Interval)
		}

		qty := clipQty
		if i == req.Algo.Slices-1 {
			qty = req.Quantity.Sub(sent) // last clip mops up rounding remainder
		}
		if !qty.IsPositive() {
			continue
		}
		sent = sent.Add(qty)

		child := &OrderRequest{
			Symbol:      req.Symbol,
			UserID:      req.UserID,
			Side:        req.Side,
			Type:        childType,
			TimeInForce: orderbook.IOC,
			Price:       req.Algo.LimitPrice,
			Quantity:    qty,
		}
		result, err := s.facade.PlaceOrder(child)
		if err != nil {
			continue
		}
		filled = filled.Add(result.Order.FilledQuantity)
	}

	parent.FilledQuantity = filled
	if filled.GreaterThanOrEqual(parent.Quantity) {
		parent.Status = orderbook.StatusFilled
	} else {
		parent.Status = orderbook.StatusExpired
	}
	s.facade.publishOrderEvent(parent)
}
