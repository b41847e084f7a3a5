// Package orderbook implements the price-time priority limit order book:
// a red-black tree of price levels, each holding a FIFO queue of resting
// orders, plus the domain types (Order, Trade, Side, ...) shared by the
// matching engine and the exchange facade.
package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Side is which side of the book an order rests on or crosses.
type Side int

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	if s == Sell {
		return "SELL"
	}
	return "BUY"
}

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Role distinguishes the resting (maker) side of a fill from the
// aggressing (taker) side, for fee-schedule purposes.
type Role int

const (
	Maker Role = iota
	Taker
)

func (r Role) String() string {
	if r == Taker {
		return "TAKER"
	}
	return "MAKER"
}

// Type is the order's execution semantics.
type Type int

const (
	Limit Type = iota
	Market
	Stop
	StopLimit
	TrailingStop
	Iceberg
	TWAP
	VWAP
)

func (t Type) String() string {
	switch t {
	case Limit:
		return "LIMIT"
	case Market:
		return "MARKET"
	case Stop:
		return "STOP"
	case StopLimit:
		return "STOP_LIMIT"
	case TrailingStop:
		return "TRAILING_STOP"
	case Iceberg:
		return "ICEBERG"
	case TWAP:
		return "TWAP"
	case VWAP:
		return "VWAP"
	default:
		return "UNKNOWN"
	}
}

// IsStopFamily reports whether the type belongs in the stop table rather
// than the live book on admission.
func (t Type) IsStopFamily() bool {
	return t == Stop || t == StopLimit || t == TrailingStop
}

// TimeInForce governs what happens to an unmatched remainder.
type TimeInForce int

const (
	GTC TimeInForce = iota // Good-Til-Canceled: remainder rests
	IOC                    // Immediate-Or-Cancel: remainder expires
	FOK                    // Fill-Or-Kill: all-or-nothing
)

func (tif TimeInForce) String() string {
	switch tif {
	case IOC:
		return "IOC"
	case FOK:
		return "FOK"
	default:
		return "GTC"
	}
}

// SelfTradePrevention controls what happens when an incoming order would
// match against a resting order from the same user.
type SelfTradePrevention int

const (
	STPNone SelfTradePrevention = iota
	STPExpireTaker
	STPExpireMaker
	STPExpireBoth
)

func (p SelfTradePrevention) String() string {
	switch p {
	case STPExpireTaker:
		return "EXPIRE_TAKER"
	case STPExpireMaker:
		return "EXPIRE_MAKER"
	case STPExpireBoth:
		return "EXPIRE_BOTH"
	default:
		return "NONE"
	}
}

// Status is the order's position in its state machine.
type Status int

const (
	StatusNew Status = iota
	StatusPartiallyFilled
	StatusFilled
	StatusCanceled
	StatusRejected
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "NEW"
	case StatusPartiallyFilled:
		return "PARTIALLY_FILLED"
	case StatusFilled:
		return "FILLED"
	case StatusCanceled:
		return "CANCELED"
	case StatusRejected:
		return "REJECTED"
	case StatusExpired:
		return "EXPIRED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether the order can no longer transition.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFilled, StatusCanceled, StatusRejected, StatusExpired:
		return true
	default:
		return false
	}
}

// IsLive reports whether the order still occupies the book or stop table.
func (s Status) IsLive() bool {
	return s == StatusNew || s == StatusPartiallyFilled
}

// CancelRestriction narrows which live states cancel_order will accept.
type CancelRestriction int

const (
	CancelAny CancelRestriction = iota
	CancelOnlyNew
	CancelOnlyPartiallyFilled
)

// Order is a single resting or transient order. Price is meaningless for
// MARKET orders. StopPrice triggers STOP/STOP_LIMIT/TRAILING_STOP into
// the live book. TrailAmount/TrailIsPercent describe TRAILING_STOP's
// callback rate; DisplayQty is the clipped visible size for ICEBERG.
type Order struct {
	ID            uint64
	ClientOrderID string
	UserID        string
	Symbol        string
	Side          Side
	Type          Type
	TimeInForce   TimeInForce
	STP           SelfTradePrevention

	Price    decimal.Decimal
	Quantity decimal.Decimal
	// QuoteOrderQty is set instead of Quantity for MARKET BUY orders sized
	// in quote-asset terms ("spend $100 of USDT").
	QuoteOrderQty decimal.Decimal

	StopPrice      decimal.Decimal
	TrailAmount    decimal.Decimal
	TrailIsPercent bool
	trailExtreme   decimal.Decimal // internal: best price seen since admission

	DisplayQty decimal.Decimal // ICEBERG: visible clip; zero means not iceberg

	FilledQuantity decimal.Decimal
	Status         Status
	RejectReason   string

	SequenceNum uint64
	Timestamp   int64 // ms, from the process clock

	// bookNode is the order's handle into its PriceLevel's doubly-linked
	// queue, set by Book.AddOrder and used for O(1) cancel.
	bookNode *OrderNode
}

// RemainingQuantity is Quantity less what has already filled.
func (o *Order) RemainingQuantity() decimal.Decimal {
	return o.Quantity.Sub(o.FilledQuantity)
}

// IsFilled reports whether nothing remains to be matched.
func (o *Order) IsFilled() bool {
	return o.FilledQuantity.GreaterThanOrEqual(o.Quantity)
}

// VisibleQuantity is what a taker may match against in a single execution:
// the full remainder for ordinary orders, but capped to DisplayQty for
// ICEBERG so the hidden balance never fills in one trade. Depth queries
// (PriceLevel.TotalQty) likewise only ever see this capped size, so a
// resting iceberg never reveals more than its displayed clip.
func (o *Order) VisibleQuantity() decimal.Decimal {
	remaining := o.RemainingQuantity()
	if o.Type == Iceberg && o.DisplayQty.IsPositive() && o.DisplayQty.LessThan(remaining) {
		return o.DisplayQty
	}
	return remaining
}

func (o *Order) String() string {
	return fmt.Sprintf("Order{ID:%d %s %s %s %s qty=%s filled=%s status=%s}",
		o.ID, o.Symbol, o.Side, o.Type, o.TimeInForce, o.Quantity, o.FilledQuantity, o.Status)
}

// Trade is one execution between a resting (maker) and aggressing (taker)
// order.
type Trade struct {
	ID            uint64
	Symbol        string
	Price         decimal.Decimal
	Quantity      decimal.Decimal
	BuyOrderID    uint64
	SellOrderID   uint64
	BuyerUserID   string
	SellerUserID  string
	TakerSide     Side
	BuyerIsMaker  bool
	Timestamp     int64
	SequenceNum   uint64
}

// Result is the outcome of ProcessOrder: the admitted/updated order plus
// any trades it produced.
type Result struct {
	Order    *Order
	Trades   []Trade
	Accepted bool

	// Activated holds the results of any stop orders this ProcessOrder
	// call triggered and re-admitted (possibly transitively, if one
	// activation's trades trigger another stop). Trades also ends with
	// every activated result's trades. Callers that settle funds per
	// order must walk this tree and settle those trailing trades only
	// once, since an activated stop's fills belong to its own order, not
	// the order whose trade crossed the trigger.
	Activated []*Result

	// ExpiredMakers holds resting orders self-trade prevention pulled off
	// the book mid-match (STPExpireMaker/STPExpireBoth). These never
	// appear in Trades or Order, so a caller that settles funds per order
	// must release their reservations separately.
	ExpiredMakers []*Order
}
