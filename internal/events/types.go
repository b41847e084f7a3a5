// Package events implements the typed event sum type and the priority
// pub/sub bus that distributes market, trade, order and account events to
// local subscribers.
package events

import (
	"crypto/rand"
	"encoding/base32"
)

// Type is the closed set of event tags. Subscriptions address events by
// Type, or by the wildcard "*".
type Type string

const (
	TypeMarket          Type = "MARKET"
	TypeSignal          Type = "SIGNAL"
	TypeOrder           Type = "ORDER"
	TypeFill            Type = "FILL"
	TypeAccount         Type = "ACCOUNT"
	TypeSystemStart     Type = "SYSTEM_START"
	TypeSystemStop      Type = "SYSTEM_STOP"
	TypeSystemError     Type = "SYSTEM_ERROR"
	TypeStrategyStart   Type = "STRATEGY_START"
	TypeStrategyStop    Type = "STRATEGY_STOP"
	TypeStrategyError   Type = "STRATEGY_ERROR"
	TypeDataStart       Type = "DATA_START"
	TypeDataEnd         Type = "DATA_END"
	TypeDataError       Type = "DATA_ERROR"
	TypeTimeTick        Type = "TIME_TICK"
	TypeTimeBar         Type = "TIME_BAR"
	TypeRiskWarning     Type = "RISK_WARNING"
	TypeRiskLimit       Type = "RISK_LIMIT"
	TypeCustom          Type = "CUSTOM"

	// Wildcard subscribes to every event type. Internal use only; never
	// exposed to WebSocket clients (see internal/wsgateway).
	Wildcard Type = "*"
)

// Priority orders bus delivery. Smaller numeric value delivers first.
type Priority int

const (
	PriorityCritical    Priority = 1
	PriorityHigh        Priority = 2
	PriorityNormal      Priority = 3
	PriorityLow         Priority = 4
	PriorityBackground  Priority = 5
)

// DefaultPriority returns the priority a Type carries unless the publisher
// overrides it. CRITICAL is reserved for system-error and risk-limit
// events; ORDER/FILL/ACCOUNT/MARKET default to NORMAL; logging-oriented
// types default to LOW.
func DefaultPriority(t Type) Priority {
	switch t {
	case TypeSystemError, TypeRiskLimit:
		return PriorityCritical
	case TypeOrder, TypeFill, TypeAccount, TypeMarket, TypeSignal, TypeRiskWarning:
		return PriorityNormal
	case TypeSystemStart, TypeSystemStop, TypeStrategyStart, TypeStrategyStop,
		TypeStrategyError, TypeDataStart, TypeDataEnd, TypeDataError,
		TypeTimeTick, TypeTimeBar:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// idEncoding produces short, URL-safe, unique-enough ids (ULID-like per the
// 8-character minimum); it is not a ULID's sortable-by-time encoding, just
// a compact random token.
var idEncoding = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// NewID returns a random 8-character opaque identifier.
func NewID() string {
	var b [5]byte
	_, _ = rand.Read(b[:])
	s := idEncoding.EncodeToString(b[:])
	if len(s) > 8 {
		s = s[:8]
	}
	return s
}

// Event is the single sum type the bus dispatches. Subtype-specific fields
// live in Data; handlers type-assert based on Type.
type Event struct {
	ID            string
	Type          Type
	Timestamp     int64 // ms, from the process clock
	Priority      Priority
	Source        string
	CorrelationID string
	Metadata      map[string]any
	Data          any
}

// MarketEvent is the Data payload for TypeMarket.
type MarketEvent struct {
	Symbol string
	Price  string // decimal.Decimal.String(); kept as string to avoid an import cycle with orderbook
	Volume string
	Kind   string // "trade" | "depth" | "kline"
}

// SignalEvent is the Data payload for TypeSignal.
type SignalEvent struct {
	Symbol string
	Side   string
	Detail string
}

// OrderEvent is the Data payload for TypeOrder.
type OrderEvent struct {
	OrderID       string
	ClientOrderID string
	UserID        string
	Symbol        string
	Side          string
	Type          string
	Status        string
	Price         string
	Quantity      string
	FilledQty     string
}

// FillEvent is the Data payload for TypeFill.
type FillEvent struct {
	TradeID         string
	Symbol          string
	Price           string
	Quantity        string
	BuyerOrderID    string
	SellerOrderID   string
	BuyerUserID     string
	SellerUserID    string
	BuyerIsMaker    bool
}

// AccountEvent is the Data payload for TypeAccount.
type AccountEvent struct {
	UserID string
	Asset  string
	Free   string
	Locked string
	Reason string
}
