package exchange

import (
	"errors"
	"fmt"
)

// Sentinel errors identifying the closed set of error kinds §7 requires to
// propagate as typed variants. internal/api's respondError maps these to the
// stable {code,msg} envelope via errors.Is/errors.As.
var (
	ErrUnknownSymbol = errors.New("exchange: unknown symbol")
	ErrAuth          = errors.New("exchange: missing or invalid api key")
	ErrTimestampSkew = errors.New("exchange: timestamp outside recvWindow")
	ErrBusSaturated  = errors.New("exchange: event bus queue is full")
)

// ValidationError wraps a malformed request: unknown symbol, missing
// field, bad precision. No state changes occur before it is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("exchange: validation failed on %s: %s", e.Field, e.Reason)
}

// InsufficientFundsError is returned when a lock/withdraw would take a
// free balance negative.
type InsufficientFundsError struct {
	UserID string
	Asset  string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("exchange: insufficient %s balance for user %s", e.Asset, e.UserID)
}

// OrderRejectedError is returned by the matching engine's admission path:
// FOK infeasible, disallowed self-trade, unknown order type.
type OrderRejectedError struct {
	Reason string
}

func (e *OrderRejectedError) Error() string {
	return fmt.Sprintf("exchange: order rejected: %s", e.Reason)
}

// OrderNotFoundError is returned when a cancel or lookup names an order id
// the caller does not own or that does not exist.
type OrderNotFoundError struct {
	OrderID uint64
}

func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("exchange: order %d not found", e.OrderID)
}

// CancelRejectedError is returned when an order is not in a cancellable
// state, or a cancelRestriction forbids the cancel.
type CancelRejectedError struct {
	OrderID uint64
	Reason  string
}

func (e *CancelRejectedError) Error() string {
	return fmt.Sprintf("exchange: cancel rejected for order %d: %s", e.OrderID, e.Reason)
}
