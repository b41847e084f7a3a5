// Package account is the asset ledger: per-user, per-asset free/locked
// balances, the atomic primitives the exchange facade composes into
// fill settlement, and API-key issuance/authentication.
package account

import (
	"errors"

	"github.com/shopspring/decimal"

	"exchange-core/internal/orderbook"
)

var (
	// ErrInsufficientFunds is returned by Withdraw/Lock when free balance
	// cannot cover the requested amount.
	ErrInsufficientFunds = errors.New("account: insufficient funds")
	// ErrInsufficientLocked is returned by Unlock/Settle when locked
	// balance cannot cover the requested amount.
	ErrInsufficientLocked = errors.New("account: insufficient locked balance")
	// ErrInvalidAmount is returned for non-positive Δ on primitives that
	// require Δ>0.
	ErrInvalidAmount = errors.New("account: amount must be positive")
)

// Balance is one asset's free/locked split for one user.
type Balance struct {
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// Total is Free+Locked.
func (b Balance) Total() decimal.Decimal {
	return b.Free.Add(b.Locked)
}

// FeeSchedule maps (side, role) to the fee rate charged on the received
// asset. The core only requires that fees be deducted from what a side
// receives, never added to what it has locked; concrete schedules are
// pluggable.
type FeeSchedule func(side orderbook.Side, role orderbook.Role) decimal.Decimal

// ZeroFees never charges a fee; useful for tests and for symbols without a
// configured schedule.
func ZeroFees(orderbook.Side, orderbook.Role) decimal.Decimal {
	return decimal.Zero
}

// FlatFeeSchedule charges makerRate/takerRate regardless of side.
func FlatFeeSchedule(makerRate, takerRate decimal.Decimal) FeeSchedule {
	return func(_ orderbook.Side, role orderbook.Role) decimal.Decimal {
		if role == orderbook.Maker {
			return makerRate
		}
		return takerRate
	}
}
