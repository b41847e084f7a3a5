package account

import (
	"testing"

	"github.com/shopspring/decimal"

	"exchange-core/internal/orderbook"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDepositAndWithdraw(t *testing.T) {
	m := NewManager(nil, ZeroFees)
	if err := m.Deposit("u1", "USDT", dec("100")); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if err := m.Withdraw("u1", "USDT", dec("40")); err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	bal := m.Balance("u1", "USDT")
	if !bal.Free.Equal(dec("60")) {
		t.Fatalf("free = %s, want 60", bal.Free)
	}
}

func TestWithdrawInsufficientFunds(t *testing.T) {
	m := NewManager(nil, ZeroFees)
	m.Deposit("u1", "USDT", dec("10"))
	if err := m.Withdraw("u1", "USDT", dec("20")); err != ErrInsufficientFunds {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
}

func TestLockAndUnlock(t *testing.T) {
	m := NewManager(nil, ZeroFees)
	m.Deposit("u1", "USDT", dec("100"))

	if err := m.Lock("u1", "USDT", dec("30")); err != nil {
		t.Fatalf("lock: %v", err)
	}
	bal := m.Balance("u1", "USDT")
	if !bal.Free.Equal(dec("70")) || !bal.Locked.Equal(dec("30")) {
		t.Fatalf("after lock: free=%s locked=%s", bal.Free, bal.Locked)
	}

	if err := m.Unlock("u1", "USDT", dec("30")); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	bal = m.Balance("u1", "USDT")
	if !bal.Free.Equal(dec("100")) || !bal.Locked.IsZero() {
		t.Fatalf("after unlock: free=%s locked=%s", bal.Free, bal.Locked)
	}
}

func TestLockInsufficientFreeBalance(t *testing.T) {
	m := NewManager(nil, ZeroFees)
	m.Deposit("u1", "USDT", dec("10"))
	if err := m.Lock("u1", "USDT", dec("20")); err != ErrInsufficientFunds {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
}

func TestSettleAndCredit(t *testing.T) {
	m := NewManager(nil, ZeroFees)
	m.Deposit("buyer", "USDT", dec("100"))
	m.Lock("buyer", "USDT", dec("100"))

	if err := m.Settle("buyer", "USDT", dec("100")); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if err := m.Credit("buyer", "BTC", dec("1")); err != nil {
		t.Fatalf("credit: %v", err)
	}

	usdt := m.Balance("buyer", "USDT")
	if !usdt.Free.IsZero() || !usdt.Locked.IsZero() {
		t.Fatalf("USDT should be fully spent: %+v", usdt)
	}
	btc := m.Balance("buyer", "BTC")
	if !btc.Free.Equal(dec("1")) {
		t.Fatalf("BTC free = %s, want 1", btc.Free)
	}
}

func TestSettleInsufficientLocked(t *testing.T) {
	m := NewManager(nil, ZeroFees)
	m.Deposit("u1", "USDT", dec("100"))
	if err := m.Settle("u1", "USDT", dec("50")); err != ErrInsufficientLocked {
		t.Fatalf("err = %v, want ErrInsufficientLocked", err)
	}
}

func TestLockForOrderBuySizesNotionalPlusFee(t *testing.T) {
	m := NewManager(nil, nil)
	m.Deposit("u1", "USDT", dec("1000"))

	asset, amount, err := m.LockForOrder("u1", orderbook.Buy, "BTC", "USDT", dec("100"), dec("2"), decimal.Zero, dec("0.01"))
	if err != nil {
		t.Fatalf("LockForOrder: %v", err)
	}
	if asset != "USDT" {
		t.Fatalf("asset = %s, want USDT", asset)
	}
	if !amount.Equal(dec("202")) {
		t.Fatalf("amount = %s, want 202 (200 notional + 1%% fee)", amount)
	}
}

func TestLockForOrderSellSizesBaseQuantity(t *testing.T) {
	m := NewManager(nil, nil)
	m.Deposit("u1", "BTC", dec("5"))

	asset, amount, err := m.LockForOrder("u1", orderbook.Sell, "BTC", "USDT", dec("100"), dec("2"), decimal.Zero, dec("0.01"))
	if err != nil {
		t.Fatalf("LockForOrder: %v", err)
	}
	if asset != "BTC" || !amount.Equal(dec("2")) {
		t.Fatalf("got asset=%s amount=%s, want BTC 2", asset, amount)
	}
}

func TestLockForOrderMarketBuyUsesQuoteOrderQtyDirectly(t *testing.T) {
	m := NewManager(nil, nil)
	m.Deposit("u1", "USDT", dec("1000"))

	asset, amount, err := m.LockForOrder("u1", orderbook.Buy, "BTC", "USDT", decimal.Zero, decimal.Zero, dec("500"), dec("0.01"))
	if err != nil {
		t.Fatalf("LockForOrder: %v", err)
	}
	if asset != "USDT" || !amount.Equal(dec("500")) {
		t.Fatalf("got asset=%s amount=%s, want USDT 500", asset, amount)
	}
}

func TestOpenOrderIndex(t *testing.T) {
	m := NewManager(nil, ZeroFees)
	m.AddOpenOrder("u1", 1)
	m.AddOpenOrder("u1", 2)

	ids := m.OpenOrderIDs("u1")
	if len(ids) != 2 {
		t.Fatalf("len = %d, want 2", len(ids))
	}

	m.RemoveOpenOrder("u1", 1)
	ids = m.OpenOrderIDs("u1")
	if len(ids) != 1 || ids[0] != 2 {
		t.Fatalf("after remove: %v, want [2]", ids)
	}
}

func TestRegisterUserWithoutStoreFails(t *testing.T) {
	m := NewManager(nil, ZeroFees)
	if err := m.RegisterUser("u1", "a@b.com", "pw"); err == nil {
		t.Fatal("expected an error when no store is configured")
	}
}

func TestAuthenticateUnknownKeyReturnsEmpty(t *testing.T) {
	m := NewManager(nil, ZeroFees)
	if got := m.Authenticate("nonexistent"); got != "" {
		t.Fatalf("Authenticate = %q, want empty", got)
	}
}

func TestFlatFeeScheduleByRole(t *testing.T) {
	fees := FlatFeeSchedule(dec("0.001"), dec("0.002"))
	if got := fees(orderbook.Buy, orderbook.Maker); !got.Equal(dec("0.001")) {
		t.Fatalf("maker rate = %s, want 0.001", got)
	}
	if got := fees(orderbook.Sell, orderbook.Taker); !got.Equal(dec("0.002")) {
		t.Fatalf("taker rate = %s, want 0.002", got)
	}
}

func TestBalanceTotal(t *testing.T) {
	b := Balance{Free: dec("3"), Locked: dec("2")}
	if !b.Total().Equal(dec("5")) {
		t.Fatalf("Total = %s, want 5", b.Total())
	}
}
