package exchange

import (
	"sync"

	"github.com/shopspring/decimal"

	"exchange-core/internal/orderbook"
)

// TradeRecord is one fill from a single user's point of view, the shape
// /api/v3/myTrades returns.
type TradeRecord struct {
	TradeID  uint64
	OrderID  uint64
	Symbol   string
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Side     orderbook.Side
	IsMaker  bool
	Time     int64
}

// userTradeCap bounds how many of each user's most recent fills are kept
// for /myTrades; older entries are dropped, oldest first.
const userTradeCap = 5000

type tradeHistory struct {
	mu    sync.Mutex
	byUser map[string][]TradeRecord
}

func newTradeHistory() *tradeHistory {
	return &tradeHistory{byUser: make(map[string][]TradeRecord)}
}

func (h *tradeHistory) record(userID string, rec TradeRecord) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.byUser[userID]
	list = append(list, rec)
	if len(list) > userTradeCap {
		list = list[len(list)-userTradeCap:]
	}
	h.byUser[userID] = list
}

// forUser returns userID's fills for symbol (all symbols if empty), most
// recent last, truncated to limit (0 means no limit).
func (h *tradeHistory) forUser(userID, symbol string, limit int) []TradeRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	all := h.byUser[userID]

	var out []TradeRecord
	for _, r := range all {
		if symbol != "" && r.Symbol != symbol {
			continue
		}
		out = append(out, r)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}
