package exchange

import (
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"exchange-core/internal/account"
)

// SymbolInfo describes a tradable pair's asset split and precision filters,
// the fields the REST /exchangeInfo endpoint reports.
type SymbolInfo struct {
	Symbol         string
	BaseAsset      string
	QuoteAsset     string
	PricePrecision int32
	QtyPrecision   int32
	MinQty         decimal.Decimal
	MinNotional    decimal.Decimal
}

// roundQuote applies the symbol's quote-asset precision, rounding away
// from zero, the rule §4.F specifies for fee amounts denominated in the
// quote asset.
func (s SymbolInfo) roundQuote(d decimal.Decimal) decimal.Decimal {
	return d.RoundCeil(s.PricePrecision)
}

// roundBase applies the symbol's base-asset precision. Fee amounts
// denominated in the base asset (the buyer's fee, in either role) must round
// by QtyPrecision, not PricePrecision: the two can differ widely (BTCUSDT
// prices round to cents, quantities to micro-BTC).
func (s SymbolInfo) roundBase(d decimal.Decimal) decimal.Decimal {
	return d.RoundCeil(s.QtyPrecision)
}

type symbolRegistry struct {
	mu      sync.RWMutex
	symbols map[string]SymbolInfo
	fees    map[string]account.FeeSchedule
}

func newSymbolRegistry() *symbolRegistry {
	return &symbolRegistry{
		symbols: make(map[string]SymbolInfo),
		fees:    make(map[string]account.FeeSchedule),
	}
}

func (r *symbolRegistry) add(info SymbolInfo, fees account.FeeSchedule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if fees == nil {
		fees = account.ZeroFees
	}
	r.symbols[info.Symbol] = info
	r.fees[info.Symbol] = fees
}

func (r *symbolRegistry) get(symbol string) (SymbolInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.symbols[symbol]
	if !ok {
		return SymbolInfo{}, fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	return info, nil
}

func (r *symbolRegistry) feeSchedule(symbol string) account.FeeSchedule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.fees[symbol]; ok {
		return f
	}
	return account.ZeroFees
}

func (r *symbolRegistry) all() []SymbolInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SymbolInfo, 0, len(r.symbols))
	for _, s := range r.symbols {
		out = append(out, s)
	}
	return out
}
