// Package klines rebuilds OHLCV candles from in-process trade history. It
// deliberately has no outside connectivity: every candle is derived from
// trades the matching engine already produced for this process.
package klines

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// Interval is a supported candle width, named the way the REST /klines
// endpoint's `interval` query parameter spells it.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval1d  Interval = "1d"
)

// Millis returns the bucket width in milliseconds, or 0 for an unknown
// interval.
func (i Interval) Millis() int64 {
	switch i {
	case Interval1m:
		return 60_000
	case Interval5m:
		return 5 * 60_000
	case Interval15m:
		return 15 * 60_000
	case Interval1h:
		return 60 * 60_000
	case Interval4h:
		return 4 * 60 * 60_000
	case Interval1d:
		return 24 * 60 * 60_000
	default:
		return 0
	}
}

// Kline is one OHLCV candle.
type Kline struct {
	OpenTime  int64
	CloseTime int64
	Open      decimal.Decimal
	High      decimal.Decimal
	Low       decimal.Decimal
	Close     decimal.Decimal
	Volume    decimal.Decimal
	Trades    int
}

// trade is the minimal shape the aggregator needs from a matching-engine
// Trade, kept decoupled from internal/orderbook to avoid a dependency the
// aggregator does not otherwise need.
type trade struct {
	price     decimal.Decimal
	qty       decimal.Decimal
	timestamp int64
}

// symbolHistory keeps a bounded ring of recent trades per symbol, from
// which candles of any supported interval are rebuilt on demand.
type symbolHistory struct {
	mu     sync.RWMutex
	trades []trade
	cap    int
	next   int
	filled bool
}

func newSymbolHistory(capacity int) *symbolHistory {
	return &symbolHistory{trades: make([]trade, capacity), cap: capacity}
}

func (h *symbolHistory) record(t trade) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.trades[h.next] = t
	h.next = (h.next + 1) % h.cap
	if h.next == 0 {
		h.filled = true
	}
}

func (h *symbolHistory) snapshot() []trade {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.filled {
		out := make([]trade, h.next)
		copy(out, h.trades[:h.next])
		return out
	}
	out := make([]trade, h.cap)
	copy(out, h.trades[h.next:])
	copy(out[h.cap-h.next:], h.trades[:h.next])
	return out
}

// Aggregator maintains bounded per-symbol trade history and rebuilds
// candles from it on query, rather than maintaining live candle state.
// History length is bounded and query volume is low relative to a live
// exchange, so this stays simple.
type Aggregator struct {
	mu      sync.Mutex
	history map[string]*symbolHistory
	cap     int
}

// NewAggregator creates an aggregator retaining up to capacity trades per
// symbol (a sensible default is in the low hundreds of thousands).
func NewAggregator(capacity int) *Aggregator {
	if capacity <= 0 {
		capacity = 100_000
	}
	return &Aggregator{history: make(map[string]*symbolHistory), cap: capacity}
}

func (a *Aggregator) historyFor(symbol string) *symbolHistory {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.history[symbol]
	if !ok {
		h = newSymbolHistory(a.cap)
		a.history[symbol] = h
	}
	return h
}

// RecordTrade appends a trade to its symbol's history. Called by the
// exchange facade immediately after a matching-engine fill.
func (a *Aggregator) RecordTrade(symbol string, price, qty decimal.Decimal, timestampMS int64) {
	a.historyFor(symbol).record(trade{price: price, qty: qty, timestamp: timestampMS})
}

// Klines rebuilds candles for symbol/interval within [startMS, endMS]
// (either bound may be zero to mean unbounded), returning at most limit
// candles, most recent last.
func (a *Aggregator) Klines(symbol string, interval Interval, startMS, endMS int64, limit int) []Kline {
	bucket := interval.Millis()
	if bucket <= 0 {
		return nil
	}
	trades := a.historyFor(symbol).snapshot()

	buckets := make(map[int64]*Kline)
	var order []int64
	for _, t := range trades {
		if startMS > 0 && t.timestamp < startMS {
			continue
		}
		if endMS > 0 && t.timestamp > endMS {
			continue
		}
		openTime := (t.timestamp / bucket) * bucket
		k, ok := buckets[openTime]
		if !ok {
			k = &Kline{
				OpenTime:  openTime,
				CloseTime: openTime + bucket - 1,
				Open:      t.price,
				High:      t.price,
				Low:       t.price,
				Close:     t.price,
				Volume:    decimal.Zero,
			}
			buckets[openTime] = k
			order = append(order, openTime)
		}
		if t.price.GreaterThan(k.High) {
			k.High = t.price
		}
		if t.price.LessThan(k.Low) {
			k.Low = t.price
		}
		k.Close = t.price
		k.Volume = k.Volume.Add(t.qty)
		k.Trades++
	}

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	if limit > 0 && len(order) > limit {
		order = order[len(order)-limit:]
	}
	out := make([]Kline, 0, len(order))
	for _, ot := range order {
		out = append(out, *buckets[ot])
	}
	return out
}
