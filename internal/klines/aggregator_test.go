package klines

import (
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestKlinesAggregatesTradesIntoOneBucket(t *testing.T) {
	a := NewAggregator(100)
	a.RecordTrade("BTCUSDT", dec("100"), dec("1"), 0)
	a.RecordTrade("BTCUSDT", dec("105"), dec("2"), 10_000)
	a.RecordTrade("BTCUSDT", dec("95"), dec("1"), 20_000)
	a.RecordTrade("BTCUSDT", dec("102"), dec("1"), 59_999)

	candles := a.Klines("BTCUSDT", Interval1m, 0, 0, 10)
	if len(candles) != 1 {
		t.Fatalf("candles = %d, want 1", len(candles))
	}
	k := candles[0]
	if !k.Open.Equal(dec("100")) {
		t.Fatalf("Open = %s, want 100", k.Open)
	}
	if !k.High.Equal(dec("105")) {
		t.Fatalf("High = %s, want 105", k.High)
	}
	if !k.Low.Equal(dec("95")) {
		t.Fatalf("Low = %s, want 95", k.Low)
	}
	if !k.Close.Equal(dec("102")) {
		t.Fatalf("Close = %s, want 102", k.Close)
	}
	if !k.Volume.Equal(dec("5")) {
		t.Fatalf("Volume = %s, want 5", k.Volume)
	}
	if k.Trades != 4 {
		t.Fatalf("Trades = %d, want 4", k.Trades)
	}
}

func TestKlinesSplitsAcrossBuckets(t *testing.T) {
	a := NewAggregator(100)
	a.RecordTrade("BTCUSDT", dec("100"), dec("1"), 0)
	a.RecordTrade("BTCUSDT", dec("110"), dec("1"), 60_000)

	candles := a.Klines("BTCUSDT", Interval1m, 0, 0, 10)
	if len(candles) != 2 {
		t.Fatalf("candles = %d, want 2", len(candles))
	}
	if candles[0].OpenTime != 0 || candles[1].OpenTime != 60_000 {
		t.Fatalf("unexpected open times: %d, %d", candles[0].OpenTime, candles[1].OpenTime)
	}
}

func TestKlinesRespectsLimitKeepingMostRecent(t *testing.T) {
	a := NewAggregator(100)
	for i := int64(0); i < 5; i++ {
		a.RecordTrade("BTCUSDT", dec("100"), dec("1"), i*60_000)
	}

	candles := a.Klines("BTCUSDT", Interval1m, 0, 0, 2)
	if len(candles) != 2 {
		t.Fatalf("candles = %d, want 2", len(candles))
	}
	if candles[0].OpenTime != 3*60_000 || candles[1].OpenTime != 4*60_000 {
		t.Fatalf("expected the two most recent buckets, got %d and %d", candles[0].OpenTime, candles[1].OpenTime)
	}
}

func TestKlinesUnknownIntervalReturnsNil(t *testing.T) {
	a := NewAggregator(100)
	a.RecordTrade("BTCUSDT", dec("100"), dec("1"), 0)
	if got := a.Klines("BTCUSDT", Interval("bogus"), 0, 0, 10); got != nil {
		t.Fatalf("expected nil for an unsupported interval, got %v", got)
	}
}

func TestKlinesHistoryRingEvictsOldestTrades(t *testing.T) {
	a := NewAggregator(3)
	a.RecordTrade("BTCUSDT", dec("1"), dec("1"), 0)
	a.RecordTrade("BTCUSDT", dec("2"), dec("1"), 0)
	a.RecordTrade("BTCUSDT", dec("3"), dec("1"), 0)
	a.RecordTrade("BTCUSDT", dec("4"), dec("1"), 0)

	candles := a.Klines("BTCUSDT", Interval1m, 0, 0, 10)
	if len(candles) != 1 {
		t.Fatalf("candles = %d, want 1", len(candles))
	}
	if candles[0].Trades != 3 {
		t.Fatalf("Trades = %d, want 3 (capacity-bounded ring)", candles[0].Trades)
	}
	if !candles[0].Open.Equal(dec("2")) {
		t.Fatalf("Open = %s, want 2 (oldest trade evicted)", candles[0].Open)
	}
}
