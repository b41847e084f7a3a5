package pricecache

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestSetAndGetRoundTrip(t *testing.T) {
	c := New()
	c.Set("BTCUSDT", Quote{
		LastPrice: decimal.RequireFromString("100"),
		BestBid:   decimal.RequireFromString("99.5"),
		BestAsk:   decimal.RequireFromString("100.5"),
	})

	q, ok := c.Get("BTCUSDT")
	if !ok {
		t.Fatal("expected a cached quote")
	}
	if !q.LastPrice.Equal(decimal.RequireFromString("100")) {
		t.Fatalf("LastPrice = %s, want 100", q.LastPrice)
	}
	if q.UpdatedAt.IsZero() {
		t.Fatal("expected UpdatedAt to be stamped")
	}
}

func TestGetMissingSymbol(t *testing.T) {
	c := New()
	if _, ok := c.Get("NOPE"); ok {
		t.Fatal("expected no entry for an unknown symbol")
	}
}

func TestSetLastPricePreservesBidAsk(t *testing.T) {
	c := New()
	c.Set("BTCUSDT", Quote{
		LastPrice: decimal.RequireFromString("100"),
		BestBid:   decimal.RequireFromString("99.5"),
		BestAsk:   decimal.RequireFromString("100.5"),
	})
	c.SetLastPrice("BTCUSDT", decimal.RequireFromString("101"))

	q, _ := c.Get("BTCUSDT")
	if !q.LastPrice.Equal(decimal.RequireFromString("101")) {
		t.Fatalf("LastPrice = %s, want 101", q.LastPrice)
	}
	if !q.BestBid.Equal(decimal.RequireFromString("99.5")) {
		t.Fatalf("BestBid was clobbered: %s", q.BestBid)
	}
}

func TestDeleteRemovesEntry(t *testing.T) {
	c := New()
	c.Set("BTCUSDT", Quote{LastPrice: decimal.RequireFromString("100")})
	c.Delete("BTCUSDT")
	if _, ok := c.Get("BTCUSDT"); ok {
		t.Fatal("expected entry to be gone after Delete")
	}
}

func TestLenCountsAcrossShards(t *testing.T) {
	c := New()
	symbols := []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT", "XRPUSDT"}
	for _, s := range symbols {
		c.Set(s, Quote{LastPrice: decimal.RequireFromString("1")})
	}
	if got := c.Len(); got != len(symbols) {
		t.Fatalf("Len = %d, want %d", got, len(symbols))
	}
}

func TestCleanupEvictsStaleEntries(t *testing.T) {
	c := New()
	c.Set("OLD", Quote{LastPrice: decimal.RequireFromString("1")})

	s := c.shardFor("OLD")
	s.mu.Lock()
	q := s.items["OLD"]
	q.UpdatedAt = time.Now().Add(-time.Hour)
	s.items["OLD"] = q
	s.mu.Unlock()

	c.Set("FRESH", Quote{LastPrice: decimal.RequireFromString("2")})

	removed := c.Cleanup(time.Minute)
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if _, ok := c.Get("OLD"); ok {
		t.Fatal("expected OLD to be evicted")
	}
	if _, ok := c.Get("FRESH"); !ok {
		t.Fatal("expected FRESH to survive cleanup")
	}
}
