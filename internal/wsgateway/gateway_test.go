package wsgateway

import (
	"testing"

	"github.com/shopspring/decimal"

	"exchange-core/internal/orderbook"
)

func TestSplitStreamParsesSymbolAndKind(t *testing.T) {
	prefix, kind, ok := splitStream("btcusdt@trade")
	if !ok || prefix != "btcusdt" || kind != "trade" {
		t.Fatalf("got (%q, %q, %v)", prefix, kind, ok)
	}

	prefix, kind, ok = splitStream("btcusdt@kline_1m")
	if !ok || prefix != "btcusdt" || kind != "kline_1m" {
		t.Fatalf("got (%q, %q, %v)", prefix, kind, ok)
	}
}

func TestSplitStreamRejectsMalformed(t *testing.T) {
	for _, s := range []string{"", "noAt", "@trade", "btcusdt@"} {
		if _, _, ok := splitStream(s); ok {
			t.Fatalf("splitStream(%q) should fail", s)
		}
	}
}

func TestSubscribeUnknownKindIsInvalid(t *testing.T) {
	conn := &connection{cancel: make(map[string]func())}
	err := conn.subscribe("btcusdt@unknownKind")
	if err == nil {
		t.Fatal("expected an error for an unrecognized stream kind")
	}
	if _, ok := err.(invalidStreamError); !ok {
		t.Fatalf("expected invalidStreamError, got %T", err)
	}
}

func TestSubscribeRejectsUnsupportedKlineInterval(t *testing.T) {
	conn := &connection{cancel: make(map[string]func())}
	err := conn.subscribe("btcusdt@kline_7x")
	if err == nil {
		t.Fatal("expected an error for an unsupported kline interval")
	}
}

func TestDepthPayloadFormatsPriceLevels(t *testing.T) {
	bid := orderbook.NewPriceLevel(decimal.RequireFromString("100"))
	bid.TotalQty = decimal.RequireFromString("2.5")
	ask := orderbook.NewPriceLevel(decimal.RequireFromString("101"))
	ask.TotalQty = decimal.RequireFromString("1.25")

	snap := depthPayload([]*orderbook.PriceLevel{bid}, []*orderbook.PriceLevel{ask})

	if len(snap.Bids) != 1 || snap.Bids[0].Price != "100" || snap.Bids[0].Qty != "2.5" {
		t.Fatalf("unexpected bids: %+v", snap.Bids)
	}
	if len(snap.Asks) != 1 || snap.Asks[0].Price != "101" || snap.Asks[0].Qty != "1.25" {
		t.Fatalf("unexpected asks: %+v", snap.Asks)
	}
}

func TestDepthPayloadEmptyBookYieldsEmptySlices(t *testing.T) {
	snap := depthPayload(nil, nil)
	if snap.Bids == nil || len(snap.Bids) != 0 {
		t.Fatalf("expected an empty, non-nil bids slice, got %#v", snap.Bids)
	}
	if snap.Asks == nil || len(snap.Asks) != 0 {
		t.Fatalf("expected an empty, non-nil asks slice, got %#v", snap.Asks)
	}
}
