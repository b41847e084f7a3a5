package config

import "testing"

func TestParseSymbolsValidEntries(t *testing.T) {
	got := parseSymbols("BTCUSDT:BTC:USDT:2:6:10:10,ETHUSDT:ETH:USDT:2:5:15:20")
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Symbol != "BTCUSDT" || got[0].BaseAsset != "BTC" || got[0].QuoteAsset != "USDT" {
		t.Fatalf("unexpected first entry: %+v", got[0])
	}
	if got[0].PricePrecision != 2 || got[0].QtyPrecision != 6 {
		t.Fatalf("unexpected precision: %+v", got[0])
	}
	if got[1].MakerFeeBps != 15 || got[1].TakerFeeBps != 20 {
		t.Fatalf("unexpected fees: %+v", got[1])
	}
}

func TestParseSymbolsSkipsMalformedEntries(t *testing.T) {
	got := parseSymbols("BTCUSDT:BTC:USDT:2:6:10:10,garbage,ETHUSDT:ETH:USDT:x:5:10:10")
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1 (malformed entries skipped)", len(got))
	}
	if got[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected surviving entry: %+v", got[0])
	}
}

func TestParseSymbolsEmptyString(t *testing.T) {
	got := parseSymbols("")
	if len(got) != 0 {
		t.Fatalf("len = %d, want 0", len(got))
	}
}

func TestGetEnvDefault(t *testing.T) {
	t.Setenv("CONFIG_TEST_UNSET", "")
	if v := getEnv("CONFIG_TEST_UNSET", "fallback"); v != "fallback" {
		t.Fatalf("getEnv = %q, want fallback", v)
	}
	t.Setenv("CONFIG_TEST_SET", "value")
	if v := getEnv("CONFIG_TEST_SET", "fallback"); v != "value" {
		t.Fatalf("getEnv = %q, want value", v)
	}
}

func TestGetEnvInt64InvalidFallsBackToDefault(t *testing.T) {
	t.Setenv("CONFIG_TEST_INT", "not-a-number")
	if v := getEnvInt64("CONFIG_TEST_INT", 42); v != 42 {
		t.Fatalf("getEnvInt64 = %d, want 42", v)
	}
	t.Setenv("CONFIG_TEST_INT", "99")
	if v := getEnvInt64("CONFIG_TEST_INT", 42); v != 99 {
		t.Fatalf("getEnvInt64 = %d, want 99", v)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_PATH", "JWT_SECRET", "RECV_WINDOW_MS", "SYMBOLS", "CLOCK_MODE", "KLINE_HISTORY_CAP"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port = %q, want 8080", cfg.Port)
	}
	if cfg.ClockMode != "live" {
		t.Fatalf("ClockMode = %q, want live", cfg.ClockMode)
	}
	if len(cfg.Symbols) == 0 {
		t.Fatal("expected default SYMBOLS to parse into at least one entry")
	}
}
