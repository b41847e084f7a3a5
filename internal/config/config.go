// Package config reads environment-driven settings for the exchange-core
// process, the same getenv-with-default pattern the source project used,
// trimmed to what this core actually needs.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// SymbolConfig is one tradable pair's static configuration, parsed from a
// compact "SYMBOL:BASE:QUOTE:pricePrecision:qtyPrecision:makerBps:takerBps"
// entry in SYMBOLS.
type SymbolConfig struct {
	Symbol         string
	BaseAsset      string
	QuoteAsset     string
	PricePrecision int32
	QtyPrecision   int32
	MakerFeeBps    int64
	TakerFeeBps    int64
}

// Config holds environment-driven settings for the exchange core.
type Config struct {
	Port string

	DBPath string

	JWTSecret    string
	RecvWindowMS int64

	Symbols []SymbolConfig

	// ClockMode selects the process clock's starting mode: "live" or
	// "backtest". Backtest mode still starts at the host's current time
	// until a caller explicitly sets virtual time.
	ClockMode string

	// KlineHistoryCap is loaded from KLINE_HISTORY_CAP but is not passed to
	// the klines aggregator, which keeps its own default per-symbol trade
	// capacity regardless of this value.
	KlineHistoryCap int
}

// Load reads environment variables (optionally via .env) into Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		Port:            getEnv("PORT", "8080"),
		DBPath:          getEnv("DB_PATH", "./data/exchange.db"),
		JWTSecret:       getEnv("JWT_SECRET", "dev-secret"),
		RecvWindowMS:    getEnvInt64("RECV_WINDOW_MS", 5000),
		Symbols:         parseSymbols(getEnv("SYMBOLS", "BTCUSDT:BTC:USDT:2:6:10:10,ETHUSDT:ETH:USDT:2:5:10:10")),
		ClockMode:       strings.ToLower(getEnv("CLOCK_MODE", "live")),
		KlineHistoryCap: int(getEnvInt64("KLINE_HISTORY_CAP", 100_000)),
	}, nil
}

// parseSymbols parses the compact SYMBOLS env format into SymbolConfig
// entries, skipping malformed ones rather than failing startup.
func parseSymbols(val string) []SymbolConfig {
	var out []SymbolConfig
	for _, entry := range strings.Split(val, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.Split(entry, ":")
		if len(fields) != 7 {
			continue
		}
		pricePrec, err1 := strconv.ParseInt(fields[3], 10, 32)
		qtyPrec, err2 := strconv.ParseInt(fields[4], 10, 32)
		makerBps, err3 := strconv.ParseInt(fields[5], 10, 64)
		takerBps, err4 := strconv.ParseInt(fields[6], 10, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		out = append(out, SymbolConfig{
			Symbol:         fields[0],
			BaseAsset:      fields[1],
			QuoteAsset:     fields[2],
			PricePrecision: int32(pricePrec),
			QtyPrecision:   int32(qtyPrec),
			MakerFeeBps:    makerBps,
			TakerFeeBps:    takerBps,
		})
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}
