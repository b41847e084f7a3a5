package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"exchange-core/internal/account"
	"exchange-core/internal/api"
	"exchange-core/internal/clock"
	"exchange-core/internal/config"
	"exchange-core/internal/db"
	"exchange-core/internal/events"
	"exchange-core/internal/exchange"
	"exchange-core/internal/wsgateway"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("config loaded, port=%s clockMode=%s", cfg.Port, cfg.ClockMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := events.NewBus()
	bus.Start()
	defer bus.Stop()

	store, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer store.Close()

	clk := clock.New()
	if cfg.ClockMode == "backtest" {
		clk.SetMode(clock.Backtest)
	}

	accounts := account.NewManager(store, account.ZeroFees)
	facade := exchange.New(clk, bus, accounts)

	for _, sc := range cfg.Symbols {
		info := exchange.SymbolInfo{
			Symbol:         sc.Symbol,
			BaseAsset:      sc.BaseAsset,
			QuoteAsset:     sc.QuoteAsset,
			PricePrecision: sc.PricePrecision,
			QtyPrecision:   sc.QtyPrecision,
			MinQty:         decimal.New(1, -sc.QtyPrecision),
			MinNotional:    decimal.NewFromInt(10),
		}
		fees := account.FlatFeeSchedule(
			decimal.NewFromInt(sc.MakerFeeBps).Div(decimal.NewFromInt(10_000)),
			decimal.NewFromInt(sc.TakerFeeBps).Div(decimal.NewFromInt(10_000)),
		)
		facade.AddSymbol(info, fees)
		log.Printf("registered symbol %s (%s/%s)", info.Symbol, info.BaseAsset, info.QuoteAsset)
	}

	server := api.NewServer(facade, accounts, cfg.JWTSecret)
	gw := wsgateway.New(facade, accounts)
	server.Router.GET("/ws", gw.Handle)

	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()
	log.Printf("exchange-core listening on :%s", cfg.Port)

	go logBusHealth(ctx, bus)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")
}

// logBusHealth periodically logs event-bus throughput, the closest this
// core gets to the teacher's metrics reporter without a dedicated
// monitoring stack.
func logBusHealth(ctx context.Context, bus *events.Bus) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := bus.Stats()
			log.Printf("bus: published=%d processed=%d failed=%d queue=%d subs=%d",
				stats.EventsPublished, stats.EventsProcessed, stats.EventsFailed, stats.QueueSize, stats.SubscriberCount)
		}
	}
}
