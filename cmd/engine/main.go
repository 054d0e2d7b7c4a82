// Command engine is the process entry point: it wires every component
// together exactly once (broker → caches → regime/sentiment → strategy →
// risk → executor → protector → engine scheduler → operator surface), then
// launches the scheduler and the HTTP server side by side, mirroring
// main.go's construct-then-serve shape.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codebytelabs/daytrader-engine/internal/aivalidator"
	"github.com/codebytelabs/daytrader-engine/internal/broker"
	"github.com/codebytelabs/daytrader-engine/internal/config"
	"github.com/codebytelabs/daytrader-engine/internal/dailycache"
	"github.com/codebytelabs/daytrader-engine/internal/engine"
	"github.com/codebytelabs/daytrader-engine/internal/eventbus"
	"github.com/codebytelabs/daytrader-engine/internal/executor"
	"github.com/codebytelabs/daytrader-engine/internal/journal"
	"github.com/codebytelabs/daytrader-engine/internal/marketdata"
	"github.com/codebytelabs/daytrader-engine/internal/notify"
	"github.com/codebytelabs/daytrader-engine/internal/protector"
	"github.com/codebytelabs/daytrader-engine/internal/regime"
	"github.com/codebytelabs/daytrader-engine/internal/risk"
	"github.com/codebytelabs/daytrader-engine/internal/sentiment"
	"github.com/codebytelabs/daytrader-engine/internal/strategy"
)

func main() {
	log.Println("🛡️ DAYTRADER ENGINE | MODE: EQUITIES DAY TRADING")
	log.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	cfg := config.Load()

	bus := eventbus.New()

	gw := broker.New(broker.Opts{
		KeyID:     cfg.AlpacaKeyID,
		SecretKey: cfg.AlpacaSecretKey,
		BaseURL:   cfg.AlpacaBaseURL,
		DataURL:   cfg.AlpacaDataURL,
	})

	mdCache := marketdata.New(gw, bus, marketdata.Timeframe5Min)
	dailyCache := dailycache.New(gw)
	regimeDet := regime.New(gw, "SPY", "VIXY")
	sentimentClient := sentiment.New(cfg.SentimentURL)

	strat := strategy.New(strategy.Config{
		LongOnlyMode:               cfg.LongOnlyMode,
		EnableTimeOfDayFilter:      cfg.EnableTimeOfDayFilter,
		LunchStart:                 cfg.LunchWindow.Start,
		LunchEnd:                   cfg.LunchWindow.End,
		Enable200EMAFilter:         cfg.Enable200EMAFilter,
		EnableMultiTimeframeFilter: cfg.EnableMultiTimeframeFilter,
	})

	var ai risk.AIValidator
	if cfg.EnableAIValidation {
		ai = aivalidator.New(cfg.AIValidatorURL, cfg.AIValidationTimeout)
	}
	riskMgr := risk.New(risk.Config{
		RiskPerTradePct:    cfg.RiskPerTradePct,
		MaxPositionPct:     cfg.MaxPositionPct,
		CircuitBreakerPct:  cfg.CircuitBreakerPct,
		MaxPositions:       cfg.MaxPositions,
		MaxDailyTrades:     cfg.MaxDailyTrades,
		MaxSymbolTrades:    cfg.MaxSymbolTrades,
		CooldownLosses:     cfg.CooldownLosses,
		CooldownDuration:   cfg.CooldownDuration,
		EnableAIValidation: cfg.EnableAIValidation,
	}, ai)

	exec := executor.New(executor.BrokerAdapter{GW: gw}, bus, executor.Config{
		FillTimeout:       time.Duration(cfg.FillTimeoutSeconds) * time.Second,
		MinRewardRisk:     cfg.MinRewardRisk,
		MaxSlippagePct:    cfg.MaxSlippagePct,
		SlippageBufferPct: cfg.SlippageBufferPct,
	})

	prot := protector.New(&protector.BrokerAdapter{GW: gw}, bus, protector.Config{
		PartialPct:     cfg.PartialPct,
		TrailActivateR: cfg.TrailActivateR,
		ATRTrailMult:   1.0,
		StuckStopScan:  5 * time.Second,
	})

	tradingEngine := engine.New(engine.Config{
		Watchlist:                cfg.Watchlist,
		IndexSymbol:              "SPY",
		VIXSymbol:                "VIXY",
		EndOfDayCutoff:           cfg.EndOfDayCutoff,
		MarketDataInterval:       cfg.MarketDataInterval,
		StrategyInterval:         cfg.StrategyInterval,
		PositionMonitorInterval:  cfg.PositionMonitorInterval,
		MetricsInterval:          cfg.MetricsInterval,
		ScannerInterval:          cfg.ScannerInterval,
		ProfitProtectionInterval: cfg.ProfitProtectionInterval,
	}, &engine.BrokerAdapter{GW: gw}, mdCache, dailyCache, regimeDet, sentimentClient, strat, riskMgr, exec, prot, bus)

	telegram := notify.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID)
	push := notify.NewPush(cfg.FirebaseCredFile)
	hub := notify.NewHub()

	var sink journal.Sink
	if cfg.FirestoreEnabled {
		fsSink, err := journal.NewFirestoreSink(context.Background(), cfg.FirestoreProjectID, "trade_journal")
		if err != nil {
			log.Printf("⚠️ JOURNAL: Firestore sink unavailable, journaling disabled: %v", err)
		} else {
			sink = fsSink
		}
	}
	recorder := journal.NewRecorder(sink)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder.Subscribe(ctx, bus)
	hub.Subscribe(ctx, bus)
	if telegram != nil {
		telegram.Subscribe(ctx, bus)
		go telegram.StartCommandListener(ctx, tradingEngine)
	}
	if push != nil {
		go push.StartWorker(ctx)
		push.Subscribe(ctx, bus)
	}

	go tradingEngine.Run(ctx)

	mux := notify.NewHTTPMux(tradingEngine, hub, cfg.OperatorBearer)
	server := &http.Server{Addr: ":8081", Handler: mux}

	go func() {
		log.Println("🌐 Server running on :8081")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	log.Println("✅ All systems go")
	<-ctx.Done()

	log.Println("🛑 Shutdown signal received, draining...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("⚠️ HTTP shutdown error: %v", err)
	}
}
