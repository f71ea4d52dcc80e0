// Package main runs the signal synthesis server: a cyclic pipeline that
// computes indicators, classifies the market regime, synthesizes signals
// with adaptive indicator weighting and scores their risk with Monte
// Carlo simulation, exposed over HTTP and WebSocket.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/api"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/config"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/confluence"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/indicators"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/metrics"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/montecarlo"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/patterns"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/provider"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/regime"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/scheduler"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/store"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/synthesizer"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/weights"
	"github.com/Fairhaven-Equity-Partners/CryptoTraderPro-sub009/internal/workers"
)

func main() {
	configDir := flag.String("config", ".", "Directory containing config.yaml")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load(*configDir)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	logger.Info("starting signal synthesis server",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Strings("symbols", cfg.Pipeline.Symbols),
		zap.Strings("timeframes", cfg.Pipeline.Timeframes),
		zap.Duration("cycle_interval", cfg.Pipeline.CycleInterval),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.New(logger, cfg.Store.DataDir)
	if err != nil {
		logger.Fatal("failed to initialize store", zap.Error(err))
	}

	recorder := metrics.New()
	weightManager := weights.NewManager(logger, cfg.Weights)
	scorer := confluence.NewScorer(logger, cfg.Confluence)

	// Recorded trade outcomes survive restarts; replaying them restores
	// the learned indicator weights before the first cycle.
	outcomes := st.RecentOutcomes(time.Time{})
	for _, o := range outcomes {
		weightManager.RecordOutcome(o.Indicator, o.Score)
	}
	if len(outcomes) > 0 {
		logger.Info("replayed outcome history into indicator weights", zap.Int("outcomes", len(outcomes)))
	}

	poolCfg := workers.DefaultPoolConfig("synthesis")
	poolCfg.NumWorkers = cfg.Pipeline.Workers
	pool := workers.NewPool(logger, poolCfg)
	pool.Start()

	prov := provider.NewCached(logger, provider.NewSynthetic(logger), cfg.Provider)

	sched := scheduler.New(logger, cfg.Pipeline, scheduler.Deps{
		Provider:    prov,
		Indicators:  indicators.NewEngine(logger, cfg.Indicators),
		Regime:      regime.NewDetector(logger, cfg.Regime),
		Patterns:    patterns.NewDetector(logger),
		Synthesizer: synthesizer.New(logger, cfg.Synthesizer, cfg.Provider.MinBars, weightManager, scorer),
		Risk:        montecarlo.NewEngine(logger, cfg.MonteCarlo),
		Weights:     weightManager,
		Store:       st,
		Pool:        pool,
		Metrics:     recorder,
		MinBars:     cfg.Provider.MinBars,
	})

	server := api.NewServer(logger, cfg.Server, st, sched, weightManager, prov)
	sched.OnSignal(server.Hub().BroadcastSignal)

	sched.Start(ctx)
	go func() {
		if err := server.Start(); err != nil {
			logger.Fatal("api server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")

	cancel()
	sched.Stop()
	pool.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Warn("api server shutdown incomplete", zap.Error(err))
	}

	logger.Info("shutdown complete")
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:    zap.NewAtomicLevelAt(zapLevel),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
