package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"coin-strategies/internal/backtest"
	"coin-strategies/internal/config"
	"coin-strategies/internal/database"
	"coin-strategies/internal/logger"
	"coin-strategies/internal/pricing"
	"coin-strategies/internal/trader"
)

func main() {
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	store := pricing.NewHistoryStore(db)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, aborting remaining trials...")
		cancel()
	}()

	runner := backtest.NewRunner(store, log, backtest.Config{
		BaseCoin:     cfg.Trading.BaseCoin,
		Coins:        cfg.Trading.Coins,
		FeeRate:      cfg.Trading.FeeRate,
		StartBalance: cfg.Backtest.StartBalance,
		Trials:       cfg.Backtest.Trials,
		IntervalDays: cfg.Backtest.IntervalDays,
		Step:         time.Duration(cfg.Backtest.StepMinutes) * time.Minute,
		Workers:      cfg.Backtest.Workers,
		Seed:         cfg.Backtest.Seed,
		Loop: trader.LoopConfig{
			BetSize:        cfg.Trading.BetSize,
			MaxCoinHolding: cfg.Trading.MaxCoinHolding,
			MinSpend:       cfg.Trading.MinSpend,
			FeeBuffer:      cfg.Trading.FeeBuffer,
		},
	})

	summary, err := runner.Run(ctx)
	if err != nil {
		log.Fatal("Backtest failed", zap.Error(err))
	}

	log.Info("Backtest finished",
		zap.Int("trials", summary.Trials),
		zap.Int("profitable", summary.Profitable),
		zap.Int("beat_hold", summary.BeatHold),
		zap.Float64("return_min_pct", summary.Returns.Min),
		zap.Float64("return_median_pct", summary.Returns.Median),
		zap.Float64("return_mean_pct", summary.Returns.Mean),
		zap.Float64("return_max_pct", summary.Returns.Max),
		zap.Float64("return_stddev", summary.Returns.StdDev),
		zap.Float64("hold_median_pct", summary.HoldReturns.Median),
		zap.Float64("trades_mean", summary.TradesPerTrial.Mean))

	report, err := backtest.Kelly(summary.Gains, summary.Losses)
	switch {
	case errors.Is(err, backtest.ErrNoTrades), errors.Is(err, backtest.ErrZeroMagnitude):
		log.Warn("Not enough realized trades for a Kelly estimate", zap.Error(err))
	case err != nil:
		log.Fatal("Kelly estimate failed", zap.Error(err))
	default:
		fields := []zap.Field{
			zap.Float64("win_probability", report.WinProbability),
			zap.Float64("simplified_pct", report.SimplifiedPercent),
		}
		for _, e := range report.Estimates {
			fields = append(fields, zap.Float64("fraction_"+e.Estimator, e.Fraction))
		}
		log.Info("Kelly bet sizing", fields...)
	}
}
