package trader

import (
	"context"
	"time"

	"go.uber.org/zap"

	"coin-strategies/internal/config"
	"coin-strategies/internal/exchange"
	"coin-strategies/internal/ledger"
	"coin-strategies/internal/pricing"
	"coin-strategies/internal/signal"
)

// reportEveryTicks spaces the periodic account valuation in the log.
const reportEveryTicks = 6

// Engine is the live trading engine: on a fixed cadence it collects
// tickers into the price archive, runs the trading loop against the
// durable account, and persists any balance changes.
type Engine struct {
	logger  *zap.Logger
	cfg     *config.Config
	gateway exchange.Gateway
	store   *pricing.HistoryStore
	account *ledger.Durable
	loop    *Loop
	ticks   int
}

// NewEngine wires the signals and trading loop around a durable account.
func NewEngine(logger *zap.Logger, cfg *config.Config, gateway exchange.Gateway,
	store *pricing.HistoryStore, account *ledger.Durable) *Engine {
	loopCfg := LoopConfig{
		BetSize:          cfg.Trading.BetSize,
		MaxCoinHolding:   cfg.Trading.MaxCoinHolding,
		MinSpend:         cfg.Trading.MinSpend,
		FeeBuffer:        cfg.Trading.FeeBuffer,
		ApplyUnconfirmed: cfg.Trading.ApplyUnconfirmed,
	}

	var orders OrderPlacer
	if !cfg.Trading.DryRun {
		orders = gateway
	} else {
		logger.Warn("Dry run enabled. Orders settle against the ledger only.")
	}

	buy := signal.NewMovingAverage(store, logger.Named("moving-avg"))
	sell := signal.NewStopLoss(store, account, logger.Named("stop-loss"))
	loop := NewLoop(logger.Named("loop"), account.Ledger, store, buy, sell,
		orders, cfg.Trading.Coins, loopCfg)

	return &Engine{
		logger:  logger,
		cfg:     cfg,
		gateway: gateway,
		store:   store,
		account: account,
		loop:    loop,
	}
}

// Run starts the engine's main loop and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	interval := time.Duration(e.cfg.Trading.TickInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting trading loop",
		zap.Duration("interval", interval),
		zap.Strings("coins", e.cfg.Trading.Coins))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine...")
			return
		case <-ticker.C:
			e.tick(time.Now().UTC())
		}
	}
}

// tick collects prices, runs the decision loop once, and saves the account
// when anything traded.
func (e *Engine) tick(now time.Time) {
	e.collectPrices()

	executed := e.loop.Tick(now)
	if executed > 0 {
		if err := e.account.Save(); err != nil {
			e.logger.Error("Failed to persist account after trading", zap.Error(err))
		}
	}

	e.ticks++
	if e.ticks%reportEveryTicks == 0 {
		e.logReport(now)
	}
}

// collectPrices fetches a ticker for every tracked coin and archives it.
// A coin with no data this round is simply skipped; the signals abstain on
// missing prices.
func (e *Engine) collectPrices() {
	for _, coin := range e.cfg.Trading.Coins {
		point, ok := e.gateway.FetchTicker(coin)
		if !ok {
			e.logger.Warn("No ticker data this round", zap.String("coin", coin))
			continue
		}
		if err := e.store.Save(point); err != nil {
			e.logger.Error("Failed to archive ticker",
				zap.String("coin", coin), zap.Error(err))
		}
	}
}

func (e *Engine) logReport(now time.Time) {
	report, err := BuildReport(e.account.Ledger, e.store, now)
	if err != nil {
		e.logger.Error("Failed to build value report", zap.Error(err))
		return
	}

	fields := []zap.Field{
		zap.String("total_"+report.BaseCoin, report.TotalValue.String()),
		zap.String("fees", e.account.Fees().String()),
	}
	for _, coin := range report.Coins {
		fields = append(fields, zap.String(coin.Coin, coin.Value.String()))
	}
	e.logger.Info("Account value", fields...)
}
