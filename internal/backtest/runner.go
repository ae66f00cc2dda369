package backtest

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"coin-strategies/internal/ledger"
	"coin-strategies/internal/pricing"
	"coin-strategies/internal/signal"
	"coin-strategies/internal/trader"
)

// Config tunes a backtest run. Zero values fall back to the defaults the
// live trader uses.
type Config struct {
	BaseCoin string
	// Coins to trade. Empty means every coin present in the history.
	Coins        []string
	FeeRate      float64
	StartBalance float64

	Trials       int
	IntervalDays int
	Step         time.Duration
	Workers      int
	// Seed makes trial interval sampling reproducible: trial i draws from
	// a generator seeded with Seed+i, so runs with the same seed pick the
	// same intervals regardless of worker scheduling.
	Seed int64

	Loop trader.LoopConfig
}

func (c *Config) normalize() {
	if c.BaseCoin == "" {
		c.BaseCoin = "BTC"
	}
	if c.FeeRate == 0 {
		c.FeeRate = ledger.DefaultFeeRate
	}
	if c.StartBalance == 0 {
		c.StartBalance = 5
	}
	if c.Trials == 0 {
		c.Trials = 100
	}
	if c.IntervalDays == 0 {
		c.IntervalDays = 30
	}
	if c.Step == 0 {
		c.Step = 10 * time.Minute
	}
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.Loop == (trader.LoopConfig{}) {
		c.Loop = trader.DefaultLoopConfig()
	}
}

// ConsistencyError reports a trial that ended with a position the forced
// liquidation could not close, which would skew the run statistics.
type ConsistencyError struct {
	Trial   int
	Coin    string
	Balance decimal.Decimal
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("trial %d: %s position of %s survived liquidation",
		e.Trial, e.Coin, e.Balance)
}

// Runner replays the trading loop over randomly sampled intervals of
// recorded price history.
type Runner struct {
	store  *pricing.HistoryStore
	logger *zap.Logger
	cfg    Config
}

// NewRunner creates a backtest runner over a price history store.
func NewRunner(store *pricing.HistoryStore, logger *zap.Logger, cfg Config) *Runner {
	cfg.normalize()
	return &Runner{store: store, logger: logger, cfg: cfg}
}

// Run executes all trials, spread over the configured number of workers,
// and aggregates their results. The first trial error aborts the run.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	coins := r.cfg.Coins
	if len(coins) == 0 {
		var err error
		if coins, err = r.store.Coins(); err != nil {
			return Summary{}, fmt.Errorf("failed to list coins: %w", err)
		}
	}

	oldest, newest, err := r.store.Bounds()
	if err != nil {
		return Summary{}, fmt.Errorf("failed to read history bounds: %w", err)
	}
	length := time.Duration(r.cfg.IntervalDays) * 24 * time.Hour
	room := newest.Sub(oldest) - length
	if room <= 0 {
		return Summary{}, fmt.Errorf("not enough history for %d-day trials: have %s",
			r.cfg.IntervalDays, newest.Sub(oldest))
	}

	r.logger.Info("Starting backtest",
		zap.Int("trials", r.cfg.Trials),
		zap.Int("interval_days", r.cfg.IntervalDays),
		zap.Strings("coins", coins),
		zap.Time("oldest", oldest),
		zap.Time("newest", newest))

	results := make([]Result, r.cfg.Trials)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i := 0; i < r.cfg.Trials; i++ {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(r.cfg.Seed + int64(i)))
			start := oldest.Add(time.Duration(rng.Int63n(int64(room))))
			res, err := r.runTrial(i, start, start.Add(length), coins)
			if err != nil {
				return err
			}
			results[i] = res
			r.logger.Info("Trial finished",
				zap.Int("trial", i),
				zap.Time("start", res.Start),
				zap.Float64("return_pct", res.PercentReturn()),
				zap.Float64("hold_pct", res.HoldReturn),
				zap.Int("txns", len(res.Txns)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	return Summarize(results), nil
}

func (r *Runner) runTrial(trial int, start, stop time.Time, coins []string) (Result, error) {
	store := r.store.Session()
	// Per-signal chatter is useful live but drowns a hundred trials.
	quiet := r.logger.WithOptions(zap.IncreaseLevel(zapcore.WarnLevel))

	led := ledger.New(r.cfg.BaseCoin, map[string]decimal.Decimal{
		r.cfg.BaseCoin: decimal.NewFromFloat(r.cfg.StartBalance),
	}, start)
	led.SetFeeRate(r.cfg.FeeRate)

	buy := signal.NewMovingAverage(store, quiet)
	for _, coin := range coins {
		if err := buy.Warm(coin, start.Add(-signal.MaxLookback()), stop); err != nil {
			return Result{}, fmt.Errorf("trial %d: failed to warm %s: %w", trial, coin, err)
		}
	}
	sell := signal.NewStopLoss(store, led, quiet)
	loop := trader.NewLoop(quiet, led, store, buy, sell, nil, coins, r.cfg.Loop)

	startValue, err := led.ValueInBase(store, start)
	if err != nil {
		return Result{}, err
	}
	high, low := startValue, startValue

	sampleEvery := int(12 * time.Hour / r.cfg.Step)
	if sampleEvery < 1 {
		sampleEvery = 1
	}
	ticks := 0
	for now := start.Add(r.cfg.Step); now.Before(stop); now = now.Add(r.cfg.Step) {
		loop.Tick(now)
		ticks++
		if ticks%sampleEvery != 0 {
			continue
		}
		value, err := led.ValueInBase(store, now)
		if err != nil {
			return Result{}, err
		}
		if value.GreaterThan(high) {
			high = value
		}
		if value.LessThan(low) {
			low = value
		}
	}

	if err := r.liquidate(trial, led, store, stop); err != nil {
		return Result{}, err
	}
	finish, err := led.ValueInBase(store, stop)
	if err != nil {
		return Result{}, err
	}

	hold, err := r.holdReturn(store, start, stop, coins)
	if err != nil {
		return Result{}, err
	}

	gains, losses := led.EvaluateTrades()
	return Result{
		Trial:        trial,
		Start:        start,
		Stop:         stop,
		StartValue:   startValue.InexactFloat64(),
		FinishValue:  finish.InexactFloat64(),
		High:         high.InexactFloat64(),
		Low:          low.InexactFloat64(),
		Fees:         led.Fees().InexactFloat64(),
		Txns:         led.Txns(),
		Gains:        gains,
		Losses:       losses,
		OutOfBase:    loop.OutOfBase(),
		HitCoinLimit: loop.HitCoinLimit(),
		HoldReturn:   hold,
	}, nil
}

// liquidate closes every non-base position at the interval-end ask so the
// finish value is pure base currency.
func (r *Runner) liquidate(trial int, led *ledger.Ledger, store pricing.Series, stop time.Time) error {
	for _, coin := range led.Positions() {
		if coin == led.Base() {
			continue
		}
		ask, ok, err := store.CurrentAsk(coin, stop)
		if err != nil {
			return err
		}
		if !ok {
			return &ConsistencyError{Trial: trial, Coin: coin, Balance: led.Balance(coin)}
		}
		price := decimal.NewFromFloat(ask)
		delta, err := led.Trade(coin, led.Balance(coin).Neg(), price, stop)
		if err != nil {
			return err
		}
		if err := led.Update(led.Base(), delta, decimal.New(1, 0), stop); err != nil {
			return err
		}
	}
	for _, coin := range led.Positions() {
		if coin != led.Base() {
			return &ConsistencyError{Trial: trial, Coin: coin, Balance: led.Balance(coin)}
		}
	}
	return nil
}

// holdReturn is the buy-and-hold baseline: an equal share of each tracked
// coin bought at interval start and sold at interval end, expressed in the
// same return convention as matched trades, so each share pays the
// round-trip fee. With flat prices it comes out to exactly -2x the fee
// rate. Coins with no price at either edge sit the interval out.
func (r *Runner) holdReturn(store pricing.Series, start, stop time.Time, coins []string) (float64, error) {
	total, priced := 0.0, 0
	for _, coin := range coins {
		if coin == r.cfg.BaseCoin {
			continue
		}
		open, ok, err := store.CurrentAsk(coin, start)
		if err != nil {
			return 0, err
		}
		if !ok || open == 0 {
			continue
		}
		closing, ok, err := store.CurrentAsk(coin, stop)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		total += (closing-open)/open - 2*r.cfg.FeeRate
		priced++
	}
	if priced == 0 {
		return 0, nil
	}
	return 100 * total / float64(priced), nil
}
