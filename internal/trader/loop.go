package trader

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coin-strategies/internal/ledger"
	"coin-strategies/internal/pricing"
	"coin-strategies/internal/signal"
)

// BuySignal and SellSignal produce at most one action per coin per tick.
type BuySignal interface {
	Evaluate(coin string, now time.Time) (signal.Action, bool)
}

// SellSignal is evaluated before BuySignal and preempts it for the tick.
type SellSignal interface {
	Evaluate(coin string, now time.Time) (signal.Action, bool)
}

// OrderPlacer submits an order to an exchange. A nil OrderPlacer (as in a
// simulation) means trades settle directly against the ledger.
type OrderPlacer interface {
	PlaceOrder(coin string, units, price float64) (string, error)
}

// LoopConfig tunes the per-tick decision logic.
type LoopConfig struct {
	// BetSize is the fraction of portfolio value spent on a
	// full-confidence buy signal.
	BetSize float64
	// MaxCoinHolding caps a single coin at this fraction of the portfolio.
	MaxCoinHolding float64
	// MinSpend is the smallest base-currency amount worth buying with.
	MinSpend float64
	// FeeBuffer holds back part of the base balance so the buy fee can
	// never overdraw it.
	FeeBuffer float64
	// ApplyUnconfirmed applies ledger deltas even when order placement
	// fails. Kept for parity with exchanges that fill asynchronously.
	ApplyUnconfirmed bool
}

// DefaultLoopConfig returns the standard tuning.
func DefaultLoopConfig() LoopConfig {
	return LoopConfig{
		BetSize:        0.25,
		MaxCoinHolding: 0.15,
		MinSpend:       0.0005,
		FeeBuffer:      0.003,
	}
}

// Loop drives the per-tick trading decisions for one account: a sell
// check via the stop loss, then a buy check via the moving averages, for
// every tracked coin. A failure while processing one coin is logged and
// never blocks the remaining coins.
type Loop struct {
	logger *zap.Logger
	ledger *ledger.Ledger
	series pricing.Series
	buy    BuySignal
	sell   SellSignal
	orders OrderPlacer
	coins  []string
	cfg    LoopConfig

	outOfBase    int
	hitCoinLimit int
}

// NewLoop creates a trading loop over a ledger and its signals. orders may
// be nil for simulated accounts.
func NewLoop(logger *zap.Logger, led *ledger.Ledger, series pricing.Series,
	buy BuySignal, sell SellSignal, orders OrderPlacer, coins []string, cfg LoopConfig) *Loop {
	return &Loop{
		logger: logger,
		ledger: led,
		series: series,
		buy:    buy,
		sell:   sell,
		orders: orders,
		coins:  coins,
		cfg:    cfg,
	}
}

// OutOfBase counts buy signals skipped for lack of base currency.
func (l *Loop) OutOfBase() int { return l.outOfBase }

// HitCoinLimit counts buy signals skipped by the per-coin holding cap.
func (l *Loop) HitCoinLimit() int { return l.hitCoinLimit }

// Tick runs one decision round over every tracked coin and returns how
// many trades were executed.
func (l *Loop) Tick(now time.Time) int {
	executed := 0
	for _, coin := range l.coins {
		if coin == l.ledger.Base() {
			continue
		}
		traded, err := l.tickCoin(coin, now)
		if err != nil {
			l.logger.Error("Tick failed for coin, continuing with the rest",
				zap.String("coin", coin), zap.Time("at", now), zap.Error(err))
			continue
		}
		if traded {
			executed++
		}
	}
	return executed
}

func (l *Loop) tickCoin(coin string, now time.Time) (bool, error) {
	sold, err := l.checkSell(coin, now)
	if err != nil || sold {
		return sold, err
	}
	return l.checkBuy(coin, now)
}

func (l *Loop) checkSell(coin string, now time.Time) (bool, error) {
	if !l.ledger.Balance(coin).IsPositive() {
		return false, nil
	}
	action, ok := l.sell.Evaluate(coin, now)
	if !ok {
		return false, nil
	}

	// FullExit is -1, so the whole balance goes.
	units := ledger.Truncate(l.ledger.Balance(coin).Mul(decimal.NewFromFloat(action.Fraction)))
	if units.IsZero() {
		return false, nil
	}
	if err := l.transact(coin, units, decimal.NewFromFloat(action.Price), now); err != nil {
		return false, err
	}
	return true, nil
}

func (l *Loop) checkBuy(coin string, now time.Time) (bool, error) {
	action, ok := l.buy.Evaluate(coin, now)
	if !ok {
		return false, nil
	}

	portfolio, err := l.ledger.ValueInBase(l.series, now)
	if err != nil {
		return false, err
	}
	price := decimal.NewFromFloat(action.Price)

	holding := l.ledger.Balance(coin).Mul(price)
	if holding.GreaterThan(portfolio.Mul(decimal.NewFromFloat(l.cfg.MaxCoinHolding))) {
		l.hitCoinLimit++
		l.logger.Debug("Skipping buy, coin already at holding limit",
			zap.String("coin", coin), zap.String("holding", holding.String()))
		return false, nil
	}

	spend := portfolio.
		Mul(decimal.NewFromFloat(l.cfg.BetSize)).
		Mul(decimal.NewFromFloat(action.Fraction))
	available := l.ledger.Balance(l.ledger.Base()).
		Mul(decimal.NewFromFloat(1 - l.cfg.FeeBuffer))
	if spend.GreaterThan(available) {
		spend = available
	}
	if spend.LessThan(decimal.NewFromFloat(l.cfg.MinSpend)) {
		l.outOfBase++
		l.logger.Debug("Skipping buy, not enough base currency",
			zap.String("coin", coin), zap.String("spend", spend.String()))
		return false, nil
	}

	units := ledger.Truncate(spend.Div(price))
	if !units.IsPositive() {
		l.outOfBase++
		return false, nil
	}
	if err := l.transact(coin, units, price, now); err != nil {
		return false, err
	}
	return true, nil
}

// transact places the order (when an OrderPlacer is wired), executes the
// trade against the ledger, and applies the returned base-currency delta.
func (l *Loop) transact(coin string, units, price decimal.Decimal, now time.Time) error {
	verb := "Buy"
	if units.IsNegative() {
		verb = "Sell"
	}

	if l.orders != nil {
		orderID, err := l.orders.PlaceOrder(coin, units.InexactFloat64(), price.InexactFloat64())
		if err != nil {
			if !l.cfg.ApplyUnconfirmed {
				return fmt.Errorf("order placement failed for %s: %w", coin, err)
			}
			l.logger.Warn("Order placement failed, applying ledger delta anyway",
				zap.String("coin", coin), zap.Error(err))
		} else {
			l.logger.Info("Order placed", zap.String("coin", coin), zap.String("order_id", orderID))
		}
	}

	delta, err := l.ledger.Trade(coin, units, price, now)
	if err != nil {
		return err
	}
	if err := l.ledger.Update(l.ledger.Base(), delta, decimal.New(1, 0), now); err != nil {
		return err
	}

	l.logger.Info(verb,
		zap.String("coin", coin),
		zap.String("units", units.String()),
		zap.String("price", price.String()),
		zap.String("base_delta", delta.String()),
		zap.Time("at", now))
	return nil
}
