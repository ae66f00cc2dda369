package signal

import (
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coin-strategies/internal/pricing"
)

const (
	// DefaultDrop is the peak-to-current drawdown that triggers a full exit.
	DefaultDrop = 0.04
	// DefaultMinHold is how long a position must be held before the stop
	// loss is allowed to fire, whatever the drawdown.
	DefaultMinHold = 24 * time.Hour
)

// PositionView is the slice of the ledger the stop loss needs: current
// balances and position-open timestamps.
type PositionView interface {
	Balance(coin string) decimal.Decimal
	Opened(coin string) (time.Time, bool)
}

// StopLoss signals a full exit when a held coin falls too far below its
// peak since the position became eligible for selling.
type StopLoss struct {
	series    pricing.Series
	positions PositionView
	logger    *zap.Logger
	minHold   time.Duration
	drop      float64
}

// NewStopLoss creates the signal over a price series and position view.
func NewStopLoss(series pricing.Series, positions PositionView, logger *zap.Logger) *StopLoss {
	return &StopLoss{
		series:    series,
		positions: positions,
		logger:    logger,
		minHold:   DefaultMinHold,
		drop:      DefaultDrop,
	}
}

// Evaluate returns a full-exit action when the drawdown threshold is
// breached, or ok=false otherwise. It never fires inside the minimum hold
// period, and abstains when price data is unavailable.
func (s *StopLoss) Evaluate(coin string, now time.Time) (Action, bool) {
	if !s.positions.Balance(coin).IsPositive() {
		return Action{}, false
	}
	opened, ok := s.positions.Opened(coin)
	if !ok {
		return Action{}, false
	}

	eligible := opened.Add(s.minHold)
	if now.Before(eligible) {
		return Action{}, false
	}

	peak, ok, err := s.series.Peak(coin, eligible, now)
	if err != nil || !ok {
		if err != nil {
			s.logger.Warn("Could not fetch peak, abstaining",
				zap.String("coin", coin), zap.Error(err))
		}
		return Action{}, false
	}
	current, ok, err := s.series.CurrentAsk(coin, now)
	if err != nil || !ok {
		if err != nil {
			s.logger.Warn("Could not fetch current ask, abstaining",
				zap.String("coin", coin), zap.Error(err))
		}
		return Action{}, false
	}

	drawdown := (current - peak) / peak
	if drawdown >= -s.drop {
		return Action{}, false
	}

	s.logger.Info("Stop loss triggered",
		zap.String("coin", coin),
		zap.Float64("ask", current),
		zap.Float64("peak", peak),
		zap.Float64("drawdown_percent", drawdown*100),
		zap.Time("at", now))
	return Action{Fraction: FullExit, Price: current}, true
}
