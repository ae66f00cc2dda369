package signal

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// stubPositions is a fixed PositionView.
type stubPositions struct {
	balances map[string]decimal.Decimal
	opened   map[string]time.Time
}

func (s stubPositions) Balance(coin string) decimal.Decimal {
	return s.balances[coin]
}

func (s stubPositions) Opened(coin string) (time.Time, bool) {
	at, ok := s.opened[coin]
	return at, ok
}

func TestStopLoss_NeverFiresInsideMinHold(t *testing.T) {
	opened := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	positions := stubPositions{
		balances: map[string]decimal.Decimal{"DCR": decimal.NewFromInt(10)},
		opened:   map[string]time.Time{"DCR": opened},
	}
	// A brutal 50% drawdown, but the position is only 23 hours old.
	series := &stubSeries{
		peaks: map[string]float64{"DCR": 0.2},
		asks:  map[string]float64{"DCR": 0.1},
	}

	sl := NewStopLoss(series, positions, zap.NewNop())
	_, ok := sl.Evaluate("DCR", opened.Add(23*time.Hour))
	assert.False(t, ok)

	// One hour later the hold period has elapsed and the same drawdown sells.
	action, ok := sl.Evaluate("DCR", opened.Add(25*time.Hour))
	assert.True(t, ok)
	assert.Equal(t, FullExit, action.Fraction)
	assert.Equal(t, 0.1, action.Price)
}

func TestStopLoss_HoldsThroughMildDrawdown(t *testing.T) {
	opened := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	positions := stubPositions{
		balances: map[string]decimal.Decimal{"DCR": decimal.NewFromInt(10)},
		opened:   map[string]time.Time{"DCR": opened},
	}
	// Down 2% from the peak: inside the 4% tolerance.
	series := &stubSeries{
		peaks: map[string]float64{"DCR": 0.1},
		asks:  map[string]float64{"DCR": 0.098},
	}

	sl := NewStopLoss(series, positions, zap.NewNop())
	_, ok := sl.Evaluate("DCR", opened.Add(48*time.Hour))
	assert.False(t, ok)
}

func TestStopLoss_NoPosition(t *testing.T) {
	series := &stubSeries{
		peaks: map[string]float64{"DCR": 0.2},
		asks:  map[string]float64{"DCR": 0.1},
	}
	sl := NewStopLoss(series, stubPositions{}, zap.NewNop())
	_, ok := sl.Evaluate("DCR", time.Now())
	assert.False(t, ok)
}

func TestStopLoss_AbstainsWithoutPrices(t *testing.T) {
	opened := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	positions := stubPositions{
		balances: map[string]decimal.Decimal{"DCR": decimal.NewFromInt(10)},
		opened:   map[string]time.Time{"DCR": opened},
	}

	t.Run("NoPeak", func(t *testing.T) {
		series := &stubSeries{asks: map[string]float64{"DCR": 0.1}}
		sl := NewStopLoss(series, positions, zap.NewNop())
		_, ok := sl.Evaluate("DCR", opened.Add(48*time.Hour))
		assert.False(t, ok)
	})

	t.Run("NoAsk", func(t *testing.T) {
		series := &stubSeries{peaks: map[string]float64{"DCR": 0.2}}
		sl := NewStopLoss(series, positions, zap.NewNop())
		_, ok := sl.Evaluate("DCR", opened.Add(48*time.Hour))
		assert.False(t, ok)
	})
}
