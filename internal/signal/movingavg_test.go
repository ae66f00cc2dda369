package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"coin-strategies/internal/pricing"
)

// stubSeries serves canned ticks and asks without a database.
type stubSeries struct {
	points []pricing.PricePoint
	asks   map[string]float64
	peaks  map[string]float64
}

func (s *stubSeries) Query(coin string, from, to time.Time) ([]pricing.PricePoint, error) {
	var out []pricing.PricePoint
	for _, p := range s.points {
		if p.Coin == coin && p.Timestamp.After(from) && p.Timestamp.Before(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *stubSeries) Peak(coin string, from, asOf time.Time) (float64, bool, error) {
	peak, ok := s.peaks[coin]
	return peak, ok, nil
}

func (s *stubSeries) CurrentAsk(coin string, asOf time.Time) (float64, bool, error) {
	ask, ok := s.asks[coin]
	return ask, ok, nil
}

// genTicks emits one tick every 15 minutes over the span ending at `end`,
// pricing each tick through priceAt.
func genTicks(coin string, end time.Time, span time.Duration, priceAt func(age time.Duration) float64) []pricing.PricePoint {
	var points []pricing.PricePoint
	for age := span; age >= 0; age -= 15 * time.Minute {
		points = append(points, pricing.PricePoint{
			Coin:      coin,
			Timestamp: end.Add(-age),
			Ask:       priceAt(age),
		})
	}
	return points
}

func TestMovingAverage_AbstainsWithThinHistory(t *testing.T) {
	now := time.Date(2021, 3, 10, 12, 0, 0, 0, time.UTC)
	// Only 10 hours of data: abstain no matter how strong the dip looks.
	series := &stubSeries{
		points: genTicks("DCR", now, 10*time.Hour, func(age time.Duration) float64 {
			if age < time.Hour {
				return 1.0
			}
			return 2.0
		}),
		asks: map[string]float64{"DCR": 1.0},
	}

	ma := NewMovingAverage(series, zap.NewNop())
	_, ok := ma.Evaluate("DCR", now)
	assert.False(t, ok)
}

func TestMovingAverage_AbstainsWithNoData(t *testing.T) {
	now := time.Date(2021, 3, 10, 12, 0, 0, 0, time.UTC)
	ma := NewMovingAverage(&stubSeries{}, zap.NewNop())
	_, ok := ma.Evaluate("DCR", now)
	assert.False(t, ok)
}

func TestMovingAverage_WeakBuy(t *testing.T) {
	now := time.Date(2021, 3, 10, 12, 0, 0, 0, time.UTC)
	// The last hour sits well below the day's mean, but the longer windows
	// are only modestly elevated: weak signal only.
	series := &stubSeries{
		points: genTicks("DCR", now, 120*time.Hour, func(age time.Duration) float64 {
			switch {
			case age < time.Hour:
				return 1.0
			case age < 24*time.Hour:
				return 1.2
			default:
				return 1.1
			}
		}),
		asks: map[string]float64{"DCR": 1.0},
	}

	ma := NewMovingAverage(series, zap.NewNop())
	action, ok := ma.Evaluate("DCR", now)
	assert.True(t, ok)
	assert.Equal(t, 0.5, action.Fraction)
	assert.Equal(t, 1.0, action.Price)
}

func TestMovingAverage_StrongBuy(t *testing.T) {
	now := time.Date(2021, 3, 10, 12, 0, 0, 0, time.UTC)
	// Elevated across every window: the full-confidence signal.
	series := &stubSeries{
		points: genTicks("DCR", now, 120*time.Hour, func(age time.Duration) float64 {
			if age < time.Hour {
				return 1.0
			}
			return 1.2
		}),
		asks: map[string]float64{"DCR": 1.0},
	}

	ma := NewMovingAverage(series, zap.NewNop())
	action, ok := ma.Evaluate("DCR", now)
	assert.True(t, ok)
	assert.Equal(t, 1.0, action.Fraction)
}

func TestMovingAverage_NoSignalOnFlatPrices(t *testing.T) {
	now := time.Date(2021, 3, 10, 12, 0, 0, 0, time.UTC)
	series := &stubSeries{
		points: genTicks("DCR", now, 120*time.Hour, func(time.Duration) float64 {
			return 1.0
		}),
		asks: map[string]float64{"DCR": 1.0},
	}

	ma := NewMovingAverage(series, zap.NewNop())
	_, ok := ma.Evaluate("DCR", now)
	assert.False(t, ok)
}

func TestMovingAverage_AbstainsWithoutCurrentAsk(t *testing.T) {
	now := time.Date(2021, 3, 10, 12, 0, 0, 0, time.UTC)
	series := &stubSeries{
		points: genTicks("DCR", now, 120*time.Hour, func(age time.Duration) float64 {
			if age < time.Hour {
				return 1.0
			}
			return 1.2
		}),
		asks: map[string]float64{}, // no ask to reference
	}

	ma := NewMovingAverage(series, zap.NewNop())
	_, ok := ma.Evaluate("DCR", now)
	assert.False(t, ok)
}

func TestBucketTime(t *testing.T) {
	base := time.Date(2021, 3, 10, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, base, bucketTime(base))
	assert.Equal(t, base, bucketTime(base.Add(7*time.Minute)))
	assert.Equal(t, base.Add(15*time.Minute), bucketTime(base.Add(8*time.Minute)))
	assert.Equal(t, base.Add(-15*time.Minute), bucketTime(base.Add(-7*time.Minute-31*time.Second)))
}
