package signal

import (
	"time"

	"go.uber.org/zap"

	"coin-strategies/internal/pricing"
)

const (
	bucketSize = 15 * time.Minute

	// minHistory is how much bucketed history a coin needs before the
	// strategy is willing to express an opinion at all.
	minHistory = 24 * time.Hour

	weakThreshold   = 1.07
	strongThreshold = 1.12

	weakConfidence   = 0.5
	strongConfidence = 1.0
)

// lookbackHours are the moving-average windows, shortest first. The
// shortest window is the normalization reference; windows up to 24h gate
// the weak signal and the rest gate the strong one.
var lookbackHours = []int{1, 6, 12, 24, 48, 72, 120}

// MovingAverage signals a buy when a coin's recent price sits well below
// its longer-term moving averages. Raw ticks are averaged into fixed
// 15-minute buckets before the window means are taken, so a burst of
// ticks cannot outweigh a quiet stretch.
type MovingAverage struct {
	series pricing.Series
	logger *zap.Logger

	// buckets holds, per coin, the asks observed in each 15-minute bucket.
	buckets map[string]map[time.Time][]float64
	// warmed is the per-coin high-water mark of ingested history.
	warmed map[string]time.Time
}

// NewMovingAverage creates the signal over a price series.
func NewMovingAverage(series pricing.Series, logger *zap.Logger) *MovingAverage {
	return &MovingAverage{
		series:  series,
		logger:  logger,
		buckets: make(map[string]map[time.Time][]float64),
		warmed:  make(map[string]time.Time),
	}
}

// bucketTime rounds a timestamp to the nearest 15-minute boundary.
func bucketTime(ts time.Time) time.Time {
	return ts.Round(bucketSize)
}

// MaxLookback is the longest window the strategy averages over. Callers
// prefetching history should cover at least this much before the first
// evaluation.
func MaxLookback() time.Duration {
	return time.Duration(lookbackHours[len(lookbackHours)-1]) * time.Hour
}

// Warm ingests history for coin over (from, to). Evaluate warms
// incrementally on its own; calling Warm up front just avoids per-tick
// queries when the full interval is known, as in a backtest.
func (m *MovingAverage) Warm(coin string, from, to time.Time) error {
	if mark := m.warmed[coin]; !mark.Before(to) {
		return nil
	} else if mark.After(from) {
		from = mark
	}

	points, err := m.series.Query(coin, from, to)
	if err != nil {
		return err
	}
	for _, p := range points {
		coinBuckets, ok := m.buckets[coin]
		if !ok {
			coinBuckets = make(map[time.Time][]float64)
			m.buckets[coin] = coinBuckets
		}
		b := bucketTime(p.Timestamp)
		coinBuckets[b] = append(coinBuckets[b], p.Ask)
	}
	m.warmed[coin] = to
	return nil
}

// Evaluate computes the window strengths for coin at `now` and returns a
// buy action, or ok=false to abstain. It abstains whenever less than
// minHistory of bucketed data is available, or when price data cannot be
// fetched.
func (m *MovingAverage) Evaluate(coin string, now time.Time) (Action, bool) {
	if err := m.Warm(coin, now.Add(-MaxLookback()), now); err != nil {
		m.logger.Warn("Could not fetch history, abstaining",
			zap.String("coin", coin), zap.Error(err))
		return Action{}, false
	}
	m.prune(coin, now)

	avgs := m.windowAverages(coin, now)
	if avgs == nil {
		return Action{}, false
	}

	reference := avgs[lookbackHours[0]]
	weak, strong := true, true
	for _, hours := range lookbackHours[1:] {
		strength := avgs[hours] / reference
		if hours <= 24 && strength <= weakThreshold {
			weak = false
		}
		if hours > 24 && strength <= strongThreshold {
			strong = false
		}
	}
	if !weak {
		return Action{}, false
	}

	price, ok, err := m.series.CurrentAsk(coin, now)
	if err != nil || !ok {
		if err != nil {
			m.logger.Warn("Could not fetch current ask, abstaining",
				zap.String("coin", coin), zap.Error(err))
		}
		return Action{}, false
	}

	confidence := weakConfidence
	if strong {
		confidence = strongConfidence
	}
	m.logger.Info("Moving average buy signal",
		zap.String("coin", coin),
		zap.Float64("confidence", confidence),
		zap.Float64("ask", price),
		zap.Time("at", now))
	return Action{Fraction: confidence, Price: price}, true
}

// windowAverages returns the mean ask per lookback window, or nil when the
// bucketed history is too thin to judge.
func (m *MovingAverage) windowAverages(coin string, now time.Time) map[int]float64 {
	coinBuckets := m.buckets[coin]
	if len(coinBuckets) == 0 {
		return nil
	}

	oldest := now
	for b := range coinBuckets {
		if b.Before(oldest) {
			oldest = b
		}
	}
	if now.Sub(oldest) < minHistory {
		return nil
	}

	sums := make(map[int]float64, len(lookbackHours))
	counts := make(map[int]int, len(lookbackHours))
	for b, asks := range coinBuckets {
		if b.After(now) {
			continue
		}
		for _, hours := range lookbackHours {
			if b.Before(now.Add(-time.Duration(hours) * time.Hour)) {
				continue
			}
			for _, ask := range asks {
				sums[hours] += ask
				counts[hours]++
			}
		}
	}
	// The shortest window anchors the strength ratios; without it there is
	// nothing to normalize against.
	if counts[lookbackHours[0]] == 0 {
		return nil
	}

	avgs := make(map[int]float64, len(lookbackHours))
	for _, hours := range lookbackHours {
		if counts[hours] == 0 {
			return nil
		}
		avgs[hours] = sums[hours] / float64(counts[hours])
	}
	return avgs
}

// prune drops buckets that fell out of the maximum lookback window.
func (m *MovingAverage) prune(coin string, now time.Time) {
	cutoff := now.Add(-MaxLookback())
	for b := range m.buckets[coin] {
		if b.Before(cutoff) {
			delete(m.buckets[coin], b)
		}
	}
}
