package backtest

import (
	"math"
	"sort"
	"time"

	"coin-strategies/internal/ledger"
)

// Result captures everything a single simulated trial produced.
type Result struct {
	Trial int
	Start time.Time
	Stop  time.Time

	// Portfolio value in base currency at the interval edges, and the
	// periodic high/low samples taken along the way.
	StartValue  float64
	FinishValue float64
	High        float64
	Low         float64

	Fees   float64
	Txns   []ledger.Txn
	Gains  []ledger.TradeOutcome
	Losses []ledger.TradeOutcome

	// Times a buy signal fired but could not be acted on.
	OutOfBase    int
	HitCoinLimit int

	// Percent return of the buy-and-hold baseline over the same interval.
	HoldReturn float64
}

// PercentReturn is the trial's return relative to its starting value.
func (r Result) PercentReturn() float64 {
	if r.StartValue == 0 {
		return 0
	}
	return 100 * (r.FinishValue - r.StartValue) / r.StartValue
}

// Stats describes the distribution of one metric across trials.
type Stats struct {
	Min    float64
	Median float64
	Mean   float64
	Max    float64
	StdDev float64
}

func summarize(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	sum := 0.0
	for _, v := range sorted {
		sum += v
	}
	mean := sum / float64(len(sorted))

	variance := 0.0
	if len(sorted) > 1 {
		for _, v := range sorted {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(len(sorted) - 1)
	}

	mid := len(sorted) / 2
	median := sorted[mid]
	if len(sorted)%2 == 0 {
		median = (sorted[mid-1] + sorted[mid]) / 2
	}

	return Stats{
		Min:    sorted[0],
		Median: median,
		Mean:   mean,
		Max:    sorted[len(sorted)-1],
		StdDev: math.Sqrt(variance),
	}
}

// Summary aggregates all trials of a backtest run.
type Summary struct {
	Trials     int
	Profitable int
	BeatHold   int

	Returns        Stats
	HoldReturns    Stats
	TradesPerTrial Stats

	// Realized outcomes across every trial, the raw material for the
	// Kelly sizing estimate.
	Gains  []ledger.TradeOutcome
	Losses []ledger.TradeOutcome

	Results []Result
}

// Summarize folds per-trial results into a run summary.
func Summarize(results []Result) Summary {
	s := Summary{Trials: len(results), Results: results}

	returns := make([]float64, 0, len(results))
	holds := make([]float64, 0, len(results))
	trades := make([]float64, 0, len(results))
	for _, r := range results {
		ret := r.PercentReturn()
		returns = append(returns, ret)
		holds = append(holds, r.HoldReturn)
		trades = append(trades, float64(len(r.Txns)))
		if ret > 0 {
			s.Profitable++
		}
		if ret > r.HoldReturn {
			s.BeatHold++
		}
		s.Gains = append(s.Gains, r.Gains...)
		s.Losses = append(s.Losses, r.Losses...)
	}

	s.Returns = summarize(returns)
	s.HoldReturns = summarize(holds)
	s.TradesPerTrial = summarize(trades)
	return s
}
