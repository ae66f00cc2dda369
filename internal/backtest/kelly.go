package backtest

import (
	"errors"
	"sort"

	"coin-strategies/internal/ledger"
)

var (
	// ErrNoTrades means a run produced no realized trades to estimate from.
	ErrNoTrades = errors.New("no realized trades to estimate from")
	// ErrZeroMagnitude means an estimator came out zero, which would put a
	// zero in a denominator. Happens when a run has only wins or only
	// losses.
	ErrZeroMagnitude = errors.New("zero gain or loss magnitude")
)

// KellyEstimate is one bet-size suggestion under a particular choice of
// typical-loss and typical-gain estimators.
type KellyEstimate struct {
	// Estimator names the loss/gain statistics used, e.g. "max/median".
	Estimator string
	Loss      float64
	Gain      float64
	// Fraction is the Kelly-optimal share of the bankroll per bet.
	Fraction float64
}

// KellyReport sizes bets from the realized trade outcomes of a backtest.
// The loss estimator is the pessimistic knob: the max-loss variant is the
// conservative suggestion, the mean variant the aggressive one.
type KellyReport struct {
	WinProbability  float64
	LossProbability float64
	Estimates       []KellyEstimate
	// SimplifiedPercent is the p - q/r form with r the mean win/loss
	// ratio, quoted as a percentage of the bankroll.
	SimplifiedPercent float64
}

// Kelly derives bet sizing from matched trade outcomes. It returns
// ErrNoTrades when there is nothing to estimate from, and
// ErrZeroMagnitude when every trade landed on one side.
func Kelly(gains, losses []ledger.TradeOutcome) (KellyReport, error) {
	total := len(gains) + len(losses)
	if total == 0 {
		return KellyReport{}, ErrNoTrades
	}
	p := float64(len(gains)) / float64(total)
	q := 1 - p

	gainMags := magnitudes(gains)
	lossMags := magnitudes(losses)
	medGain, meanGain := median(gainMags), mean(gainMags)
	medLoss, meanLoss := median(lossMags), mean(lossMags)
	maxLoss := 0.0
	for _, m := range lossMags {
		if m > maxLoss {
			maxLoss = m
		}
	}

	if meanGain == 0 || meanLoss == 0 {
		return KellyReport{}, ErrZeroMagnitude
	}

	report := KellyReport{
		WinProbability:    p,
		LossProbability:   q,
		SimplifiedPercent: 100 * (p - q/(meanGain/meanLoss)),
	}
	for _, e := range []struct {
		name       string
		loss, gain float64
	}{
		{"max/median", maxLoss, medGain},
		{"median/median", medLoss, medGain},
		{"mean/mean", meanLoss, meanGain},
	} {
		if e.loss == 0 || e.gain == 0 {
			return KellyReport{}, ErrZeroMagnitude
		}
		report.Estimates = append(report.Estimates, KellyEstimate{
			Estimator: e.name,
			Loss:      e.loss,
			Gain:      e.gain,
			Fraction:  p/e.loss - q/e.gain,
		})
	}
	return report, nil
}

func magnitudes(outcomes []ledger.TradeOutcome) []float64 {
	mags := make([]float64, 0, len(outcomes))
	for _, o := range outcomes {
		m := o.Return
		if m < 0 {
			m = -m
		}
		mags = append(mags, m)
	}
	return mags
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}
