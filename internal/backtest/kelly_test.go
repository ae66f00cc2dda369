package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coin-strategies/internal/ledger"
)

func outcomes(returns ...float64) []ledger.TradeOutcome {
	out := make([]ledger.TradeOutcome, 0, len(returns))
	for _, r := range returns {
		out = append(out, ledger.TradeOutcome{Coin: "ETH", Return: r})
	}
	return out
}

func TestKelly(t *testing.T) {
	// p = 3/5, median gain 0.2, mean gain 0.2, median loss 0.1, mean loss
	// 0.1, max loss 0.15.
	gains := outcomes(0.10, 0.20, 0.30)
	losses := outcomes(-0.05, -0.15)

	report, err := Kelly(gains, losses)
	require.NoError(t, err)

	assert.InDelta(t, 0.6, report.WinProbability, 1e-12)
	assert.InDelta(t, 0.4, report.LossProbability, 1e-12)

	require.Len(t, report.Estimates, 3)
	// 0.6/0.15 - 0.4/0.2
	assert.Equal(t, "max/median", report.Estimates[0].Estimator)
	assert.InDelta(t, 2.0, report.Estimates[0].Fraction, 1e-9)
	// 0.6/0.1 - 0.4/0.2
	assert.Equal(t, "median/median", report.Estimates[1].Estimator)
	assert.InDelta(t, 4.0, report.Estimates[1].Fraction, 1e-9)
	assert.Equal(t, "mean/mean", report.Estimates[2].Estimator)
	assert.InDelta(t, 4.0, report.Estimates[2].Fraction, 1e-9)

	// p - q/r with r = 0.2/0.1 = 2.
	assert.InDelta(t, 40.0, report.SimplifiedPercent, 1e-9)
}

func TestKellyNoTrades(t *testing.T) {
	_, err := Kelly(nil, nil)
	assert.ErrorIs(t, err, ErrNoTrades)
}

func TestKellyOneSidedOutcomes(t *testing.T) {
	t.Run("OnlyGains", func(t *testing.T) {
		_, err := Kelly(outcomes(0.1, 0.2), nil)
		assert.ErrorIs(t, err, ErrZeroMagnitude)
	})

	t.Run("OnlyLosses", func(t *testing.T) {
		_, err := Kelly(nil, outcomes(-0.1, -0.2))
		assert.ErrorIs(t, err, ErrZeroMagnitude)
	})
}
