package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"coin-strategies/internal/ledger"
)

func TestPercentReturn(t *testing.T) {
	assert.InDelta(t, 25.0, Result{StartValue: 4, FinishValue: 5}.PercentReturn(), 1e-12)
	assert.InDelta(t, -50.0, Result{StartValue: 4, FinishValue: 2}.PercentReturn(), 1e-12)
	assert.Zero(t, Result{}.PercentReturn())
}

func TestSummarizeStats(t *testing.T) {
	s := summarize([]float64{4, 1, 3, 2})
	assert.Equal(t, 1.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
	assert.Equal(t, 2.5, s.Median)
	assert.Equal(t, 2.5, s.Mean)
	// Sample variance of 1..4 is 5/3.
	assert.InDelta(t, 1.29099, s.StdDev, 1e-5)

	odd := summarize([]float64{3, 1, 2})
	assert.Equal(t, 2.0, odd.Median)

	assert.Zero(t, summarize(nil))
	assert.Zero(t, summarize([]float64{7}).StdDev)
}

func TestSummarize(t *testing.T) {
	results := []Result{
		{StartValue: 5, FinishValue: 6, HoldReturn: 10,
			Gains: []ledger.TradeOutcome{{Coin: "ETH", Return: 0.3}}},
		{StartValue: 5, FinishValue: 4.5, HoldReturn: -20,
			Losses: []ledger.TradeOutcome{{Coin: "DCR", Return: -0.1}}},
		{StartValue: 5, FinishValue: 5, HoldReturn: 0},
	}

	s := Summarize(results)
	assert.Equal(t, 3, s.Trials)
	assert.Equal(t, 1, s.Profitable)
	// +20% beats +10%, -10% beats -20%, 0% does not beat 0%.
	assert.Equal(t, 2, s.BeatHold)
	assert.InDelta(t, 20.0, s.Returns.Max, 1e-12)
	assert.InDelta(t, -10.0, s.Returns.Min, 1e-12)
	assert.Len(t, s.Gains, 1)
	assert.Len(t, s.Losses, 1)
}
