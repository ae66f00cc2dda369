package backtest

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"coin-strategies/internal/models"
	"coin-strategies/internal/pricing"
)

func newStore(t *testing.T) *pricing.HistoryStore {
	t.Helper()
	// A named shared-cache database: the runner's workers each get their
	// own pooled connection, which with a plain :memory: DSN would mean an
	// empty database per worker.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Ticker{}))
	return pricing.NewHistoryStore(db)
}

// fillHistory records ticks for coin every `every` over `span`, pricing
// each tick by its distance from `from`.
func fillHistory(t *testing.T, store *pricing.HistoryStore, coin string,
	from time.Time, span, every time.Duration, price func(elapsed time.Duration) float64) {
	t.Helper()
	for ts := from; !ts.After(from.Add(span)); ts = ts.Add(every) {
		p := price(ts.Sub(from))
		require.NoError(t, store.Save(pricing.PricePoint{
			Exchange:  "bittrex",
			Coin:      coin,
			Timestamp: ts,
			Bid:       p * 0.999,
			Ask:       p,
			Last:      p,
		}))
	}
}

func flat(price float64) func(time.Duration) float64 {
	return func(time.Duration) float64 { return price }
}

func TestRunFlatPricesIsPureFeeDrag(t *testing.T) {
	store := newStore(t)
	from := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	fillHistory(t, store, "ETH", from, 4*24*time.Hour, time.Hour, flat(0.05))

	runner := NewRunner(store, zap.NewNop(), Config{
		BaseCoin:     "BTC",
		Coins:        []string{"ETH"},
		StartBalance: 5,
		Trials:       3,
		IntervalDays: 1,
		Step:         time.Hour,
		Workers:      1,
		Seed:         7,
	})
	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, summary.Trials)
	for _, res := range summary.Results {
		// Flat prices never move the averages, so the strategy sits out.
		assert.Empty(t, res.Txns)
		assert.Zero(t, res.PercentReturn())
		// The baseline still pays the round-trip fee on its coin share.
		assert.InDelta(t, -0.5, res.HoldReturn, 1e-9)
	}
	assert.Equal(t, 0, summary.Profitable)
	assert.Equal(t, 3, summary.BeatHold)
}

func TestRunIsReproducibleAcrossRuns(t *testing.T) {
	store := newStore(t)
	from := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	fillHistory(t, store, "ETH", from, 5*24*time.Hour, time.Hour, flat(0.05))

	cfg := Config{
		Coins:        []string{"ETH"},
		Trials:       4,
		IntervalDays: 1,
		Step:         2 * time.Hour,
		Workers:      2,
		Seed:         42,
	}
	first, err := NewRunner(store, zap.NewNop(), cfg).Run(context.Background())
	require.NoError(t, err)
	second, err := NewRunner(store, zap.NewNop(), cfg).Run(context.Background())
	require.NoError(t, err)

	for i := range first.Results {
		assert.Equal(t, first.Results[i].Start, second.Results[i].Start,
			"trial %d must sample the same interval for the same seed", i)
	}
}

func TestRunRejectsShortHistory(t *testing.T) {
	store := newStore(t)
	from := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	fillHistory(t, store, "ETH", from, 12*time.Hour, time.Hour, flat(0.05))

	runner := NewRunner(store, zap.NewNop(), Config{
		Coins:        []string{"ETH"},
		Trials:       1,
		IntervalDays: 1,
	})
	_, err := runner.Run(context.Background())
	assert.ErrorContains(t, err, "not enough history")
}

func TestRunTrialTradesAndLiquidates(t *testing.T) {
	store := newStore(t)
	from := time.Date(2021, 3, 1, 0, 0, 0, 0, time.UTC)
	// A steady 4%/hour decline keeps every lookback average well above the
	// last hour, so the dip-buying signal fires on each tick once a day of
	// history has accumulated.
	decay := func(elapsed time.Duration) float64 {
		return math.Exp(-0.04 * elapsed.Hours())
	}
	fillHistory(t, store, "ETH", from, 48*time.Hour, 15*time.Minute, decay)

	runner := NewRunner(store, zap.NewNop(), Config{
		BaseCoin:     "BTC",
		Coins:        []string{"ETH"},
		StartBalance: 5,
		IntervalDays: 1,
		Step:         time.Hour,
	})
	res, err := runner.runTrial(0, from.Add(24*time.Hour), from.Add(48*time.Hour), []string{"ETH"})
	require.NoError(t, err)

	require.NotEmpty(t, res.Txns, "a falling market must trigger dip buys")
	assert.Positive(t, res.Fees)
	// Everything bought was sold again, either by the trial or the forced
	// liquidation, all at a loss in this market.
	assert.NotEmpty(t, res.Losses)
	assert.Empty(t, res.Gains)
	assert.Less(t, res.FinishValue, res.StartValue)
	assert.LessOrEqual(t, res.Low, res.High)
	// Holding through the full decay is far worse than the late, capped
	// entries the strategy makes.
	assert.Less(t, res.HoldReturn, -50.0)
}
