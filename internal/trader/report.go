package trader

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"coin-strategies/internal/ledger"
	"coin-strategies/internal/pricing"
)

// CoinReport summarizes one open position.
type CoinReport struct {
	Coin   string
	Units  decimal.Decimal
	Value  decimal.Decimal
	Opened time.Time
	// Percent change of the current ask against the position's entry
	// price and against the peak since open.
	SinceOpenPercent float64
	SincePeakPercent float64
}

// Report is a point-in-time valuation of the whole account, for the
// notification and command surfaces.
type Report struct {
	At         time.Time
	BaseCoin   string
	BaseUnits  decimal.Decimal
	TotalValue decimal.Decimal
	Coins      []CoinReport
}

// BuildReport values every open position at its current ask. Positions
// with no price available are reported with zero value.
func BuildReport(led *ledger.Ledger, series pricing.Series, now time.Time) (Report, error) {
	total, err := led.ValueInBase(series, now)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		At:         now,
		BaseCoin:   led.Base(),
		BaseUnits:  led.Balance(led.Base()),
		TotalValue: total,
	}

	coins := led.Positions()
	sort.Strings(coins)
	for _, coin := range coins {
		if coin == led.Base() {
			continue
		}
		opened, _ := led.Opened(coin)
		entry := CoinReport{
			Coin:   coin,
			Units:  led.Balance(coin),
			Opened: opened,
		}

		ask, ok, err := series.CurrentAsk(coin, now)
		if err != nil {
			return Report{}, err
		}
		if ok {
			entry.Value = entry.Units.Mul(decimal.NewFromFloat(ask))
			if last, found := led.LastTxn(coin); found && last.Price.IsPositive() {
				entryPrice := last.Price.InexactFloat64()
				entry.SinceOpenPercent = (ask - entryPrice) / entryPrice * 100
			}
			if peak, found, err := series.Peak(coin, opened, now); err != nil {
				return Report{}, err
			} else if found && peak > 0 {
				entry.SincePeakPercent = (ask - peak) / peak * 100
			}
		}
		report.Coins = append(report.Coins, entry)
	}
	return report, nil
}
