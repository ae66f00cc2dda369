package ledger

import "github.com/shopspring/decimal"

// TradeOutcome is one realized gain or loss: the fractional return of a
// matched buy/sell pair, net of the fee paid on each side.
type TradeOutcome struct {
	Coin   string
	Return float64
}

// lot is the unmatched remainder of one buy transaction.
type lot struct {
	units decimal.Decimal
	price decimal.Decimal
}

// MatchTrades walks a transaction history in order and classifies every
// sell against the buys that funded it, FIFO within each coin. Each match
// yields one TradeOutcome with return
//
//	(sellPrice - buyPrice) / buyPrice - 2*feeRate
//
// appended to gains when positive, losses otherwise. The base currency is
// excluded entirely, and a sell with no remaining buy lots (a position
// seeded before the history begins) is left unmatched.
func MatchTrades(txns []Txn, base string, feeRate float64) (gains, losses []TradeOutcome) {
	fees := decimal.NewFromFloat(2 * feeRate)
	lots := make(map[string][]lot)

	for _, txn := range txns {
		if txn.Coin == base {
			continue
		}
		if txn.Amount.IsPositive() {
			lots[txn.Coin] = append(lots[txn.Coin], lot{units: txn.Amount, price: txn.Price})
			continue
		}

		remaining := txn.Amount.Neg()
		for remaining.IsPositive() && len(lots[txn.Coin]) > 0 {
			front := &lots[txn.Coin][0]
			matched := decimal.Min(front.units, remaining)

			ret := txn.Price.Sub(front.price).Div(front.price).Sub(fees)
			outcome := TradeOutcome{Coin: txn.Coin, Return: ret.InexactFloat64()}
			if outcome.Return > 0 {
				gains = append(gains, outcome)
			} else {
				losses = append(losses, outcome)
			}

			front.units = front.units.Sub(matched)
			if front.units.IsZero() {
				lots[txn.Coin] = lots[txn.Coin][1:]
			}
			remaining = remaining.Sub(matched)
		}
	}
	return gains, losses
}

// EvaluateTrades classifies this ledger's realized sells as gains or losses.
func (l *Ledger) EvaluateTrades() (gains, losses []TradeOutcome) {
	return MatchTrades(l.txns, l.base, l.feeRate.InexactFloat64())
}
