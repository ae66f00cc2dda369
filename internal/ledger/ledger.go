package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"coin-strategies/internal/pricing"
)

// DefaultFeeRate is the taker fee applied to both sides of a trade.
const DefaultFeeRate = 0.0025

// cryptoPrecision is the number of fractional digits kept for trade
// amounts. Anything finer is truncated toward zero so that rounding never
// manufactures balance out of thin air.
const cryptoPrecision = 8

// Truncate clamps an amount to crypto precision, rounding toward zero.
func Truncate(d decimal.Decimal) decimal.Decimal {
	return d.Truncate(cryptoPrecision)
}

// OverdraftError reports an update that would have driven a balance
// negative. The ledger is left unchanged.
type OverdraftError struct {
	Coin    string
	Amount  decimal.Decimal
	Balance decimal.Decimal
}

func (e *OverdraftError) Error() string {
	return fmt.Sprintf("overdraft of %s for %s (balance %s)", e.Amount, e.Coin, e.Balance)
}

// Txn is one balance mutation: a signed amount of a coin at a price.
type Txn struct {
	Coin      string
	Amount    decimal.Decimal
	Price     decimal.Decimal
	Timestamp time.Time
}

// Ledger owns the balances and full transaction history of one account.
// All mutation goes through Update and Trade, and is strictly sequential
// within a session; a Ledger is never shared between goroutines.
type Ledger struct {
	base     string
	feeRate  decimal.Decimal
	balances map[string]decimal.Decimal
	txns     []Txn
	lastTxn  map[string]Txn
	opened   map[string]time.Time
	fees     decimal.Decimal
}

// New creates a ledger priced against base. Any positive initial balance is
// treated as a position opened at the given time.
func New(base string, initial map[string]decimal.Decimal, at time.Time) *Ledger {
	opens := make(map[string]time.Time, len(initial))
	for coin, bal := range initial {
		if bal.IsPositive() {
			opens[coin] = at
		}
	}
	return NewWithOpens(base, initial, opens)
}

// NewWithOpens creates a ledger with explicit position-open timestamps,
// for resuming a persisted account.
func NewWithOpens(base string, initial map[string]decimal.Decimal, opens map[string]time.Time) *Ledger {
	balances := make(map[string]decimal.Decimal, len(initial))
	for coin, bal := range initial {
		balances[coin] = bal
	}
	opened := make(map[string]time.Time, len(opens))
	for coin, at := range opens {
		opened[coin] = at
	}
	return &Ledger{
		base:     base,
		feeRate:  decimal.NewFromFloat(DefaultFeeRate),
		balances: balances,
		lastTxn:  make(map[string]Txn),
		opened:   opened,
	}
}

// SetFeeRate overrides the default fee rate. Call before trading starts.
func (l *Ledger) SetFeeRate(rate float64) {
	l.feeRate = decimal.NewFromFloat(rate)
}

// Base returns the base currency symbol.
func (l *Ledger) Base() string {
	return l.base
}

// Balance returns the held amount of coin, zero if unknown.
func (l *Ledger) Balance(coin string) decimal.Decimal {
	return l.balances[coin]
}

// Opened returns when the current position in coin was opened.
func (l *Ledger) Opened(coin string) (time.Time, bool) {
	at, ok := l.opened[coin]
	return at, ok
}

// LastTxn returns the most recent transaction for coin.
func (l *Ledger) LastTxn(coin string) (Txn, bool) {
	txn, ok := l.lastTxn[coin]
	return txn, ok
}

// Txns returns the full transaction history, oldest first.
func (l *Ledger) Txns() []Txn {
	return append([]Txn(nil), l.txns...)
}

// Fees returns the running sum of all fees paid.
func (l *Ledger) Fees() decimal.Decimal {
	return l.fees
}

// Positions returns the coins with an open position.
func (l *Ledger) Positions() []string {
	coins := make([]string, 0, len(l.opened))
	for coin := range l.opened {
		coins = append(coins, coin)
	}
	return coins
}

// Update applies a signed balance change at a price. It fails with
// *OverdraftError, leaving the ledger untouched, if the new balance would
// be negative. A balance moving 0 -> positive opens a position; a balance
// reaching exactly 0 closes it.
func (l *Ledger) Update(coin string, amount, price decimal.Decimal, at time.Time) error {
	current := l.balances[coin]
	next := current.Add(amount)
	if next.IsNegative() {
		return &OverdraftError{Coin: coin, Amount: amount, Balance: current}
	}

	l.balances[coin] = next
	txn := Txn{Coin: coin, Amount: amount, Price: price, Timestamp: at}
	l.txns = append(l.txns, txn)
	l.lastTxn[coin] = txn

	if next.IsZero() {
		delete(l.opened, coin)
	}
	if current.IsZero() && next.IsPositive() {
		l.opened[coin] = at
	}
	return nil
}

// Trade buys (units > 0) or sells (units < 0) at unitPrice and returns the
// signed base-currency delta the caller must apply with a subsequent
// Update on the base coin. Trade never touches the base balance itself.
func (l *Ledger) Trade(coin string, units, unitPrice decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	gross := units.Mul(unitPrice)
	fee := l.feeRate.Mul(gross.Abs())

	if err := l.Update(coin, units, unitPrice, at); err != nil {
		return decimal.Zero, err
	}

	l.fees = l.fees.Add(fee)
	// Buying costs gross plus fee; selling yields gross minus fee. Either
	// way the fee pushes the returned delta against the caller.
	return gross.Add(fee).Neg(), nil
}

// ValueInBase prices the account in base currency as of a point in time:
// the base balance plus every open position at its current ask. Positions
// with no ask available are skipped.
func (l *Ledger) ValueInBase(series pricing.Series, asOf time.Time) (decimal.Decimal, error) {
	value := l.Balance(l.base)
	for coin := range l.opened {
		if coin == l.base {
			continue
		}
		ask, ok, err := series.CurrentAsk(coin, asOf)
		if err != nil {
			return decimal.Zero, err
		}
		if !ok {
			continue
		}
		value = value.Add(l.Balance(coin).Mul(decimal.NewFromFloat(ask)))
	}
	return value, nil
}

func (l *Ledger) String() string {
	return fmt.Sprintf("Ledger(%v)", l.balances)
}
