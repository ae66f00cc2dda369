// Package signal derives buy and sell signals from historical price series.
package signal

// FullExit is the sell fraction instructing the caller to liquidate the
// entire position.
const FullExit = -1.0

// Action is a trading signal: Fraction is a buy confidence in (0, 1], or
// exactly FullExit for a complete sell. Price is the reference ask the
// signal was computed against.
type Action struct {
	Fraction float64
	Price    float64
}
