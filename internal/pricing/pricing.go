package pricing

import "time"

// PricePoint is one immutable price observation for a coin.
type PricePoint struct {
	Exchange  string
	Coin      string
	Timestamp time.Time
	Bid       float64
	Ask       float64
	Last      float64
	Volume    float64
}

// Series provides read-only access to historical prices. Missing data is
// reported through the ok flag, never as an error; a non-nil error means
// the underlying store itself failed.
type Series interface {
	// Query returns all price points for coin in (from, to), oldest first.
	Query(coin string, from, to time.Time) ([]PricePoint, error)

	// Peak returns the highest ask observed for coin in (from, asOf].
	Peak(coin string, from, asOf time.Time) (float64, bool, error)

	// CurrentAsk returns the most recent ask for coin at or before asOf.
	CurrentAsk(coin string, asOf time.Time) (float64, bool, error)
}
