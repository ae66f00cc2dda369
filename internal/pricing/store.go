package pricing

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"coin-strategies/internal/models"
)

// HistoryStore serves historical prices from the gorm-backed ticker archive.
// It implements Series. A store handle is safe to share between readers;
// each simulation worker opens its own session via Session.
type HistoryStore struct {
	db *gorm.DB
}

var _ Series = (*HistoryStore)(nil)

// NewHistoryStore creates a store over an existing database connection.
func NewHistoryStore(db *gorm.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Session returns an independent read-only handle over the same archive,
// for handing to simulation workers.
func (s *HistoryStore) Session() *HistoryStore {
	return &HistoryStore{db: s.db.Session(&gorm.Session{NewDB: true})}
}

// Query returns all price points for coin in (from, to), oldest first.
func (s *HistoryStore) Query(coin string, from, to time.Time) ([]PricePoint, error) {
	var rows []models.Ticker
	err := s.db.
		Where("coin = ? AND timestamp > ? AND timestamp < ?", coin, from, to).
		Order("timestamp asc").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("could not query history for %s: %w", coin, err)
	}

	points := make([]PricePoint, 0, len(rows))
	for _, r := range rows {
		points = append(points, fromModel(r))
	}
	return points, nil
}

// CurrentAsk returns the most recent ask for coin at or before asOf.
func (s *HistoryStore) CurrentAsk(coin string, asOf time.Time) (float64, bool, error) {
	var row models.Ticker
	err := s.db.
		Where("coin = ? AND timestamp <= ?", coin, asOf).
		Order("timestamp desc").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("could not fetch ask for %s: %w", coin, err)
	}
	return row.Ask, true, nil
}

// Peak returns the highest ask observed for coin in (from, asOf].
func (s *HistoryStore) Peak(coin string, from, asOf time.Time) (float64, bool, error) {
	var peak *float64
	err := s.db.Model(&models.Ticker{}).
		Where("coin = ? AND timestamp > ? AND timestamp <= ?", coin, from, asOf).
		Select("max(ask)").
		Scan(&peak).Error
	if err != nil {
		return 0, false, fmt.Errorf("could not fetch peak for %s: %w", coin, err)
	}
	if peak == nil {
		return 0, false, nil
	}
	return *peak, true, nil
}

// Coins lists every coin present in the archive.
func (s *HistoryStore) Coins() ([]string, error) {
	var coins []string
	err := s.db.Model(&models.Ticker{}).Distinct("coin").Pluck("coin", &coins).Error
	if err != nil {
		return nil, fmt.Errorf("could not list coins: %w", err)
	}
	return coins, nil
}

// Bounds returns the oldest and newest timestamps in the archive.
func (s *HistoryStore) Bounds() (oldest, newest time.Time, err error) {
	var first, last models.Ticker
	if err = s.db.Order("timestamp asc").First(&first).Error; err != nil {
		return oldest, newest, fmt.Errorf("could not fetch oldest timestamp: %w", err)
	}
	if err = s.db.Order("timestamp desc").First(&last).Error; err != nil {
		return oldest, newest, fmt.Errorf("could not fetch newest timestamp: %w", err)
	}
	return first.Timestamp, last.Timestamp, nil
}

// Save persists one price observation.
func (s *HistoryStore) Save(p PricePoint) error {
	row := models.Ticker{
		Exchange:  p.Exchange,
		Coin:      p.Coin,
		Timestamp: p.Timestamp,
		Bid:       p.Bid,
		Ask:       p.Ask,
		Last:      p.Last,
		Volume:    p.Volume,
	}
	if err := s.db.Create(&row).Error; err != nil {
		return fmt.Errorf("could not save ticker for %s: %w", p.Coin, err)
	}
	return nil
}

func fromModel(r models.Ticker) PricePoint {
	return PricePoint{
		Exchange:  r.Exchange,
		Coin:      r.Coin,
		Timestamp: r.Timestamp,
		Bid:       r.Bid,
		Ask:       r.Ask,
		Last:      r.Last,
		Volume:    r.Volume,
	}
}
