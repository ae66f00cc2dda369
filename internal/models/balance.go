package models

import (
	"time"

	"gorm.io/gorm"
)

// Balance is a persisted per-account coin balance, keyed by
// (name, exchange, coin). Amount is stored as a decimal string to avoid
// losing precision through float columns.
type Balance struct {
	gorm.Model
	Name        string `gorm:"size:12;uniqueIndex:uniq_coins"`
	Exchange    string `gorm:"size:20;uniqueIndex:uniq_coins"`
	Coin        string `gorm:"size:10;uniqueIndex:uniq_coins"`
	Amount      string
	Opened      time.Time
	LastUpdated time.Time
}
