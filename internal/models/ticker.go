package models

import (
	"time"

	"gorm.io/gorm"
)

// Ticker is one raw price observation for a coin on an exchange.
type Ticker struct {
	gorm.Model
	Exchange  string    `gorm:"size:20;index"`
	Coin      string    `gorm:"size:10;index:idx_coin_time"`
	Timestamp time.Time `gorm:"index:idx_coin_time"`
	Bid       float64
	Ask       float64
	Last      float64
	Volume    float64
}

// TableName keeps the historical table name used by the collector.
func (Ticker) TableName() string {
	return "history"
}
