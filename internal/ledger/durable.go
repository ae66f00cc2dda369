package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"coin-strategies/internal/models"
)

// Durable pairs an owned Ledger with a persistence handle so a live
// account survives restarts. It delegates all ledger queries to the
// embedded Ledger; only Save and Load know about the database.
type Durable struct {
	*Ledger
	name     string
	exchange string
	db       *gorm.DB
}

// LoadDurable reconstructs an account from its persisted balances. Only
// nonzero balances are stored, each with its position-open timestamp.
func LoadDurable(db *gorm.DB, name, exchange, base string) (*Durable, error) {
	if name == "" || exchange == "" {
		return nil, errors.New("must specify account name and exchange")
	}

	var rows []models.Balance
	err := db.Where("name = ? AND exchange = ?", name, exchange).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("could not load balances for %s@%s: %w", name, exchange, err)
	}

	balances := make(map[string]decimal.Decimal, len(rows))
	opens := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		amount, err := decimal.NewFromString(row.Amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt stored balance %q for %s: %w", row.Amount, row.Coin, err)
		}
		balances[row.Coin] = amount
		opens[row.Coin] = row.Opened
	}

	return &Durable{
		Ledger:   NewWithOpens(base, balances, opens),
		name:     name,
		exchange: exchange,
		db:       db,
	}, nil
}

// Save writes the account's balances back to the database. Balances that
// reached zero have their rows removed; everything else is upserted with
// its open timestamp.
func (d *Durable) Save() error {
	var rows []models.Balance
	err := d.db.Where("name = ? AND exchange = ?", d.name, d.exchange).Find(&rows).Error
	if err != nil {
		return fmt.Errorf("could not fetch stored balances: %w", err)
	}
	stored := make(map[string]models.Balance, len(rows))
	for _, row := range rows {
		stored[row.Coin] = row
	}

	now := time.Now().UTC()
	for coin, balance := range d.balances {
		row, exists := stored[coin]

		if balance.IsZero() {
			if exists {
				if err := d.db.Delete(&row).Error; err != nil {
					return fmt.Errorf("could not remove balance row for %s: %w", coin, err)
				}
			}
			continue
		}

		if exists && row.Amount == balance.String() {
			continue
		}

		opened, _ := d.Opened(coin)
		if !exists {
			row = models.Balance{Name: d.name, Exchange: d.exchange, Coin: coin}
		}
		row.Amount = balance.String()
		row.Opened = opened
		row.LastUpdated = now
		if err := d.db.Save(&row).Error; err != nil {
			return fmt.Errorf("could not save balance row for %s: %w", coin, err)
		}
	}
	return nil
}
