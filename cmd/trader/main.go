package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"coin-strategies/internal/config"
	"coin-strategies/internal/database"
	"coin-strategies/internal/exchange"
	"coin-strategies/internal/ledger"
	"coin-strategies/internal/logger"
	"coin-strategies/internal/pricing"
	"coin-strategies/internal/trader"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	log.Info("Database connection successful and schema migrated.")

	// Initialize exchange REST client
	gateway := exchange.NewClient(&cfg.Exchange, log)

	// Load (or create) the persistent trading account
	account, err := ledger.LoadDurable(db, cfg.Trading.AccountName, cfg.Exchange.Name, cfg.Trading.BaseCoin)
	if err != nil {
		log.Fatal("Failed to load trading account", zap.Error(err))
	}
	if len(account.Positions()) == 0 {
		if err := seedAccount(account, gateway); err != nil {
			log.Fatal("Failed to seed account from exchange balances", zap.Error(err))
		}
		log.Info("Seeded fresh account from exchange balances",
			zap.String("account", cfg.Trading.AccountName))
	}
	log.Info("Trading account ready", zap.String("balances", account.String()))

	store := pricing.NewHistoryStore(db)

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Initialize and run the trading engine
	engine := trader.NewEngine(log, &cfg, gateway, store, account)
	engine.Run(ctx)

	log.Info("Bot has been shut down.")
}

// seedAccount copies the exchange's current balances into a fresh account
// so the first tick starts from reality rather than from zero.
func seedAccount(account *ledger.Durable, gateway exchange.Gateway) error {
	balances, err := gateway.FetchBalances()
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for coin, amount := range balances {
		if amount <= 0 {
			continue
		}
		if err := account.Update(coin, decimal.NewFromFloat(amount), decimal.New(1, 0), now); err != nil {
			return err
		}
	}
	return account.Save()
}
