package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Exchange Exchange `mapstructure:"exchange"`
	Trading  Trading  `mapstructure:"trading"`
	Backtest Backtest `mapstructure:"backtest"`
	Server   Server   `mapstructure:"server"`
	Logger   Logger   `mapstructure:"logger"`
	Database Database `mapstructure:"database"`
}

// Server holds the configuration for the status web UI.
type Server struct {
	Port int `mapstructure:"port"`
}

// Exchange holds the configuration for the exchange REST API.
type Exchange struct {
	Name           string  `mapstructure:"name"`
	BaseURL        string  `mapstructure:"base_url"`
	ApiKey         string  `mapstructure:"apiKey"`
	SecretKey      string  `mapstructure:"secretKey"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Trading holds the configuration for the live trading loop.
type Trading struct {
	AccountName    string   `mapstructure:"account_name"`
	BaseCoin       string   `mapstructure:"base_coin"`
	Coins          []string `mapstructure:"coins"`
	FeeRate        float64  `mapstructure:"fee_rate"`
	BetSize        float64  `mapstructure:"bet_size"`
	MaxCoinHolding float64  `mapstructure:"max_coin_holding"`
	MinSpend       float64  `mapstructure:"min_spend"`
	FeeBuffer      float64  `mapstructure:"fee_buffer"`
	TickInterval   int      `mapstructure:"tick_interval"`
	DryRun         bool     `mapstructure:"dry_run"`
	// ApplyUnconfirmed applies ledger deltas before the exchange confirms
	// an order fill. Off by default; the ledger can drift from the real
	// account when an order is rejected after the update.
	ApplyUnconfirmed bool `mapstructure:"apply_unconfirmed"`
}

// Backtest holds the configuration for the simulation runner.
type Backtest struct {
	Trials       int     `mapstructure:"trials"`
	IntervalDays int     `mapstructure:"interval_days"`
	StepMinutes  int     `mapstructure:"step_minutes"`
	Workers      int     `mapstructure:"workers"`
	StartBalance float64 `mapstructure:"start_balance"`
	Seed         int64   `mapstructure:"seed"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yml")    // or yaml, json

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set default values
	viper.SetDefault("exchange.rate_limit", 20)      // requests per second
	viper.SetDefault("exchange.rate_limit_burst", 5) // burst size
	viper.SetDefault("trading.base_coin", "BTC")
	viper.SetDefault("trading.fee_rate", 0.0025)
	viper.SetDefault("trading.bet_size", 0.25)
	viper.SetDefault("trading.max_coin_holding", 0.15)
	viper.SetDefault("trading.min_spend", 0.0005)
	viper.SetDefault("trading.fee_buffer", 0.003)
	viper.SetDefault("trading.tick_interval", 600) // seconds
	viper.SetDefault("backtest.trials", 100)
	viper.SetDefault("backtest.interval_days", 30)
	viper.SetDefault("backtest.step_minutes", 10)
	viper.SetDefault("backtest.workers", 4)
	viper.SetDefault("backtest.start_balance", 5)
	viper.SetDefault("server.port", 8080)

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
