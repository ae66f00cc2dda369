package main

import (
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"coin-strategies/internal/config"
	"coin-strategies/internal/database"
	"coin-strategies/internal/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Connect to the database
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Setup HTTP server
	mux := http.NewServeMux()

	// Create a handler that has access to the logger and db
	apiHandler := NewAPIHandler(log, db, &cfg)

	// API endpoints
	mux.HandleFunc("/api/balances", apiHandler.BalancesHandler)
	mux.HandleFunc("/api/report", apiHandler.ReportHandler)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info("Starting status server", zap.String("address", addr))

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("Status server failed", zap.Error(err))
	}
}
