package main

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"coin-strategies/internal/config"
	"coin-strategies/internal/ledger"
	"coin-strategies/internal/models"
	"coin-strategies/internal/pricing"
	"coin-strategies/internal/trader"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log *zap.Logger
	db  *gorm.DB
	cfg *config.Config
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, db *gorm.DB, cfg *config.Config) *APIHandler {
	return &APIHandler{log: log, db: db, cfg: cfg}
}

// BalancesHandler returns the persisted balances of the trading account.
func (h *APIHandler) BalancesHandler(w http.ResponseWriter, r *http.Request) {
	var rows []models.Balance
	err := h.db.
		Where("name = ? AND exchange = ?", h.cfg.Trading.AccountName, h.cfg.Exchange.Name).
		Order("coin asc").
		Find(&rows).Error
	if err != nil {
		h.log.Error("Failed to get balances from database", zap.Error(err))
		http.Error(w, "Failed to get balances", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(rows)
}

// ReportHandler values the account at the latest recorded prices.
func (h *APIHandler) ReportHandler(w http.ResponseWriter, r *http.Request) {
	account, err := ledger.LoadDurable(h.db,
		h.cfg.Trading.AccountName, h.cfg.Exchange.Name, h.cfg.Trading.BaseCoin)
	if err != nil {
		h.log.Error("Failed to load account", zap.Error(err))
		http.Error(w, "Failed to load account", http.StatusInternalServerError)
		return
	}

	store := pricing.NewHistoryStore(h.db)
	report, err := trader.BuildReport(account.Ledger, store, time.Now().UTC())
	if err != nil {
		h.log.Error("Failed to build report", zap.Error(err))
		http.Error(w, "Failed to build report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(report)
}
