package app

import (
	"log/slog"

	"predict_go/internal/infra"
	"predict_go/internal/infra/storage"
	"predict_go/internal/service"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config  *infra.Config
	Store   *storage.Store
	Service *service.MarketService
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize performs core system initialization (config, logger, DB, service)
func (b *Bootstrap) Initialize() error {
	slog.Info("🚀 Bootstrapping Predict Go...")

	// 1. Load Config
	cfg, err := infra.LoadConfig("configs/config.yaml")
	if err != nil {
		return err // Let main handle the error
	}
	b.Config = cfg

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	// 3. Initialize Storage (DB + WAL)
	store, err := storage.NewStore(cfg.Database.Path)
	if err != nil {
		return err
	}
	b.Store = store
	slog.Info("✅ Database initialized")

	// 4. Trade orchestrator
	b.Service = service.NewMarketService(store, logger)
	slog.Info("✅ Market service ready")

	return nil
}
