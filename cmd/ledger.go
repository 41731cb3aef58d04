package cmd

import (
	"context"
	"fmt"

	"wagerbot/api"
	"wagerbot/config"
	"wagerbot/database"
	"wagerbot/events"
	"wagerbot/memory"
	"wagerbot/repository"
	"wagerbot/service"

	log "github.com/sirupsen/logrus"
)

// ledgerStore is the selected backend together with its health check and cleanup
type ledgerStore struct {
	factory service.UnitOfWorkFactory
	health  api.HealthCheck
	close   func()
}

// openLedgerStore connects the backend named by LEDGER_STORE
func openLedgerStore(ctx context.Context, cfg *config.Config, eventBus *events.Bus) (*ledgerStore, error) {
	switch cfg.LedgerStore {
	case config.StoreMemory:
		log.Warn("Using the in-memory ledger store; balances are lost on restart")
		return &ledgerStore{
			factory: memory.NewUnitOfWorkFactory(memory.NewStore(cfg.LockTimeout), eventBus),
			close:   func() {},
		}, nil

	case config.StorePostgres:
		log.Info("Connecting to database...")
		db, err := database.NewConnection(ctx, cfg.GetDatabaseURL())
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		log.Info("Database connection established successfully")

		return &ledgerStore{
			factory: repository.NewUnitOfWorkFactory(db, eventBus, cfg.LockTimeout),
			health:  db.Ping,
			close: func() {
				log.Info("Closing database connection...")
				db.Close()
			},
		}, nil
	}
	return nil, fmt.Errorf("unknown ledger store %q", cfg.LedgerStore)
}
