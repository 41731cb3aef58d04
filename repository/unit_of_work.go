package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wagerbot/database"
	"wagerbot/events"
	"wagerbot/service"

	"github.com/jackc/pgx/v5"
)

// unitOfWork implements service.UnitOfWork over one Postgres transaction
type unitOfWork struct {
	db               *database.DB
	tx               pgx.Tx
	ctx              context.Context
	lockTimeout      time.Duration
	transactionalBus *events.TransactionalBus
	accountRepo      service.AccountRepository
	matchRepo        service.MatchRepository
	transactionRepo  service.TransactionRepository
}

// NewUnitOfWorkFactory creates a new UnitOfWork factory. Row lock waits inside
// each unit of work are bounded by lockTimeout.
func NewUnitOfWorkFactory(db *database.DB, eventBus *events.Bus, lockTimeout time.Duration) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{
		db:          db,
		eventBus:    eventBus,
		lockTimeout: lockTimeout,
	}
}

type unitOfWorkFactory struct {
	db          *database.DB
	eventBus    *events.Bus
	lockTimeout time.Duration
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		db:               f.db,
		lockTimeout:      f.lockTimeout,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// Begin starts a new transaction
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.tx != nil {
		return fmt.Errorf("transaction already started")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if u.lockTimeout > 0 {
		timeout := fmt.Sprintf("%dms", u.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("failed to set lock timeout: %w", err)
		}
	}

	u.tx = tx
	u.ctx = ctx

	u.accountRepo = newAccountRepositoryWithTx(tx)
	u.matchRepo = newMatchRepositoryWithTx(tx)
	u.transactionRepo = newTransactionRepositoryWithTx(tx)

	return nil
}

// Commit commits the transaction and then releases pending events
func (u *unitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("no transaction to commit")
	}

	err := u.tx.Commit(u.ctx)
	u.tx = nil
	if err != nil {
		u.transactionalBus.Discard()
		return fmt.Errorf("failed to commit transaction: %w", translateError(err))
	}

	u.transactionalBus.Flush()
	return nil
}

// Rollback rolls back the transaction
func (u *unitOfWork) Rollback() error {
	if u.tx == nil {
		return nil
	}

	err := u.tx.Rollback(u.ctx)
	u.tx = nil
	u.transactionalBus.Discard()

	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

// AccountRepository returns the account repository for this unit of work
func (u *unitOfWork) AccountRepository() service.AccountRepository {
	if u.accountRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.accountRepo
}

// MatchRepository returns the match repository for this unit of work
func (u *unitOfWork) MatchRepository() service.MatchRepository {
	if u.matchRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.matchRepo
}

// TransactionRepository returns the ledger transaction repository for this unit of work
func (u *unitOfWork) TransactionRepository() service.TransactionRepository {
	if u.transactionRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionRepo
}

// EventBus returns the transactional event bus for this unit of work
func (u *unitOfWork) EventBus() service.EventPublisher {
	if u.transactionalBus == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.transactionalBus
}
