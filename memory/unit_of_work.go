package memory

import (
	"context"
	"fmt"

	"wagerbot/events"
	"wagerbot/models"
	"wagerbot/service"
)

// writeSet is the uncommitted state of one unit of work
type writeSet struct {
	accounts map[int64]*models.Account
	matches  map[int64]*models.Match
	txs      map[int64]*models.LedgerTransaction
}

func newWriteSet() *writeSet {
	return &writeSet{
		accounts: make(map[int64]*models.Account),
		matches:  make(map[int64]*models.Match),
		txs:      make(map[int64]*models.LedgerTransaction),
	}
}

// unitOfWork implements service.UnitOfWork over a Store. Writes are buffered
// and become visible to other units of work only on Commit.
type unitOfWork struct {
	store            *Store
	transactionalBus *events.TransactionalBus
	writes           *writeSet
	held             []string
	holding          map[string]bool
	active           bool

	accountRepo     *accountRepository
	matchRepo       *matchRepository
	transactionRepo *transactionRepository
}

// Begin starts a new unit of work
func (u *unitOfWork) Begin(ctx context.Context) error {
	if u.active {
		return fmt.Errorf("transaction already started")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	u.active = true
	u.writes = newWriteSet()
	u.holding = make(map[string]bool)

	u.accountRepo = &accountRepository{uow: u}
	u.matchRepo = &matchRepository{uow: u}
	u.transactionRepo = &transactionRepository{uow: u}
	return nil
}

// Commit applies buffered writes, then releases every lock
func (u *unitOfWork) Commit() error {
	if !u.active {
		return fmt.Errorf("no transaction to commit")
	}

	u.store.apply(u.writes)
	u.finish()

	if u.transactionalBus != nil {
		u.transactionalBus.Flush()
	}
	return nil
}

// Rollback discards buffered writes and releases every lock
func (u *unitOfWork) Rollback() error {
	if !u.active {
		return nil
	}

	u.finish()

	if u.transactionalBus != nil {
		u.transactionalBus.Discard()
	}
	return nil
}

func (u *unitOfWork) finish() {
	for i := len(u.held) - 1; i >= 0; i-- {
		u.store.locks.release(u.held[i])
	}
	u.held = nil
	u.holding = nil
	u.writes = nil
	u.active = false
}

// lock takes key for the rest of the unit of work; re-locking is a no-op
func (u *unitOfWork) lock(ctx context.Context, key string) error {
	if !u.active {
		return fmt.Errorf("unit of work not started")
	}
	if u.holding[key] {
		return nil
	}
	if err := u.store.locks.acquire(ctx, key, u.store.lockTimeout); err != nil {
		return err
	}
	u.held = append(u.held, key)
	u.holding[key] = true
	return nil
}

func (u *unitOfWork) AccountRepository() service.AccountRepository {
	if u.accountRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.accountRepo
}

func (u *unitOfWork) MatchRepository() service.MatchRepository {
	if u.matchRepo == nil {
		panic("unit of work not started - call Begin() first")
	}
	return u.matchRepo
}

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
