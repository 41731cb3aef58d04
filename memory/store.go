// Package memory is an in-process ledger store. It gives the services the same
// guarantees as the Postgres store: per-row exclusive locks held until the unit
// of work ends, bounded lock waits, and all-or-nothing commits.
package memory

import (
	"sort"
	"sync"
	"time"

	"wagerbot/events"
	"wagerbot/models"
	"wagerbot/service"
)

// DefaultLockTimeout bounds how long a unit of work waits for a row lock
const DefaultLockTimeout = 5 * time.Second

// Store holds committed ledger state
type Store struct {
	mu          sync.RWMutex
	accounts    map[int64]*models.Account
	byTelegram  map[int64]int64
	matches     map[int64]*models.Match
	txs         map[int64]*models.LedgerTransaction
	byRef       map[string]int64
	nextAccount int64
	nextMatch   int64
	nextTx      int64

	locks       *lockTable
	lockTimeout time.Duration
}

// NewStore creates an empty store. A non-positive lockTimeout uses DefaultLockTimeout.
func NewStore(lockTimeout time.Duration) *Store {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Store{
		accounts:    make(map[int64]*models.Account),
		byTelegram:  make(map[int64]int64),
		matches:     make(map[int64]*models.Match),
		txs:         make(map[int64]*models.LedgerTransaction),
		byRef:       make(map[string]int64),
		locks:       newLockTable(),
		lockTimeout: lockTimeout,
	}
}

// NewUnitOfWorkFactory creates a factory whose units of work run against s
func NewUnitOfWorkFactory(s *Store, eventBus *events.Bus) service.UnitOfWorkFactory {
	return &unitOfWorkFactory{store: s, eventBus: eventBus}
}

type unitOfWorkFactory struct {
	store    *Store
	eventBus *events.Bus
}

func (f *unitOfWorkFactory) Create() service.UnitOfWork {
	return &unitOfWork{
		store:            f.store,
		transactionalBus: events.NewTransactionalBus(f.eventBus),
	}
}

// Accounts returns a snapshot of every committed account ordered by ID
func (s *Store) Accounts() []*models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		c := *a
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Transactions returns a snapshot of every committed transaction ordered by ID
func (s *Store) Transactions() []*models.LedgerTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.LedgerTransaction, 0, len(s.txs))
	for _, t := range s.txs {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) allocAccountID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextAccount++
	return s.nextAccount
}

func (s *Store) allocMatchID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextMatch++
	return s.nextMatch
}

func (s *Store) allocTransactionID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextTx++
	return s.nextTx
}

func (s *Store) account(id int64) *models.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.accounts[id]; ok {
		c := *a
		return &c
	}
	return nil
}

func (s *Store) accountIDByTelegram(telegramID int64) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byTelegram[telegramID]
	return id, ok
}

func (s *Store) match(id int64) *models.Match {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.matches[id]; ok {
		return m.Clone()
	}
	return nil
}

func (s *Store) transaction(id int64) *models.LedgerTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if t, ok := s.txs[id]; ok {
		return t.Clone()
	}
	return nil
}

func (s *Store) transactionIDByRef(ref string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byRef[ref]
	return id, ok
}

func (s *Store) matchesWithStatus(status models.MatchStatus) []*models.Match {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Match
	for _, m := range s.matches {
		if m.Status == status {
			out = append(out, m.Clone())
		}
	}
	return out
}

func (s *Store) transactionsOf(accountID int64) []*models.LedgerTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.LedgerTransaction
	for _, t := range s.txs {
		if t.AccountID == accountID {
			out = append(out, t.Clone())
		}
	}
	return out
}

// apply publishes a unit of work's buffered writes in one step
func (s *Store) apply(w *writeSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, a := range w.accounts {
		c := *a
		s.accounts[id] = &c
		s.byTelegram[a.TelegramID] = id
	}
	for id, m := range w.matches {
		s.matches[id] = m.Clone()
	}
	for id, t := range w.txs {
		s.txs[id] = t.Clone()
		if t.ExternalRef != nil {
			s.byRef[*t.ExternalRef] = id
		}
	}
}
