package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"wagerbot/models"
	"wagerbot/service"

	"github.com/shopspring/decimal"
)

func (u *unitOfWork) checkActive() error {
	if !u.active {
		return fmt.Errorf("unit of work is closed")
	}
	return nil
}

type accountRepository struct {
	uow *unitOfWork
}

func (r *accountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	if err := r.uow.checkActive(); err != nil {
		return nil, err
	}
	if a, ok := r.uow.writes.accounts[id]; ok {
		c := *a
		return &c, nil
	}
	return r.uow.store.account(id), nil
}

func (r *accountRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Account, error) {
	if err := r.uow.lock(ctx, accountKey(id)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *accountRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.Account, error) {
	if err := r.uow.checkActive(); err != nil {
		return nil, err
	}
	for _, a := range r.uow.writes.accounts {
		if a.TelegramID == telegramID {
			c := *a
			return &c, nil
		}
	}
	id, ok := r.uow.store.accountIDByTelegram(telegramID)
	if !ok {
		return nil, nil
	}
	return r.uow.store.account(id), nil
}

// Create serializes on the Telegram ID, so concurrent first contacts yield one account
func (r *accountRepository) Create(ctx context.Context, telegramID int64, username string) (*models.Account, bool, error) {
	if err := r.uow.lock(ctx, telegramKey(telegramID)); err != nil {
		return nil, false, err
	}

	existing, err := r.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	id := r.uow.store.allocAccountID()
	if err := r.uow.lock(ctx, accountKey(id)); err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	a := &models.Account{
		ID:         id,
		TelegramID: telegramID,
		Username:   username,
		Balance:    decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.uow.writes.accounts[id] = a

	c := *a
	return &c, true, nil
}

func (r *accountRepository) UpdateBalance(ctx context.Context, id int64, newBalance decimal.Decimal, updatedAt time.Time) error {
	if err := r.uow.lock(ctx, accountKey(id)); err != nil {
		return err
	}
	if newBalance.IsNegative() {
		return fmt.Errorf("balance of account %d would become %s", id, newBalance)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("account %d not found", id)
	}

	current.Balance = newBalance
	current.UpdatedAt = updatedAt
	r.uow.writes.accounts[id] = current
	return nil
}

type matchRepository struct {
	uow *unitOfWork
}

func (r *matchRepository) Create(ctx context.Context, match *models.Match) error {
	if err := r.uow.checkActive(); err != nil {
		return err
	}
	if r.uow.store.account(match.Player1ID) == nil && r.uow.writes.accounts[match.Player1ID] == nil {
		return fmt.Errorf("player1 account %d does not exist", match.Player1ID)
	}

	id := r.uow.store.allocMatchID()
	if err := r.uow.lock(ctx, matchKey(id)); err != nil {
		return err
	}

	match.ID = id
	r.uow.writes.matches[id] = match.Clone()
	return nil
}

func (r *matchRepository) GetByID(ctx context.Context, id int64) (*models.Match, error) {
	if err := r.uow.checkActive(); err != nil {
		return nil, err
	}
	if m, ok := r.uow.writes.matches[id]; ok {
		return m.Clone(), nil
	}
	return r.uow.store.match(id), nil
}

func (r *matchRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Match, error) {
	if err := r.uow.lock(ctx, matchKey(id)); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *matchRepository) Update(ctx context.Context, match *models.Match) error {
	if err := r.uow.lock(ctx, matchKey(match.ID)); err != nil {
		return err
	}
	current, err := r.GetByID(ctx, match.ID)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("match %d not found", match.ID)
	}
	r.uow.writes.matches[match.ID] = match.Clone()
	return nil
}

func (r *matchRepository) ListByStatus(ctx context.Context, status models.MatchStatus, limit int) ([]*models.Match, error) {
	if err := r.uow.checkActive(); err != nil {
		return nil, err
	}

	byID := make(map[int64]*models.Match)
	for _, m := range r.uow.store.matchesWithStatus(status) {
		byID[m.ID] = m
	}
	for id, m := range r.uow.writes.matches {
		if m.Status == status {
			byID[id] = m.Clone()
		} else {
			delete(byID, id)
		}
	}

	out := make([]*models.Match, 0, len(byID))
	for _, m := range byID {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type transactionRepository struct {
	uow *unitOfWork
}

// Create serializes on the external reference, so a concurrent duplicate waits
// for the first insert and then fails with ErrDuplicateReference.
func (r *transactionRepository) Create(ctx context.Context, tx *models.LedgerTransaction) error {
	if err := r.uow.checkActive(); err != nil {
		return err
	}
	if tx.ExternalRef != nil {
		ref := *tx.ExternalRef
		if err := r.uow.lock(ctx, refKey(ref)); err != nil {
			return err
		}
		if _, ok := r.refInWrites(ref); ok {
			return fmt.Errorf("external ref %q: %w", ref, service.ErrDuplicateReference)
		}
		if _, ok := r.uow.store.transactionIDByRef(ref); ok {
			return fmt.Errorf("external ref %q: %w", ref, service.ErrDuplicateReference)
		}
	}
	if r.uow.store.account(tx.AccountID) == nil && r.uow.writes.accounts[tx.AccountID] == nil {
		return fmt.Errorf("account %d does not exist", tx.AccountID)
	}

	id := r.uow.store.allocTransactionID()
	if err := r.uow.lock(ctx, transactionKey(id)); err != nil {
		return err
	}

	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
		tx.UpdatedAt = tx.CreatedAt
	}
	tx.ID = id
	r.uow.writes.txs[id] = tx.Clone()
	return nil
}

func (r *transactionRepository) refInWrites(ref string) (int64, bool) {
	for id, t := range r.uow.writes.txs {
		if t.ExternalRef != nil && *t.ExternalRef == ref {
			return id, true
		}
	}
	return 0, false
}

func (r *transactionRepository) get(id int64) *models.LedgerTransaction {
	if t, ok := r.uow.writes.txs[id]; ok {
		return t.Clone()
	}
	return r.uow.store.transaction(id)
}

func (r *transactionRepository) GetByExternalRefForUpdate(ctx context.Context, ref string) (*models.LedgerTransaction, error) {
	if err := r.uow.lock(ctx, refKey(ref)); err != nil {
		return nil, err
	}

	id, ok := r.refInWrites(ref)
	if !ok {
		id, ok = r.uow.store.transactionIDByRef(ref)
	}
	if !ok {
		return nil, nil
	}

	if err := r.uow.lock(ctx, transactionKey(id)); err != nil {
		return nil, err
	}
	return r.get(id), nil
}

func (r *transactionRepository) UpdateStatus(ctx context.Context, id int64, status models.TransactionStatus, updatedAt time.Time) error {
	if err := r.uow.lock(ctx, transactionKey(id)); err != nil {
		return err
	}
	current := r.get(id)
	if current == nil {
		return fmt.Errorf("transaction %d not found", id)
	}
	current.Status = status
	current.UpdatedAt = updatedAt
	r.uow.writes.txs[id] = current
	return nil
}

func (r *transactionRepository) visibleFor(accountID int64) []*models.LedgerTransaction {
	byID := make(map[int64]*models.LedgerTransaction)
	for _, t := range r.uow.store.transactionsOf(accountID) {
		byID[t.ID] = t
	}
	for id, t := range r.uow.writes.txs {
		if t.AccountID == accountID {
			byID[id] = t.Clone()
		}
	}

	out := make([]*models.LedgerTransaction, 0, len(byID))
	for _, t := range byID {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r *transactionRepository) GetByAccount(ctx context.Context, accountID int64, limit int) ([]*models.LedgerTransaction, error) {
	if err := r.uow.checkActive(); err != nil {
		return nil, err
	}
	out := r.visibleFor(accountID)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *transactionRepository) SumCompleted(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	if err := r.uow.checkActive(); err != nil {
		return decimal.Zero, err
	}
	sum := decimal.Zero
	for _, t := range r.visibleFor(accountID) {
		if t.Status == models.TransactionStatusCompleted {
			sum = sum.Add(t.Amount)
		}
	}
	return sum, nil
}
