package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"wagerbot/events"
	"wagerbot/models"

	"github.com/shopspring/decimal"
)

// moneyPlaces is the number of fractional digits every amount is held to
const moneyPlaces = 2

var (
	// MaxAmount bounds a single stake, deposit, payout or adjustment
	MaxAmount = decimal.New(1, 10)
	// MaxBalance bounds any account balance. It stays well inside the
	// NUMERIC(20,2) money columns, so a pot of two maximum stakes always fits.
	MaxBalance = decimal.New(1, 15)
)

// validatePositiveAmount rejects zero, negative, sub-cent and oversized amounts
func validatePositiveAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("amount %s must be positive: %w", amount, ErrInvalidAmount)
	}
	if amount.GreaterThan(MaxAmount) {
		return fmt.Errorf("amount %s exceeds the limit of %s: %w", amount, MaxAmount, ErrInvalidAmount)
	}
	if !amount.Equal(amount.Round(moneyPlaces)) {
		return fmt.Errorf("amount %s has more than %d fractional digits: %w", amount, moneyPlaces, ErrInvalidAmount)
	}
	return nil
}

// applyBalanceChange is the single entry point for completed balance changes.
// The account must already be locked by uow. It moves the balance, appends one
// completed transaction and queues a BalanceChangeEvent for after commit.
func applyBalanceChange(ctx context.Context, uow UnitOfWork, account *models.Account, delta decimal.Decimal, kind models.TransactionKind, matchID *int64, now time.Time) (*models.LedgerTransaction, error) {
	newBalance := account.Balance.Add(delta)
	if newBalance.IsNegative() {
		return nil, fmt.Errorf("account %d has %s, needs %s: %w", account.ID, account.Balance, delta.Neg(), ErrInsufficientFunds)
	}
	if err := checkBalanceLimit(account.ID, newBalance); err != nil {
		return nil, err
	}

	if err := uow.AccountRepository().UpdateBalance(ctx, account.ID, newBalance, now); err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	tx := &models.LedgerTransaction{
		AccountID: account.ID,
		Kind:      kind,
		Amount:    delta,
		Status:    models.TransactionStatusCompleted,
		MatchID:   matchID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uow.TransactionRepository().Create(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	uow.EventBus().Publish(events.BalanceChangeEvent{
		AccountID:     account.ID,
		TelegramID:    account.TelegramID,
		TransactionID: tx.ID,
		OldBalance:    account.Balance,
		NewBalance:    newBalance,
		ChangeAmount:  delta,
		Kind:          kind,
	})

	account.Balance = newBalance
	account.UpdatedAt = now
	return tx, nil
}

// checkBalanceLimit rejects a credit that would push a balance past MaxBalance
func checkBalanceLimit(accountID int64, newBalance decimal.Decimal) error {
	if newBalance.GreaterThan(MaxBalance) {
		return fmt.Errorf("account %d would hold %s, above the limit of %s: %w", accountID, newBalance, MaxBalance, ErrInvalidAmount)
	}
	return nil
}

// lockAccounts locks the given accounts in ascending ID order so that two
// units of work touching the same pair can never deadlock. Missing accounts
// are absent from the returned map.
func lockAccounts(ctx context.Context, repo AccountRepository, ids ...int64) (map[int64]*models.Account, error) {
	ordered := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			ordered = append(ordered, id)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i] < ordered[j] })

	locked := make(map[int64]*models.Account, len(ordered))
	for _, id := range ordered {
		account, err := repo.GetByIDForUpdate(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to lock account %d: %w", id, err)
		}
		if account != nil {
			locked[id] = account
		}
	}
	return locked, nil
}

// observe reports one operation to metrics
func observe(m Metrics, operation string, start time.Time, err error) {
	m.ObserveOperation(operation, ErrorKind(err), time.Since(start))
}
