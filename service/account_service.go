package service

import (
	"context"
	"fmt"
	"time"

	"wagerbot/events"
	"wagerbot/models"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

// DefaultHistoryLimit caps listings when the caller passes a non-positive limit
const DefaultHistoryLimit = 10

// accountService implements the AccountService interface
type accountService struct {
	uowFactory UnitOfWorkFactory
	metrics    Metrics
	now        func() time.Time
}

// NewAccountService creates a new account service. A nil metrics disables observation.
func NewAccountService(uowFactory UnitOfWorkFactory, metrics Metrics) AccountService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &accountService{
		uowFactory: uowFactory,
		metrics:    metrics,
		now:        utcNow,
	}
}

func utcNow() time.Time {
	return time.Now().UTC()
}

// GetOrCreateAccount retrieves an existing account or opens one with a zero balance
func (s *accountService) GetOrCreateAccount(ctx context.Context, telegramID int64, username string) (account *models.Account, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "get_or_create_account", start, err) }()

	uow := s.uowFactory.Create()
	if err = uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err = uow.AccountRepository().GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}
	if account != nil {
		return account, nil
	}

	// The unique constraint on telegram_id settles concurrent first contacts
	account, created, err := uow.AccountRepository().Create(ctx, telegramID, username)
	if err != nil {
		return nil, fmt.Errorf("failed to create account: %w", err)
	}
	if created {
		uow.EventBus().Publish(events.AccountCreatedEvent{
			AccountID:  account.ID,
			TelegramID: telegramID,
			Username:   username,
		})
	}

	if err = uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	if created {
		log.WithFields(log.Fields{
			"accountID":  account.ID,
			"telegramID": telegramID,
			"username":   username,
		}).Info("Account created")
	}
	return account, nil
}

// GetAccount retrieves an account by ID
func (s *accountService) GetAccount(ctx context.Context, accountID int64) (*models.Account, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}
	return account, nil
}

// GetBalance returns the current balance of an account
func (s *accountService) GetBalance(ctx context.Context, accountID int64) (balance decimal.Decimal, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "get_balance", start, err) }()

	account, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// AdjustBalance applies delta under the account lock and records one completed transaction
func (s *accountService) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal, kind models.TransactionKind) (newBalance decimal.Decimal, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "adjust_balance", start, err) }()

	if delta.IsZero() {
		return decimal.Zero, fmt.Errorf("delta must be non-zero: %w", ErrInvalidAmount)
	}
	if err = validatePositiveAmount(delta.Abs()); err != nil {
		return decimal.Zero, err
	}
	if !kind.Valid() {
		return decimal.Zero, fmt.Errorf("unknown transaction kind %q", kind)
	}

	uow := s.uowFactory.Create()
	if err = uow.Begin(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByIDForUpdate(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to lock account: %w", err)
	}
	if account == nil {
		return decimal.Zero, fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}

	tx, err := applyBalanceChange(ctx, uow, account, delta, kind, nil, s.now())
	if err != nil {
		return decimal.Zero, err
	}

	if err = uow.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"accountID":     accountID,
		"transactionID": tx.ID,
		"kind":          kind,
		"delta":         delta.StringFixed(moneyPlaces),
		"newBalance":    account.Balance.StringFixed(moneyPlaces),
	}).Info("Balance adjusted")

	return account.Balance, nil
}

// Payout debits amount from the account. The ledger records it; no gateway is involved.
func (s *accountService) Payout(ctx context.Context, accountID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	if err := validatePositiveAmount(amount); err != nil {
		return decimal.Zero, err
	}
	return s.AdjustBalance(ctx, accountID, amount.Neg(), models.TransactionKindPayout)
}

// ListTransactions returns the newest transactions of an account
func (s *accountService) ListTransactions(ctx context.Context, accountID int64, limit int) ([]*models.LedgerTransaction, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}

	txs, err := uow.TransactionRepository().GetByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// VerifyBalance compares the stored balance with the sum of completed transactions.
// The account is locked so no adjustment can land between the two reads.
func (s *accountService) VerifyBalance(ctx context.Context, accountID int64) (*models.BalanceAudit, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	account, err := uow.AccountRepository().GetByIDForUpdate(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}

	sum, err := uow.TransactionRepository().SumCompleted(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to sum transactions: %w", err)
	}

	if err := uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	audit := &models.BalanceAudit{
		AccountID:     accountID,
		Balance:       account.Balance,
		LedgerBalance: sum,
	}
	if !audit.Consistent() {
		log.WithFields(log.Fields{
			"accountID":     accountID,
			"balance":       audit.Balance.StringFixed(moneyPlaces),
			"ledgerBalance": audit.LedgerBalance.StringFixed(moneyPlaces),
			"drift":         audit.Drift().StringFixed(moneyPlaces),
		}).Error("Balance does not match ledger")
	}
	return audit, nil
}
