package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wagerbot/database"
	"wagerbot/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const accountColumns = `id, telegram_id, username, balance::text, created_at, updated_at`

// AccountRepository implements service.AccountRepository
type AccountRepository struct {
	q queryable
}

// NewAccountRepository creates an account repository outside any transaction
func NewAccountRepository(db *database.DB) *AccountRepository {
	return &AccountRepository{q: db.Pool}
}

func newAccountRepositoryWithTx(tx queryable) *AccountRepository {
	return &AccountRepository{q: tx}
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	var balance string
	if err := row.Scan(&a.ID, &a.TelegramID, &a.Username, &balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	b, err := parseAmount(balance)
	if err != nil {
		return nil, err
	}
	a.Balance = b
	return &a, nil
}

func (r *AccountRepository) getOne(ctx context.Context, query string, args ...any) (*models.Account, error) {
	account, err := scanAccount(r.q.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translateError(err)
	}
	return account, nil
}

// GetByID retrieves an account by ID
func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	account, err := r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d: %w", id, err)
	}
	return account, nil
}

// GetByIDForUpdate retrieves an account and locks its row
func (r *AccountRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Account, error) {
	account, err := r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock account %d: %w", id, err)
	}
	return account, nil
}

// GetByTelegramID retrieves an account by its owner's Telegram ID
func (r *AccountRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.Account, error) {
	account, err := r.getOne(ctx, `SELECT `+accountColumns+` FROM accounts WHERE telegram_id = $1`, telegramID)
	if err != nil {
		return nil, fmt.Errorf("failed to get account by telegram ID %d: %w", telegramID, err)
	}
	return account, nil
}

// Create inserts an account with a zero balance. A concurrent insert for the
// same Telegram ID waits on the unique index and then reads the winner's row.
func (r *AccountRepository) Create(ctx context.Context, telegramID int64, username string) (*models.Account, bool, error) {
	account, err := r.getOne(ctx, `
		INSERT INTO accounts (telegram_id, username, balance)
		VALUES ($1, $2, 0)
		ON CONFLICT (telegram_id) DO NOTHING
		RETURNING `+accountColumns, telegramID, username)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create account: %w", err)
	}
	if account != nil {
		return account, true, nil
	}

	existing, err := r.GetByTelegramID(ctx, telegramID)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		return nil, false, fmt.Errorf("account for telegram ID %d vanished after conflict", telegramID)
	}
	return existing, false, nil
}

// UpdateBalance sets an account's balance
func (r *AccountRepository) UpdateBalance(ctx context.Context, id int64, newBalance decimal.Decimal, updatedAt time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE accounts
		SET balance = $2::numeric, updated_at = $3
		WHERE id = $1`, id, newBalance.String(), updatedAt)
	if err != nil {
		return fmt.Errorf("failed to update balance of account %d: %w", id, translateError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("account %d not found", id)
	}
	return nil
}
