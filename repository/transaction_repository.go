package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wagerbot/database"
	"wagerbot/models"
	"wagerbot/service"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const transactionColumns = `id, account_id, kind, amount::text, status, external_ref, match_id, created_at, updated_at`

const externalRefIndex = "idx_ledger_transactions_external_ref"

// TransactionRepository implements service.TransactionRepository
type TransactionRepository struct {
	q queryable
}

// NewTransactionRepository creates a transaction repository outside any transaction
func NewTransactionRepository(db *database.DB) *TransactionRepository {
	return &TransactionRepository{q: db.Pool}
}

func newTransactionRepositoryWithTx(tx queryable) *TransactionRepository {
	return &TransactionRepository{q: tx}
}

func scanTransaction(row pgx.Row) (*models.LedgerTransaction, error) {
	var t models.LedgerTransaction
	var kind, amount, status string
	err := row.Scan(
		&t.ID,
		&t.AccountID,
		&kind,
		&amount,
		&status,
		&t.ExternalRef,
		&t.MatchID,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if t.Amount, err = parseAmount(amount); err != nil {
		return nil, err
	}
	t.Kind = models.TransactionKind(kind)
	t.Status = models.TransactionStatus(status)
	return &t, nil
}

// Create inserts a transaction and fills in its ID
func (r *TransactionRepository) Create(ctx context.Context, tx *models.LedgerTransaction) error {
	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := tx.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	err := r.q.QueryRow(ctx, `
		INSERT INTO ledger_transactions (account_id, kind, amount, status, external_ref, match_id, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8)
		RETURNING id`,
		tx.AccountID,
		string(tx.Kind),
		tx.Amount.String(),
		string(tx.Status),
		tx.ExternalRef,
		tx.MatchID,
		createdAt,
		updatedAt,
	).Scan(&tx.ID)
	if isUniqueViolation(err, externalRefIndex) {
		return fmt.Errorf("external ref %q: %w", *tx.ExternalRef, service.ErrDuplicateReference)
	}
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", translateError(err))
	}
	tx.CreatedAt = createdAt
	tx.UpdatedAt = updatedAt
	return nil
}

// GetByExternalRefForUpdate retrieves and locks the transaction carrying ref
func (r *TransactionRepository) GetByExternalRefForUpdate(ctx context.Context, ref string) (*models.LedgerTransaction, error) {
	tx, err := scanTransaction(r.q.QueryRow(ctx, `
		SELECT `+transactionColumns+`
		FROM ledger_transactions
		WHERE external_ref = $1
		FOR UPDATE`, ref))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock transaction %q: %w", ref, translateError(err))
	}
	return tx, nil
}

// UpdateStatus moves a transaction to a new status
func (r *TransactionRepository) UpdateStatus(ctx context.Context, id int64, status models.TransactionStatus, updatedAt time.Time) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE ledger_transactions
		SET status = $2, updated_at = $3
		WHERE id = $1`, id, string(status), updatedAt)
	if err != nil {
		return fmt.Errorf("failed to update transaction %d: %w", id, translateError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %d not found", id)
	}
	return nil
}

// GetByAccount returns the newest transactions of an account
func (r *TransactionRepository) GetByAccount(ctx context.Context, accountID int64, limit int) ([]*models.LedgerTransaction, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+transactionColumns+`
		FROM ledger_transactions
		WHERE account_id = $1
		ORDER BY id DESC
		LIMIT $2`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", translateError(err))
	}
	defer rows.Close()

	var txs []*models.LedgerTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txs = append(txs, tx)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", translateError(err))
	}
	return txs, nil
}

// SumCompleted returns the sum of completed transaction amounts for an account
func (r *TransactionRepository) SumCompleted(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	var sum string
	err := r.q.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0)::text
		FROM ledger_transactions
		WHERE account_id = $1 AND status = 'completed'`, accountID).Scan(&sum)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum transactions: %w", translateError(err))
	}
	return parseAmount(sum)
}
