package testutil

import (
	"context"
	"testing"

	"wagerbot/database"
	"wagerbot/models"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// InsertAccount inserts an account holding balance, together with the
// completed deposit that explains it so the ledger stays balanced.
func InsertAccount(t *testing.T, db *database.DB, telegramID int64, balance string) *models.Account {
	t.Helper()
	ctx := context.Background()
	amount := decimal.RequireFromString(balance)

	account := &models.Account{TelegramID: telegramID, Username: "tester", Balance: amount}
	err := pgx.BeginFunc(ctx, db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO accounts (telegram_id, username, balance)
			VALUES ($1, $2, $3::numeric)
			RETURNING id, created_at, updated_at`,
			telegramID, account.Username, amount.String(),
		).Scan(&account.ID, &account.CreatedAt, &account.UpdatedAt)
		if err != nil || !amount.IsPositive() {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO ledger_transactions (account_id, kind, amount, status)
			VALUES ($1, 'deposit', $2::numeric, 'completed')`,
			account.ID, amount.String())
		return err
	})
	require.NoError(t, err)
	return account
}

// InsertPendingMatch inserts a pending match created by creatorID
func InsertPendingMatch(t *testing.T, db *database.DB, creatorID int64, stake string) *models.Match {
	t.Helper()
	match := &models.Match{
		Player1ID: creatorID,
		Stake:     decimal.RequireFromString(stake),
		Status:    models.MatchStatusPending,
	}
	err := db.QueryRow(context.Background(), `
		INSERT INTO matches (player1_id, stake, status)
		VALUES ($1, $2::numeric, 'pending')
		RETURNING id, created_at, updated_at`,
		creatorID, match.Stake.String(),
	).Scan(&match.ID, &match.CreatedAt, &match.UpdatedAt)
	require.NoError(t, err)
	return match
}
