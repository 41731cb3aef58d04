package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a Telegram user's balance-holding account
type Account struct {
	ID         int64           `db:"id"`
	TelegramID int64           `db:"telegram_id"`
	Username   string          `db:"username"`
	Balance    decimal.Decimal `db:"balance"`
	CreatedAt  time.Time       `db:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at"`
}

// CanCover reports whether the balance is at least amount
func (a *Account) CanCover(amount decimal.Decimal) bool {
	return a.Balance.GreaterThanOrEqual(amount)
}

// BalanceAudit is the result of recomputing an account balance from its ledger
type BalanceAudit struct {
	AccountID     int64
	Balance       decimal.Decimal
	LedgerBalance decimal.Decimal
}

// Consistent reports whether the stored balance matches the sum of completed transactions
func (a *BalanceAudit) Consistent() bool {
	return a.Balance.Equal(a.LedgerBalance)
}

// Drift returns stored balance minus ledger balance
func (a *BalanceAudit) Drift() decimal.Decimal {
	return a.Balance.Sub(a.LedgerBalance)
}
