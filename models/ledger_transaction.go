package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind represents what caused a balance change
type TransactionKind string

const (
	TransactionKindDeposit     TransactionKind = "deposit"
	TransactionKindPayout      TransactionKind = "payout"
	TransactionKindWagerDebit  TransactionKind = "wager_debit"
	TransactionKindWagerCredit TransactionKind = "wager_credit"
)

// Valid reports whether k is a known kind
func (k TransactionKind) Valid() bool {
	switch k {
	case TransactionKindDeposit, TransactionKindPayout, TransactionKindWagerDebit, TransactionKindWagerCredit:
		return true
	}
	return false
}

// TransactionStatus represents the settlement state of a ledger transaction
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "pending"
	TransactionStatusCompleted TransactionStatus = "completed"
	TransactionStatusFailed    TransactionStatus = "failed"
)

// LedgerTransaction is an immutable record of a balance-affecting event.
// Only pending deposits ever change status.
type LedgerTransaction struct {
	ID          int64             `db:"id"`
	AccountID   int64             `db:"account_id"`
	Kind        TransactionKind   `db:"kind"`
	Amount      decimal.Decimal   `db:"amount"`
	Status      TransactionStatus `db:"status"`
	ExternalRef *string           `db:"external_ref"`
	MatchID     *int64            `db:"match_id"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
}

// IsSettled reports whether the transaction reached a terminal status
func (t *LedgerTransaction) IsSettled() bool {
	return t.Status == TransactionStatusCompleted || t.Status == TransactionStatusFailed
}

// Clone returns a deep copy
func (t *LedgerTransaction) Clone() *LedgerTransaction {
	c := *t
	if t.ExternalRef != nil {
		v := *t.ExternalRef
		c.ExternalRef = &v
	}
	if t.MatchID != nil {
		v := *t.MatchID
		c.MatchID = &v
	}
	return &c
}

// DepositOutcome is the gateway's final verdict on a deposit
type DepositOutcome string

const (
	DepositOutcomeSucceeded DepositOutcome = "succeeded"
	DepositOutcomeCancelled DepositOutcome = "cancelled"
)

// SettlementResult describes what SettleDeposit did
type SettlementResult struct {
	Transaction    *LedgerTransaction
	NewBalance     decimal.Decimal
	AlreadySettled bool
}

// JoinResult describes a match activation
type JoinResult struct {
	Match          *Match
	Player1Balance decimal.Decimal
	Player2Balance decimal.Decimal
	Player1Debit   *LedgerTransaction
	Player2Debit   *LedgerTransaction
}

// MatchResult describes a completed match
type MatchResult struct {
	Match         *Match
	WinnerID      int64
	LoserID       int64
	AmountWon     decimal.Decimal
	WinnerBalance decimal.Decimal
	Credit        *LedgerTransaction
}
