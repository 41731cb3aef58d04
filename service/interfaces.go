package service

import (
	"context"
	"time"

	"wagerbot/events"
	"wagerbot/models"

	"github.com/shopspring/decimal"
)

// AccountRepository defines the interface for account data access.
// Lookups return nil, nil when the account does not exist.
type AccountRepository interface {
	// GetByID retrieves an account without locking it
	GetByID(ctx context.Context, id int64) (*models.Account, error)

	// GetByIDForUpdate retrieves an account and holds its lock until the unit of work ends
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Account, error)

	// GetByTelegramID retrieves an account by its owner's Telegram ID
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.Account, error)

	// Create inserts an account with a zero balance. On a Telegram ID conflict it
	// returns the existing account and created=false.
	Create(ctx context.Context, telegramID int64, username string) (account *models.Account, created bool, err error)

	// UpdateBalance sets the balance of a locked account
	UpdateBalance(ctx context.Context, id int64, newBalance decimal.Decimal, updatedAt time.Time) error
}

// MatchRepository defines the interface for match data access
type MatchRepository interface {
	// Create inserts a match and fills in its ID
	Create(ctx context.Context, match *models.Match) error

	// GetByID retrieves a match without locking it
	GetByID(ctx context.Context, id int64) (*models.Match, error)

	// GetByIDForUpdate retrieves a match and holds its lock until the unit of work ends
	GetByIDForUpdate(ctx context.Context, id int64) (*models.Match, error)

	// Update persists the mutable fields of a locked match
	Update(ctx context.Context, match *models.Match) error

	// ListByStatus returns the newest matches in a status
	ListByStatus(ctx context.Context, status models.MatchStatus, limit int) ([]*models.Match, error)
}

// TransactionRepository defines the interface for ledger transaction data access
type TransactionRepository interface {
	// Create inserts a transaction; a reused external reference yields ErrDuplicateReference
	Create(ctx context.Context, tx *models.LedgerTransaction) error

	// GetByExternalRefForUpdate retrieves and locks the transaction carrying ref
	GetByExternalRefForUpdate(ctx context.Context, ref string) (*models.LedgerTransaction, error)

	// UpdateStatus moves a locked transaction to a new status
	UpdateStatus(ctx context.Context, id int64, status models.TransactionStatus, updatedAt time.Time) error

	// GetByAccount returns the newest transactions of an account
	GetByAccount(ctx context.Context, accountID int64, limit int) ([]*models.LedgerTransaction, error)

	// SumCompleted returns the sum of completed transaction amounts for an account
	SumCompleted(ctx context.Context, accountID int64) (decimal.Decimal, error)
}

// EventPublisher defines the interface for publishing events
type EventPublisher interface {
	Publish(event events.Event)
}

// UnitOfWork defines the interface for transactional repository operations.
// Locks taken through *ForUpdate methods are held until Commit or Rollback.
type UnitOfWork interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) error

	// Commit commits the transaction
	Commit() error

	// Rollback rolls back the transaction; a no-op after Commit
	Rollback() error

	// Repository getters
	AccountRepository() AccountRepository
	MatchRepository() MatchRepository
	TransactionRepository() TransactionRepository
	EventBus() EventPublisher
}

// UnitOfWorkFactory defines the interface for creating UnitOfWork instances
type UnitOfWorkFactory interface {
	Create() UnitOfWork
}

// AccountService defines the interface for balance operations
type AccountService interface {
	// GetOrCreateAccount resolves a Telegram identity to an account, creating it on first contact
	GetOrCreateAccount(ctx context.Context, telegramID int64, username string) (*models.Account, error)

	// GetAccount retrieves an account by ID
	GetAccount(ctx context.Context, accountID int64) (*models.Account, error)

	// GetBalance returns the current balance of an account
	GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error)

	// AdjustBalance applies delta atomically and records one completed transaction
	AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal, kind models.TransactionKind) (decimal.Decimal, error)

	// Payout debits amount as a payout; no money leaves through a gateway
	Payout(ctx context.Context, accountID int64, amount decimal.Decimal) (decimal.Decimal, error)

	// ListTransactions returns the newest transactions of an account
	ListTransactions(ctx context.Context, accountID int64, limit int) ([]*models.LedgerTransaction, error)

	// VerifyBalance recomputes the balance from completed transactions
	VerifyBalance(ctx context.Context, accountID int64) (*models.BalanceAudit, error)
}

// MatchService defines the interface for the match lifecycle
type MatchService interface {
	// CreateMatch opens a pending match; nothing is debited yet
	CreateMatch(ctx context.Context, creatorID int64, stake decimal.Decimal) (*models.Match, error)

	// JoinMatch debits both players and activates the match
	JoinMatch(ctx context.Context, matchID int64, joinerID int64) (*models.JoinResult, error)

	// DeclareWinner pays the claimant twice the stake and completes the match
	DeclareWinner(ctx context.Context, matchID int64, claimantID int64) (*models.MatchResult, error)

	// CancelMatch cancels a pending match owned by requesterID
	CancelMatch(ctx context.Context, matchID int64, requesterID int64) (*models.Match, error)

	// GetMatch retrieves a match by ID
	GetMatch(ctx context.Context, matchID int64) (*models.Match, error)

	// ListOpenMatches returns pending matches waiting for an opponent
	ListOpenMatches(ctx context.Context, limit int) ([]*models.Match, error)
}

// PaymentService defines the interface for deposit reconciliation
type PaymentService interface {
	// InitiateDeposit opens a hosted payment and records it as a pending deposit
	InitiateDeposit(ctx context.Context, accountID int64, amount decimal.Decimal) (*models.DepositIntent, error)

	// RecordPendingDeposit records a pending deposit keyed by the gateway reference
	RecordPendingDeposit(ctx context.Context, accountID int64, amount decimal.Decimal, externalRef string) (*models.LedgerTransaction, error)

	// SettleDeposit applies the gateway's verdict; repeated notifications are no-ops
	SettleDeposit(ctx context.Context, externalRef string, outcome models.DepositOutcome) (*models.SettlementResult, error)

	// ConfirmDeposit fetches the payment from the gateway and settles the deposit with
	// the status and amount the gateway reports, never with what a notification claims
	ConfirmDeposit(ctx context.Context, externalRef string) (*models.SettlementResult, error)
}

// PaymentGateway defines the external payment provider
type PaymentGateway interface {
	CreatePayment(ctx context.Context, req *models.PaymentRequest) (*models.PaymentSession, error)
	GetPayment(ctx context.Context, paymentID string) (*models.PaymentSession, error)
}

// Metrics receives one observation per service operation
type Metrics interface {
	ObserveOperation(operation string, kind string, duration time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, string, time.Duration) {}
