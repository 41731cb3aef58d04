package service

import (
	"context"
	"time"

	"wagerbot/events"
	"wagerbot/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// MockAccountRepository is a mock implementation of AccountRepository
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id int64) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.Account, error) {
	args := m.Called(ctx, telegramID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountRepository) Create(ctx context.Context, telegramID int64, username string) (*models.Account, bool, error) {
	args := m.Called(ctx, telegramID, username)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*models.Account), args.Bool(1), args.Error(2)
}

func (m *MockAccountRepository) UpdateBalance(ctx context.Context, id int64, newBalance decimal.Decimal, updatedAt time.Time) error {
	args := m.Called(ctx, id, newBalance, updatedAt)
	return args.Error(0)
}

// MockMatchRepository is a mock implementation of MatchRepository
type MockMatchRepository struct {
	mock.Mock
}

func (m *MockMatchRepository) Create(ctx context.Context, match *models.Match) error {
	args := m.Called(ctx, match)
	return args.Error(0)
}

func (m *MockMatchRepository) GetByID(ctx context.Context, id int64) (*models.Match, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Match), args.Error(1)
}

func (m *MockMatchRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Match, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Match), args.Error(1)
}

func (m *MockMatchRepository) Update(ctx context.Context, match *models.Match) error {
	args := m.Called(ctx, match)
	return args.Error(0)
}

func (m *MockMatchRepository) ListByStatus(ctx context.Context, status models.MatchStatus, limit int) ([]*models.Match, error) {
	args := m.Called(ctx, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Match), args.Error(1)
}

// MockTransactionRepository is a mock implementation of TransactionRepository
type MockTransactionRepository struct {
	mock.Mock
}

func (m *MockTransactionRepository) Create(ctx context.Context, tx *models.LedgerTransaction) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByExternalRefForUpdate(ctx context.Context, ref string) (*models.LedgerTransaction, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerTransaction), args.Error(1)
}

func (m *MockTransactionRepository) UpdateStatus(ctx context.Context, id int64, status models.TransactionStatus, updatedAt time.Time) error {
	args := m.Called(ctx, id, status, updatedAt)
	return args.Error(0)
}

func (m *MockTransactionRepository) GetByAccount(ctx context.Context, accountID int64, limit int) ([]*models.LedgerTransaction, error) {
	args := m.Called(ctx, accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerTransaction), args.Error(1)
}

func (m *MockTransactionRepository) SumCompleted(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// MockEventPublisher records published events instead of dispatching them
type MockEventPublisher struct {
	Events []events.Event
}

func (m *MockEventPublisher) Publish(event events.Event) {
	m.Events = append(m.Events, event)
}

// OfType returns the recorded events of one type
func (m *MockEventPublisher) OfType(eventType events.EventType) []events.Event {
	var out []events.Event
	for _, e := range m.Events {
		if e.Type() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// MockUnitOfWork is a mock implementation of UnitOfWork. Begin, Commit and
// Rollback are expectations; repositories are plain fields.
type MockUnitOfWork struct {
	mock.Mock
	accountRepo     AccountRepository
	matchRepo       MatchRepository
	transactionRepo TransactionRepository
	eventBus        *MockEventPublisher
}

// SetRepositories wires the repositories the unit of work hands out
func (m *MockUnitOfWork) SetRepositories(accountRepo AccountRepository, matchRepo MatchRepository, transactionRepo TransactionRepository) {
	m.accountRepo = accountRepo
	m.matchRepo = matchRepo
	m.transactionRepo = transactionRepo
}

func (m *MockUnitOfWork) Begin(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockUnitOfWork) Commit() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) Rollback() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockUnitOfWork) AccountRepository() AccountRepository {
	return m.accountRepo
}

func (m *MockUnitOfWork) MatchRepository() MatchRepository {
	return m.matchRepo
}

func (m *MockUnitOfWork) TransactionRepository() TransactionRepository {
	return m.transactionRepo
}

func (m *MockUnitOfWork) EventBus() EventPublisher {
	if m.eventBus == nil {
		m.eventBus = &MockEventPublisher{}
	}
	return m.eventBus
}

// PublishedEvents returns everything published through EventBus
func (m *MockUnitOfWork) PublishedEvents() *MockEventPublisher {
	m.EventBus()
	return m.eventBus
}

// MockUnitOfWorkFactory is a mock implementation of UnitOfWorkFactory
type MockUnitOfWorkFactory struct {
	mock.Mock
}

func (m *MockUnitOfWorkFactory) Create() UnitOfWork {
	args := m.Called()
	return args.Get(0).(UnitOfWork)
}

// MockPaymentGateway is a mock implementation of PaymentGateway
type MockPaymentGateway struct {
	mock.Mock
}

func (m *MockPaymentGateway) CreatePayment(ctx context.Context, req *models.PaymentRequest) (*models.PaymentSession, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentSession), args.Error(1)
}

func (m *MockPaymentGateway) GetPayment(ctx context.Context, paymentID string) (*models.PaymentSession, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentSession), args.Error(1)
}

// MockMetrics is a mock implementation of Metrics
type MockMetrics struct {
	mock.Mock
}

func (m *MockMetrics) ObserveOperation(operation string, kind string, duration time.Duration) {
	m.Called(operation, kind, duration)
}

// MockAccountService is a mock implementation of AccountService
type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) GetOrCreateAccount(ctx context.Context, telegramID int64, username string) (*models.Account, error) {
	args := m.Called(ctx, telegramID, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountService) GetAccount(ctx context.Context, accountID int64) (*models.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Account), args.Error(1)
}

func (m *MockAccountService) GetBalance(ctx context.Context, accountID int64) (decimal.Decimal, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockAccountService) AdjustBalance(ctx context.Context, accountID int64, delta decimal.Decimal, kind models.TransactionKind) (decimal.Decimal, error) {
	args := m.Called(ctx, accountID, delta, kind)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockAccountService) Payout(ctx context.Context, accountID int64, amount decimal.Decimal) (decimal.Decimal, error) {
	args := m.Called(ctx, accountID, amount)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

func (m *MockAccountService) ListTransactions(ctx context.Context, accountID int64, limit int) ([]*models.LedgerTransaction, error) {
	args := m.Called(ctx, accountID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.LedgerTransaction), args.Error(1)
}

func (m *MockAccountService) VerifyBalance(ctx context.Context, accountID int64) (*models.BalanceAudit, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.BalanceAudit), args.Error(1)
}

// MockMatchService is a mock implementation of MatchService
type MockMatchService struct {
	mock.Mock
}

func (m *MockMatchService) CreateMatch(ctx context.Context, creatorID int64, stake decimal.Decimal) (*models.Match, error) {
	args := m.Called(ctx, creatorID, stake)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Match), args.Error(1)
}

func (m *MockMatchService) JoinMatch(ctx context.Context, matchID int64, joinerID int64) (*models.JoinResult, error) {
	args := m.Called(ctx, matchID, joinerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.JoinResult), args.Error(1)
}

func (m *MockMatchService) DeclareWinner(ctx context.Context, matchID int64, claimantID int64) (*models.MatchResult, error) {
	args := m.Called(ctx, matchID, claimantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.MatchResult), args.Error(1)
}

func (m *MockMatchService) CancelMatch(ctx context.Context, matchID int64, requesterID int64) (*models.Match, error) {
	args := m.Called(ctx, matchID, requesterID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Match), args.Error(1)
}

func (m *MockMatchService) GetMatch(ctx context.Context, matchID int64) (*models.Match, error) {
	args := m.Called(ctx, matchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Match), args.Error(1)
}

func (m *MockMatchService) ListOpenMatches(ctx context.Context, limit int) ([]*models.Match, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Match), args.Error(1)
}

// MockPaymentService is a mock implementation of PaymentService
type MockPaymentService struct {
	mock.Mock
}

func (m *MockPaymentService) InitiateDeposit(ctx context.Context, accountID int64, amount decimal.Decimal) (*models.DepositIntent, error) {
	args := m.Called(ctx, accountID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.DepositIntent), args.Error(1)
}

func (m *MockPaymentService) RecordPendingDeposit(ctx context.Context, accountID int64, amount decimal.Decimal, externalRef string) (*models.LedgerTransaction, error) {
	args := m.Called(ctx, accountID, amount, externalRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.LedgerTransaction), args.Error(1)
}

func (m *MockPaymentService) SettleDeposit(ctx context.Context, externalRef string, outcome models.DepositOutcome) (*models.SettlementResult, error) {
	args := m.Called(ctx, externalRef, outcome)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SettlementResult), args.Error(1)
}

func (m *MockPaymentService) ConfirmDeposit(ctx context.Context, externalRef string) (*models.SettlementResult, error) {
	args := m.Called(ctx, externalRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SettlementResult), args.Error(1)
}
