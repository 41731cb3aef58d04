package service

import (
	"context"
	"testing"
	"time"

	"wagerbot/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

var testNow = time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

type serviceMocks struct {
	factory  *MockUnitOfWorkFactory
	uow      *MockUnitOfWork
	accounts *MockAccountRepository
	matches  *MockMatchRepository
	txs      *MockTransactionRepository
}

func newServiceMocks() *serviceMocks {
	m := &serviceMocks{
		factory:  new(MockUnitOfWorkFactory),
		uow:      new(MockUnitOfWork),
		accounts: new(MockAccountRepository),
		matches:  new(MockMatchRepository),
		txs:      new(MockTransactionRepository),
	}
	m.uow.SetRepositories(m.accounts, m.matches, m.txs)
	return m
}

// expectCommit configures a unit of work that begins, commits and is rolled back by defer
func (m *serviceMocks) expectCommit(ctx context.Context) {
	m.factory.On("Create").Return(m.uow)
	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Commit").Return(nil)
	m.uow.On("Rollback").Return(nil)
}

// expectAbort configures a unit of work that is rolled back without a commit
func (m *serviceMocks) expectAbort(ctx context.Context) {
	m.factory.On("Create").Return(m.uow)
	m.uow.On("Begin", ctx).Return(nil)
	m.uow.On("Rollback").Return(nil)
}

// expectTransactionCreates assigns sequential IDs to created transactions
func (m *serviceMocks) expectTransactionCreates(ctx context.Context, firstID int64) {
	next := firstID
	m.txs.On("Create", ctx, mock.AnythingOfType("*models.LedgerTransaction")).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.LedgerTransaction).ID = next
			next++
		}).
		Return(nil)
}

func (m *serviceMocks) assertExpectations(t *testing.T) {
	m.factory.AssertExpectations(t)
	m.uow.AssertExpectations(t)
	m.accounts.AssertExpectations(t)
	m.matches.AssertExpectations(t)
	m.txs.AssertExpectations(t)
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// decEq matches a decimal argument by value rather than representation
func decEq(s string) interface{} {
	want := dec(s)
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(want) })
}

func account(id int64, balance string) *models.Account {
	return &models.Account{
		ID:         id,
		TelegramID: 1000 + id,
		Username:   "player",
		Balance:    dec(balance),
		CreatedAt:  testNow.Add(-time.Hour),
		UpdatedAt:  testNow.Add(-time.Hour),
	}
}

func pendingMatch(id, creatorID int64, stake string) *models.Match {
	return &models.Match{
		ID:        id,
		Player1ID: creatorID,
		Stake:     dec(stake),
		Status:    models.MatchStatusPending,
		CreatedAt: testNow.Add(-time.Minute),
		UpdatedAt: testNow.Add(-time.Minute),
	}
}

func activeMatch(id, player1ID, player2ID int64, stake string) *models.Match {
	m := pendingMatch(id, player1ID, stake)
	m.Player2ID = &player2ID
	m.Status = models.MatchStatusActive
	return m
}
