package service

import (
	"context"
	"errors"
	"testing"

	"wagerbot/events"
	"wagerbot/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestMatchService(m *serviceMocks) *matchService {
	svc := NewMatchService(m.factory, nil).(*matchService)
	svc.now = fixedClock
	return svc
}

func TestMatchService_CreateMatch_Success(t *testing.T) {
	ctx := context.Background()
	m := newServiceMocks()
	svc := newTestMatchService(m)

	m.expectCommit(ctx)
	m.accounts.On("GetByID", ctx, int64(1)).Return(account(1, "0"), nil)
	m.matches.On("Create", ctx, mock.MatchedBy(func(match *models.Match) bool {
		return match.Player1ID == 1 &&
			match.Status == models.MatchStatusPending &&
			match.Stake.Equal(dec("100")) &&
			match.Player2ID == nil
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*models.Match).ID = 42
	}).Return(nil)

	match, err := svc.CreateMatch(ctx, 1, dec("100"))

	require.NoError(t, err)
	assert.Equal(t, int64(42), match.ID)
	assert.Equal(t, testNow, match.CreatedAt)
	assert.Len(t, m.uow.PublishedEvents().OfType(events.EventTypeMatchCreated), 1)
	// Creating a match never touches balances
	m.accounts.AssertNotCalled(t, "UpdateBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	m.assertExpectations(t)
}

func TestMatchService_CreateMatch_InvalidStake(t *testing.T) {
	ctx := context.Background()
	m := newServiceMocks()
	svc := newTestMatchService(m)

	for _, stake := range []string{"0", "-5", "1.005"} {
		_, err := svc.CreateMatch(ctx, 1, dec(stake))
		assert.ErrorIs(t, err, ErrInvalidAmount, "stake %s", stake)
	}

	m.factory.AssertNotCalled(t, "Create")
}

func TestMatchService_CreateMatch_UnknownCreator(t *testing.T) {
	ctx := context.Background()
	m := newServiceMocks()
	svc := newTestMatchService(m)

	m.expectAbort(ctx)
	m.accounts.On("GetByID", ctx, int64(9)).Return(nil, nil)

	_, err := svc.CreateMatch(ctx, 9, dec("10"))

	assert.ErrorIs(t, err, ErrNotFound)
	m.matches.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	m.assertExpectations(t)
}

func TestMatchService_JoinMatch_DebitsBothPlayers(t *testing.T) {
	ctx := context.Background()
	m := newServiceMocks()
	svc := newTestMatchService(m)

	m.expectCommit(ctx)
	m.matches.On("GetByIDForUpdate", ctx, int64(10)).Return(pendingMatch(10, 1, "100"), nil)
	m.accounts.On("GetByIDForUpdate", ctx, int64(1)).Return(account(1, "500"), nil)
	m.accounts.On("GetByIDForUpdate", ctx, int64(2)).Return(account(2, "200"), nil)
	m.accounts.On("UpdateBalance", ctx, int64(1), decEq("400"), testNow).Return(nil)
	m.accounts.On("UpdateBalance", ctx, int64(2), decEq("100"), testNow).Return(nil)
	m.expectTransactionCreates(ctx, 100)
	m.matches.On("Update", ctx, mock.MatchedBy(func(match *models.Match) bool {
		return match.Status == models.MatchStatusActive && match.Player2ID != nil && *match.Player2ID == 2
	})).Return(nil)

	result, err := svc.JoinMatch(ctx, 10, 2)

	require.NoError(t, err)
	assert.True(t, result.Player1Balance.Equal(dec("400")))
	assert.True(t, result.Player2Balance.Equal(dec("100")))
	assert.Equal(t, models.MatchStatusActive, result.Match.Status)
	assert.Equal(t, testNow, *result.Match.ActivatedAt)

	for _, debit := range []*models.LedgerTransaction{result.Player1Debit, result.Player2Debit} {
		assert.Equal(t, models.TransactionKindWagerDebit, debit.Kind)
		assert.Equal(t, models.TransactionStatusCompleted, debit.Status)
		assert.True(t, debit.Amount.Equal(dec("-100")))
		require.NotNil(t, debit.MatchID)
		assert.Equal(t, int64(10), *debit.MatchID)
	}

	published := m.uow.PublishedEvents()
	assert.Len(t, published.OfType(events.EventTypeBalanceChange), 2)
	joined := published.OfType(events.EventTypeMatchJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, int64(1001), joined[0].(events.MatchJoinedEvent).Player1TelegramID)
	m.assertExpectations(t)
}

func TestMatchService_JoinMatch_LocksAccountsInAscendingOrder(t *testing.T) {
	ctx := context.Background()
	m := newServiceMocks()
	svc := newTestMatchService(m)

	var lockOrder []int64
	record := func(args mock.Arguments) { lockOrder = append(lockOrder, args.Get(1).(int64)) }

	m.expectCommit(ctx)
	m.matches.On("GetByIDForUpdate", ctx, int64(10)).Return(pendingMatch(10, 7, "5"), nil)
	m.accounts.On("GetByIDForUpdate", ctx, int64(7)).Run(record).Return(account(7, "5"), nil)
	m.accounts.On("GetByIDForUpdate", ctx, int64(3)).Run(record).Return(account(3, "5"), nil)
	m.accounts.On("UpdateBalance", ctx, mock.Anything, decEq("0"), testNow).Return(nil)
	m.expectTransactionCreates(ctx, 1)
	m.matches.On("Update", ctx, mock.Anything).Return(nil)

	_, err := svc.JoinMatch(ctx, 10, 3)

	require.NoError(t, err)
	assert.Equal(t, []int64{3, 7}, lockOrder)
}

func TestMatchService_JoinMatch_InsufficientFunds(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name           string
		creatorBalance string
		joinerBalance  string
	}{
		{"joiner short", "500", "10"},
		{"creator short", "50", "500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newServiceMocks()
			svc := newTestMatchService(m)

			m.expectAbort(ctx)
			m.matches.On("GetByIDForUpdate", ctx, int64(10)).Return(pendingMatch(10, 1, "100"), nil)
			m.accounts.On("GetByIDForUpdate", ctx, int64(1)).Return(account(1, tt.creatorBalance), nil)
			m.accounts.On("GetByIDForUpdate", ctx, int64(2)).Return(account(2, tt.joinerBalance), nil)

			_, err := svc.JoinMatch(ctx, 10, 2)

			assert.ErrorIs(t, err, ErrInsufficientFunds)
			m.accounts.AssertNotCalled(t, "UpdateBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			m.matches.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
			assert.Empty(t, m.uow.PublishedEvents().Events)
			m.assertExpectations(t)
		})
	}
}

func TestMatchService_JoinMatch_Rejections(t *testing.T) {
	ctx := context.Background()

	completed := activeMatch(10, 1, 2, "100")
	completed.Status = models.MatchStatusCompleted

	tests := []struct {
		name     string
		match    *models.Match
		joinerID int64
		wantErr  error
	}{
		{"unknown match", nil, 2, ErrNotFound},
		{"already active", activeMatch(10, 1, 3, "100"), 2, ErrInvalidState},
		{"completed", completed, 2, ErrInvalidState},
		{"self join", pendingMatch(10, 1, "100"), 1, ErrSelfJoin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newServiceMocks()
			svc := newTestMatchService(m)

			m.expectAbort(ctx)
			if tt.match == nil {
				m.matches.On("GetByIDForUpdate", ctx, int64(10)).Return(nil, nil)
			} else {
				m.matches.On("GetByIDForUpdate", ctx, int64(10)).Return(tt.match, nil)
			}

			_, err := svc.JoinMatch(ctx, 10, tt.joinerID)

			assert.ErrorIs(t, err, tt.wantErr)
			m.accounts.AssertNotCalled(t, "GetByIDForUpdate", mock.Anything, mock.Anything)
			m.assertExpectations(t)
		})
	}
}

func TestMatchService_JoinMatch_UnknownJoiner(t *testing.T) {
	ctx := context.Background()
	m := newServiceMocks()
	svc := newTestMatchService(m)

	m.expectAbort(ctx)
	m.matches.On("GetByIDForUpdate", ctx, int64(10)).Return(pendingMatch(10, 1, "100"), nil)
	m.accounts.On("GetByIDForUpdate", ctx, int64(1)).Return(account(1, "500"), nil)
	m.accounts.On("GetByIDForUpdate", ctx, int64(2)).Return(nil, nil)

	_, err := svc.JoinMatch(ctx, 10, 2)

	assert.ErrorIs(t, err, ErrNotFound)
	m.assertExpectations(t)
}

func TestMatchService_JoinMatch_ContentionIsRetryable(t *testing.T) {
	ctx := context.Background()
	m := newServiceMocks()
	svc := newTestMatchService(m)

	m.expectAbort(ctx)
	m.matches.On("GetByIDForUpdate", ctx, int64(10)).Return(nil, ErrContentionTimeout)

	_, err := svc.JoinMatch(ctx, 10, 2)

	assert.ErrorIs(t, err, ErrContentionTimeout)
	assert.True(t, IsRetryable(err))
}

func TestMatchService_DeclareWinner_PaysTwiceTheStake(t *testing.T) {
	ctx := context.Background()
	m := newServiceMocks()
	svc := newTestMatchService(m)

	m.expectCommit(ctx)
	m.matches.On("GetByIDForUpdate", ctx, int64(10)).Return(activeMatch(10, 1, 2, "100"), nil)
	m.accounts.On("GetByIDForUpdate", ctx, int64(1)).Return(account(1, "400"), nil)
	m.accounts.On("GetByIDForUpdate", ctx, int64(2)).Return(account(2, "100"), nil)
	m.accounts.On("UpdateBalance", ctx, int64(2), decEq("300"), testNow).Return(nil)
	m.expectTransactionCreates(ctx, 7)
	m.matches.On("Update", ctx, mock.MatchedBy(func(match *models.Match) bool {
		return match.Status == models.MatchStatusCompleted && match.WinnerID != nil && *match.WinnerID == 2
	})).Return(nil)

	result, err := svc.DeclareWinner(ctx, 10, 2)

	require.NoError(t, err)
	assert.Equal(t, int64(2), result.WinnerID)
	assert.Equal(t, int64(1), result.LoserID)
	assert.True(t, result.AmountWon.Equal(dec("200")))
	assert.True(t, result.WinnerBalance.Equal(dec("300")))
	assert.Equal(t, models.TransactionKindWagerCredit, result.Credit.Kind)
	assert.Equal(t, int64(7), result.Credit.ID)

	completed := m.uow.PublishedEvents().OfType(events.EventTypeMatchCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, int64(1001), completed[0].(events.MatchCompletedEvent).LoserTelegramID)
	m.accounts.AssertNotCalled(t, "UpdateBalance", ctx, int64(1), mock.Anything, mock.Anything)
	m.assertExpectations(t)
}

func TestMatchService_DeclareWinner_Rejections(t *testing.T) {
	ctx := context.Background()

	completed := activeMatch(10, 1, 2, "100")
	completed.Status = models.MatchStatusCompleted
	winner := int64(1)
	completed.WinnerID = &winner

	tests := []struct {
		name      string
		match     *models.Match
		claimant  int64
		wantErr   error
		wantKind  string
		retryable bool
	}{
		{"unknown match", nil, 1, ErrNotFound, "not_found", false},
		{"pending match", pendingMatch(10, 1, "100"), 1, ErrInvalidState, "invalid_state", false},
		{"already completed", completed, 2, ErrInvalidState, "invalid_state", false},
		{"outsider", activeMatch(10, 1, 2, "100"), 3, ErrNotAParticipant, "not_a_participant", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newServiceMocks()
			svc := newTestMatchService(m)

			m.expectAbort(ctx)
			if tt.match == nil {
				m.matches.On("GetByIDForUpdate", ctx, int64(10)).Return(nil, nil)
			} else {
				m.matches.On("GetByIDForUpdate", ctx, int64(10)).Return(tt.match, nil)
			}

			_, err := svc.DeclareWinner(ctx, 10, tt.claimant)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantKind, ErrorKind(err))
			assert.Equal(t, tt.retryable, IsRetryable(err))
			m.accounts.AssertNotCalled(t, "UpdateBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			m.assertExpectations(t)
		})
	}
}

func TestMatchService_CancelMatch(t *testing.T) {
	ctx := context.Background()

	t.Run("owner cancels pending match", func(t *testing.T) {
		m := newServiceMocks()
		svc := newTestMatchService(m)

		m.expectCommit(ctx)
		m.matches.On("GetByIDForUpdate", ctx, int64(10)).Return(pendingMatch(10, 1, "100"), nil)
		m.matches.On("Update", ctx, mock.MatchedBy(func(match *models.Match) bool {
			return match.Status == models.MatchStatusCancelled
		})).Return(nil)

		match, err := svc.CancelMatch(ctx, 10, 1)

		require.NoError(t, err)
		assert.Equal(t, models.MatchStatusCancelled, match.Status)
		assert.Len(t, m.uow.PublishedEvents().OfType(events.EventTypeMatchCancelled), 1)
		// No balance effect
		m.accounts.AssertNotCalled(t, "UpdateBalance", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		m.txs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
		m.assertExpectations(t)
	})

	rejections := []struct {
		name      string
		match     *models.Match
		requester int64
		wantErr   error
	}{
		{"unknown match", nil, 1, ErrNotFound},
		{"active match", activeMatch(10, 1, 2, "100"), 1, ErrInvalidState},
		{"not the owner", pendingMatch(10, 1, "100"), 2, ErrNotOwner},
	}

	for _, tt := range rejections {
		t.Run(tt.name, func(t *testing.T) {
			m := newServiceMocks()
			svc := newTestMatchService(m)

			m.expectAbort(ctx)
			if tt.match == nil {
				m.matches.On("GetByIDForUpdate", ctx, int64(10)).Return(nil, nil)
			} else {
				m.matches.On("GetByIDForUpdate", ctx, int64(10)).Return(tt.match, nil)
			}

			_, err := svc.CancelMatch(ctx, 10, tt.requester)

			assert.ErrorIs(t, err, tt.wantErr)
			m.matches.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
			m.assertExpectations(t)
		})
	}
}

func TestMatchService_GetMatch_NotFound(t *testing.T) {
	ctx := context.Background()
	m := newServiceMocks()
	svc := newTestMatchService(m)

	m.expectAbort(ctx)
	m.matches.On("GetByID", ctx, int64(5)).Return(nil, nil)

	_, err := svc.GetMatch(ctx, 5)

	assert.True(t, errors.Is(err, ErrNotFound))
	m.assertExpectations(t)
}

func TestMatchService_ListOpenMatches_DefaultLimit(t *testing.T) {
	ctx := context.Background()
	m := newServiceMocks()
	svc := newTestMatchService(m)

	open := []*models.Match{pendingMatch(2, 1, "5"), pendingMatch(1, 1, "5")}
	m.expectAbort(ctx)
	m.matches.On("ListByStatus", ctx, models.MatchStatusPending, DefaultOpenMatchLimit).Return(open, nil)

	matches, err := svc.ListOpenMatches(ctx, 0)

	require.NoError(t, err)
	assert.Equal(t, open, matches)
	m.assertExpectations(t)
}
