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

// DefaultOpenMatchLimit caps ListOpenMatches when the caller passes a non-positive limit
const DefaultOpenMatchLimit = 20

type matchService struct {
	uowFactory UnitOfWorkFactory
	metrics    Metrics
	now        func() time.Time
}

// NewMatchService creates a new match service. A nil metrics disables observation.
func NewMatchService(uowFactory UnitOfWorkFactory, metrics Metrics) MatchService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &matchService{
		uowFactory: uowFactory,
		metrics:    metrics,
		now:        utcNow,
	}
}

// CreateMatch opens a pending match. Funds are only checked and taken on join.
func (s *matchService) CreateMatch(ctx context.Context, creatorID int64, stake decimal.Decimal) (match *models.Match, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "create_match", start, err) }()

	if err = validatePositiveAmount(stake); err != nil {
		return nil, err
	}

	uow := s.uowFactory.Create()
	if err = uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	creator, err := uow.AccountRepository().GetByID(ctx, creatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to get creator: %w", err)
	}
	if creator == nil {
		return nil, fmt.Errorf("creator %d: %w", creatorID, ErrNotFound)
	}

	now := s.now()
	match = &models.Match{
		Player1ID: creatorID,
		Stake:     stake,
		Status:    models.MatchStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err = uow.MatchRepository().Create(ctx, match); err != nil {
		return nil, fmt.Errorf("failed to create match: %w", err)
	}

	uow.EventBus().Publish(events.MatchCreatedEvent{
		MatchID:   match.ID,
		Player1ID: creatorID,
		Stake:     stake,
	})

	if err = uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"matchID":   match.ID,
		"creatorID": creatorID,
		"stake":     stake.StringFixed(moneyPlaces),
	}).Info("Match created")

	return match, nil
}

// JoinMatch activates a pending match. The match row is locked first, then both
// accounts in ascending ID order; both debits land in the same unit of work.
func (s *matchService) JoinMatch(ctx context.Context, matchID int64, joinerID int64) (result *models.JoinResult, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "join_match", start, err) }()

	uow := s.uowFactory.Create()
	if err = uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	match, err := uow.MatchRepository().GetByIDForUpdate(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock match: %w", err)
	}
	if match == nil {
		return nil, fmt.Errorf("match %d: %w", matchID, ErrNotFound)
	}
	if match.Status != models.MatchStatusPending {
		return nil, fmt.Errorf("match %d is %s: %w", matchID, match.Status, ErrInvalidState)
	}
	if match.Player1ID == joinerID {
		return nil, fmt.Errorf("match %d: %w", matchID, ErrSelfJoin)
	}

	accounts, err := lockAccounts(ctx, uow.AccountRepository(), match.Player1ID, joinerID)
	if err != nil {
		return nil, err
	}
	creator, joiner := accounts[match.Player1ID], accounts[joinerID]
	if joiner == nil {
		return nil, fmt.Errorf("joiner %d: %w", joinerID, ErrNotFound)
	}
	if creator == nil {
		return nil, fmt.Errorf("creator %d of match %d is missing", match.Player1ID, matchID)
	}

	// Both balances are read under lock, so this check cannot go stale before the debits
	if !creator.CanCover(match.Stake) {
		return nil, fmt.Errorf("creator has %s, stake is %s: %w", creator.Balance, match.Stake, ErrInsufficientFunds)
	}
	if !joiner.CanCover(match.Stake) {
		return nil, fmt.Errorf("joiner has %s, stake is %s: %w", joiner.Balance, match.Stake, ErrInsufficientFunds)
	}

	now := s.now()
	creatorDebit, err := applyBalanceChange(ctx, uow, creator, match.Stake.Neg(), models.TransactionKindWagerDebit, &match.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to debit creator: %w", err)
	}
	joinerDebit, err := applyBalanceChange(ctx, uow, joiner, match.Stake.Neg(), models.TransactionKindWagerDebit, &match.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to debit joiner: %w", err)
	}

	match.Player2ID = &joinerID
	match.Status = models.MatchStatusActive
	match.ActivatedAt = &now
	match.UpdatedAt = now
	if err = uow.MatchRepository().Update(ctx, match); err != nil {
		return nil, fmt.Errorf("failed to update match: %w", err)
	}

	uow.EventBus().Publish(events.MatchJoinedEvent{
		MatchID:           match.ID,
		Player1ID:         creator.ID,
		Player2ID:         joiner.ID,
		Player1TelegramID: creator.TelegramID,
		Player2TelegramID: joiner.TelegramID,
		Player2Username:   joiner.Username,
		Stake:             match.Stake,
	})

	if err = uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"matchID":   match.ID,
		"player1ID": creator.ID,
		"player2ID": joiner.ID,
		"stake":     match.Stake.StringFixed(moneyPlaces),
	}).Info("Match joined")

	return &models.JoinResult{
		Match:          match,
		Player1Balance: creator.Balance,
		Player2Balance: joiner.Balance,
		Player1Debit:   creatorDebit,
		Player2Debit:   joinerDebit,
	}, nil
}

// DeclareWinner completes an active match in favour of the claimant. The status
// check runs under the match lock, so a second claim always sees completed.
func (s *matchService) DeclareWinner(ctx context.Context, matchID int64, claimantID int64) (result *models.MatchResult, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "declare_winner", start, err) }()

	uow := s.uowFactory.Create()
	if err = uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	match, err := uow.MatchRepository().GetByIDForUpdate(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock match: %w", err)
	}
	if match == nil {
		return nil, fmt.Errorf("match %d: %w", matchID, ErrNotFound)
	}
	if match.Status != models.MatchStatusActive {
		return nil, fmt.Errorf("match %d is %s: %w", matchID, match.Status, ErrInvalidState)
	}
	if !match.IsParticipant(claimantID) {
		return nil, fmt.Errorf("account %d in match %d: %w", claimantID, matchID, ErrNotAParticipant)
	}
	loserID := match.GetOpponent(claimantID)

	accounts, err := lockAccounts(ctx, uow.AccountRepository(), claimantID, loserID)
	if err != nil {
		return nil, err
	}
	winner, loser := accounts[claimantID], accounts[loserID]
	if winner == nil || loser == nil {
		return nil, fmt.Errorf("participants of match %d are missing", matchID)
	}

	now := s.now()
	pot := match.Pot()
	credit, err := applyBalanceChange(ctx, uow, winner, pot, models.TransactionKindWagerCredit, &match.ID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to credit winner: %w", err)
	}

	match.WinnerID = &claimantID
	match.Status = models.MatchStatusCompleted
	match.FinishedAt = &now
	match.UpdatedAt = now
	if err = uow.MatchRepository().Update(ctx, match); err != nil {
		return nil, fmt.Errorf("failed to update match: %w", err)
	}

	uow.EventBus().Publish(events.MatchCompletedEvent{
		MatchID:          match.ID,
		WinnerID:         winner.ID,
		LoserID:          loser.ID,
		WinnerTelegramID: winner.TelegramID,
		LoserTelegramID:  loser.TelegramID,
		WinnerUsername:   winner.Username,
		LoserBalance:     loser.Balance,
		AmountWon:        pot,
	})

	if err = uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"matchID":   match.ID,
		"winnerID":  winner.ID,
		"loserID":   loser.ID,
		"amountWon": pot.StringFixed(moneyPlaces),
	}).Info("Match completed")

	return &models.MatchResult{
		Match:         match,
		WinnerID:      winner.ID,
		LoserID:       loser.ID,
		AmountWon:     pot,
		WinnerBalance: winner.Balance,
		Credit:        credit,
	}, nil
}

// CancelMatch cancels a pending match. Nothing was debited, so no balance moves.
func (s *matchService) CancelMatch(ctx context.Context, matchID int64, requesterID int64) (match *models.Match, err error) {
	start := time.Now()
	defer func() { observe(s.metrics, "cancel_match", start, err) }()

	uow := s.uowFactory.Create()
	if err = uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	match, err = uow.MatchRepository().GetByIDForUpdate(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to lock match: %w", err)
	}
	if match == nil {
		return nil, fmt.Errorf("match %d: %w", matchID, ErrNotFound)
	}
	if match.Status != models.MatchStatusPending {
		return nil, fmt.Errorf("match %d is %s: %w", matchID, match.Status, ErrInvalidState)
	}
	if match.Player1ID != requesterID {
		return nil, fmt.Errorf("account %d on match %d: %w", requesterID, matchID, ErrNotOwner)
	}

	now := s.now()
	match.Status = models.MatchStatusCancelled
	match.FinishedAt = &now
	match.UpdatedAt = now
	if err = uow.MatchRepository().Update(ctx, match); err != nil {
		return nil, fmt.Errorf("failed to update match: %w", err)
	}

	uow.EventBus().Publish(events.MatchCancelledEvent{
		MatchID:   match.ID,
		Player1ID: match.Player1ID,
	})

	if err = uow.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	log.WithFields(log.Fields{
		"matchID":     match.ID,
		"requesterID": requesterID,
	}).Warn("Match cancelled")

	return match, nil
}

// GetMatch retrieves a match by ID
func (s *matchService) GetMatch(ctx context.Context, matchID int64) (*models.Match, error) {
	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	match, err := uow.MatchRepository().GetByID(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("failed to get match: %w", err)
	}
	if match == nil {
		return nil, fmt.Errorf("match %d: %w", matchID, ErrNotFound)
	}
	return match, nil
}

// ListOpenMatches returns pending matches, newest first
func (s *matchService) ListOpenMatches(ctx context.Context, limit int) ([]*models.Match, error) {
	if limit <= 0 {
		limit = DefaultOpenMatchLimit
	}

	uow := s.uowFactory.Create()
	if err := uow.Begin(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer uow.Rollback()

	matches, err := uow.MatchRepository().ListByStatus(ctx, models.MatchStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	return matches, nil
}
