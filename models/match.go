package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MatchStatus represents the lifecycle state of a wager match
type MatchStatus string

const (
	MatchStatusPending   MatchStatus = "pending"
	MatchStatusActive    MatchStatus = "active"
	MatchStatusCompleted MatchStatus = "completed"
	MatchStatusCancelled MatchStatus = "cancelled"
)

// IsTerminal reports whether no further transitions are possible
func (s MatchStatus) IsTerminal() bool {
	return s == MatchStatusCompleted || s == MatchStatusCancelled
}

// Match represents a two-party wager with a fixed stake
type Match struct {
	ID          int64           `db:"id"`
	Player1ID   int64           `db:"player1_id"`
	Player2ID   *int64          `db:"player2_id"`
	Stake       decimal.Decimal `db:"stake"`
	Status      MatchStatus     `db:"status"`
	WinnerID    *int64          `db:"winner_id"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
	ActivatedAt *time.Time      `db:"activated_at"`
	FinishedAt  *time.Time      `db:"finished_at"`
}

// IsParticipant checks if an account is one of the match players
func (m *Match) IsParticipant(accountID int64) bool {
	if m.Player1ID == accountID {
		return true
	}
	return m.Player2ID != nil && *m.Player2ID == accountID
}

// GetOpponent returns the other player's account ID, or 0 if there is none
func (m *Match) GetOpponent(accountID int64) int64 {
	if m.Player2ID == nil {
		return 0
	}
	if m.Player1ID == accountID {
		return *m.Player2ID
	}
	if *m.Player2ID == accountID {
		return m.Player1ID
	}
	return 0
}

// Pot is the amount paid to the winner
func (m *Match) Pot() decimal.Decimal {
	return m.Stake.Mul(decimal.NewFromInt(2))
}

// Clone returns a deep copy so callers cannot mutate stored state
func (m *Match) Clone() *Match {
	c := *m
	if m.Player2ID != nil {
		v := *m.Player2ID
		c.Player2ID = &v
	}
	if m.WinnerID != nil {
		v := *m.WinnerID
		c.WinnerID = &v
	}
	if m.ActivatedAt != nil {
		v := *m.ActivatedAt
		c.ActivatedAt = &v
	}
	if m.FinishedAt != nil {
		v := *m.FinishedAt
		c.FinishedAt = &v
	}
	return &c
}
