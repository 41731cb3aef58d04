package repository

import (
	"context"
	"errors"
	"fmt"

	"wagerbot/database"
	"wagerbot/models"

	"github.com/jackc/pgx/v5"
)

const matchColumns = `id, player1_id, player2_id, stake::text, status, winner_id,
	created_at, updated_at, activated_at, finished_at`

// MatchRepository implements service.MatchRepository
type MatchRepository struct {
	q queryable
}

// NewMatchRepository creates a match repository outside any transaction
func NewMatchRepository(db *database.DB) *MatchRepository {
	return &MatchRepository{q: db.Pool}
}

func newMatchRepositoryWithTx(tx queryable) *MatchRepository {
	return &MatchRepository{q: tx}
}

func scanMatch(row pgx.Row) (*models.Match, error) {
	var m models.Match
	var stake, status string
	err := row.Scan(
		&m.ID,
		&m.Player1ID,
		&m.Player2ID,
		&stake,
		&status,
		&m.WinnerID,
		&m.CreatedAt,
		&m.UpdatedAt,
		&m.ActivatedAt,
		&m.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	if m.Stake, err = parseAmount(stake); err != nil {
		return nil, err
	}
	m.Status = models.MatchStatus(status)
	return &m, nil
}

// Create inserts a match and fills in its ID
func (r *MatchRepository) Create(ctx context.Context, match *models.Match) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO matches (player1_id, player2_id, stake, status, winner_id, created_at, updated_at, activated_at, finished_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		match.Player1ID,
		match.Player2ID,
		match.Stake.String(),
		string(match.Status),
		match.WinnerID,
		match.CreatedAt,
		match.UpdatedAt,
		match.ActivatedAt,
		match.FinishedAt,
	).Scan(&match.ID)
	if err != nil {
		return fmt.Errorf("failed to create match: %w", translateError(err))
	}
	return nil
}

func (r *MatchRepository) getOne(ctx context.Context, query string, id int64) (*models.Match, error) {
	match, err := scanMatch(r.q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translateError(err)
	}
	return match, nil
}

// GetByID retrieves a match by ID
func (r *MatchRepository) GetByID(ctx context.Context, id int64) (*models.Match, error) {
	match, err := r.getOne(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get match %d: %w", id, err)
	}
	return match, nil
}

// GetByIDForUpdate retrieves a match and locks its row
func (r *MatchRepository) GetByIDForUpdate(ctx context.Context, id int64) (*models.Match, error) {
	match, err := r.getOne(ctx, `SELECT `+matchColumns+` FROM matches WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to lock match %d: %w", id, err)
	}
	return match, nil
}

// Update persists the mutable fields of a match. Stake and creator never change.
func (r *MatchRepository) Update(ctx context.Context, match *models.Match) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE matches
		SET player2_id = $2,
			status = $3,
			winner_id = $4,
			updated_at = $5,
			activated_at = $6,
			finished_at = $7
		WHERE id = $1`,
		match.ID,
		match.Player2ID,
		string(match.Status),
		match.WinnerID,
		match.UpdatedAt,
		match.ActivatedAt,
		match.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update match %d: %w", match.ID, translateError(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("match %d not found", match.ID)
	}
	return nil
}

// ListByStatus returns the newest matches in a status
func (r *MatchRepository) ListByStatus(ctx context.Context, status models.MatchStatus, limit int) ([]*models.Match, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+matchColumns+`
		FROM matches
		WHERE status = $1
		ORDER BY id DESC
		LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s matches: %w", status, translateError(err))
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, match)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate matches: %w", translateError(err))
	}
	return matches, nil
}
