package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/tournament-engine/models"
	"github.com/lib/pq"
)

var (
	ErrTournamentNotFound      = errors.New("tournament not found")
	ErrTournamentInvalidStatus = errors.New("invalid tournament status value")
)

type TournamentRepository interface {
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	// LockByID loads the tournament and holds a row lock until exec's transaction ends.
	LockByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error)
	ListDueForQualification(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Tournament, error)
	UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error
	Complete(ctx context.Context, exec SQLExecutor, id int, winnerID int) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

const tournamentColumns = `
	id, name, status, end_date, bracket_slots, days_between_rounds, rules, winner_id, created_at, updated_at`

func scanTournament(row rowScanner) (*models.Tournament, error) {
	t := &models.Tournament{}
	err := row.Scan(
		&t.ID, &t.Name, &t.Status, &t.EndDate, &t.BracketSlots, &t.DaysBetweenRounds,
		&t.RulesJSON, &t.WinnerID, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *postgresTournamentRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	return r.getOne(ctx, exec, query, id)
}

func (r *postgresTournamentRepository) LockByID(ctx context.Context, exec SQLExecutor, id int) (*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + ` FROM tournaments WHERE id = $1 FOR UPDATE`
	return r.getOne(ctx, exec, query, id)
}

func (r *postgresTournamentRepository) getOne(ctx context.Context, exec SQLExecutor, query string, id int) (*models.Tournament, error) {
	t, err := scanTournament(executor(r.db, exec).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to load tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) ListDueForQualification(ctx context.Context, exec SQLExecutor, now time.Time) ([]*models.Tournament, error) {
	query := `SELECT` + tournamentColumns + `
		FROM tournaments
		WHERE status = $1 AND end_date IS NOT NULL AND end_date <= $2
		ORDER BY end_date ASC, id ASC`

	rows, err := executor(r.db, exec).QueryContext(ctx, query, models.StatusUpcoming, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query tournaments due for qualification: %w", err)
	}
	defer rows.Close()

	var tournaments []*models.Tournament
	for rows.Next() {
		t, scanErr := scanTournament(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan tournament due for qualification: %w", scanErr)
		}
		tournaments = append(tournaments, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during tournament rows iteration: %w", err)
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) UpdateStatus(ctx context.Context, exec SQLExecutor, id int, status models.TournamentStatus) error {
	query := `UPDATE tournaments SET status = $1, updated_at = NOW() WHERE id = $2`
	result, err := executor(r.db, exec).ExecContext(ctx, query, status, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

// Complete sets status and winner in a single statement so the two never disagree.
func (r *postgresTournamentRepository) Complete(ctx context.Context, exec SQLExecutor, id int, winnerID int) error {
	query := `UPDATE tournaments SET status = $1, winner_id = $2, updated_at = NOW() WHERE id = $3`
	result, err := executor(r.db, exec).ExecContext(ctx, query, models.StatusCompleted, winnerID, id)
	if err != nil {
		return r.handleTournamentError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) handleTournamentError(err error) error {
	if err == nil {
		return nil
	}
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23514", "22P02": // check_violation, invalid_text_representation
			if pqErr.Constraint == "tournaments_status_check" || pqErr.Constraint == "" {
				return fmt.Errorf("%w: %s", ErrTournamentInvalidStatus, pqErr.Message)
			}
		}
	}
	return fmt.Errorf("tournament query failed: %w", err)
}
