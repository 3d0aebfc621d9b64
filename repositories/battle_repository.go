package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-engine/models"
	"github.com/lib/pq"
)

var (
	ErrBattleNotFound          = errors.New("battle not found")
	ErrRoundAlreadyExists      = errors.New("battles for this round already exist")
	ErrBattleTournamentInvalid = errors.New("battle tournament invalid")
	ErrBattleInvalidStatus     = errors.New("invalid battle status value")
	ErrBattleStatusConflict    = errors.New("battle status changed concurrently")
)

type BattleRepository interface {
	CreateBatch(ctx context.Context, exec SQLExecutor, battles []*models.Battle) error
	GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Battle, error)
	// UpdateResult writes status, winner, score and completion time only if the
	// stored status still equals expected.
	UpdateResult(ctx context.Context, exec SQLExecutor, battle *models.Battle, expected models.BattleStatus) error
	// MaxRound returns 0 when the tournament has no battles.
	MaxRound(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error)
	RoundExists(ctx context.Context, exec SQLExecutor, tournamentID, round int) (bool, error)
	ListByRound(ctx context.Context, exec SQLExecutor, tournamentID, round int) ([]*models.Battle, error)
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Battle, error)
}

type postgresBattleRepository struct {
	db *sql.DB
}

func NewPostgresBattleRepository(db *sql.DB) BattleRepository {
	return &postgresBattleRepository{db: db}
}

const battleColumns = `
	id, tournament_id, round, player1_id, player2_id, winner_id, status, score,
	scheduled_at, completed_at, created_at`

func scanBattle(row rowScanner) (*models.Battle, error) {
	b := &models.Battle{}
	err := row.Scan(
		&b.ID, &b.TournamentID, &b.Round, &b.Player1ID, &b.Player2ID, &b.WinnerID,
		&b.Status, &b.Score, &b.ScheduledAt, &b.CompletedAt, &b.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// CreateBatch inserts battles in slice order. Pass a transaction executor to keep a
// round all-or-nothing; the unique slot index rejects a second copy of the same round.
func (r *postgresBattleRepository) CreateBatch(ctx context.Context, exec SQLExecutor, battles []*models.Battle) error {
	query := `
		INSERT INTO tournament_battles
			(tournament_id, round, player1_id, player2_id, winner_id, status, score, scheduled_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	e := executor(r.db, exec)
	for _, b := range battles {
		err := e.QueryRowContext(ctx, query,
			b.TournamentID, b.Round, b.Player1ID, b.Player2ID, b.WinnerID,
			b.Status, b.Score, b.ScheduledAt, b.CompletedAt,
		).Scan(&b.ID, &b.CreatedAt)
		if err != nil {
			return r.handleBattleError(err, "create")
		}
	}
	return nil
}

func (r *postgresBattleRepository) GetByID(ctx context.Context, exec SQLExecutor, id int) (*models.Battle, error) {
	query := `SELECT` + battleColumns + ` FROM tournament_battles WHERE id = $1`
	b, err := scanBattle(executor(r.db, exec).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBattleNotFound
		}
		return nil, fmt.Errorf("failed to get battle by id %d: %w", id, err)
	}
	return b, nil
}

func (r *postgresBattleRepository) UpdateResult(ctx context.Context, exec SQLExecutor, battle *models.Battle, expected models.BattleStatus) error {
	query := `
		UPDATE tournament_battles
		SET status = $1, winner_id = $2, score = $3, completed_at = $4
		WHERE id = $5 AND status = $6`

	result, err := executor(r.db, exec).ExecContext(ctx, query,
		battle.Status, battle.WinnerID, battle.Score, battle.CompletedAt, battle.ID, expected,
	)
	if err != nil {
		return r.handleBattleError(err, "update")
	}
	return checkAffectedRows(result, ErrBattleStatusConflict)
}

func (r *postgresBattleRepository) MaxRound(ctx context.Context, exec SQLExecutor, tournamentID int) (int, error) {
	query := `SELECT COALESCE(MAX(round), 0) FROM tournament_battles WHERE tournament_id = $1`
	var round int
	if err := executor(r.db, exec).QueryRowContext(ctx, query, tournamentID).Scan(&round); err != nil {
		return 0, fmt.Errorf("failed to get max round for tournament %d: %w", tournamentID, err)
	}
	return round, nil
}

func (r *postgresBattleRepository) RoundExists(ctx context.Context, exec SQLExecutor, tournamentID, round int) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM tournament_battles WHERE tournament_id = $1 AND round = $2)`
	var exists bool
	if err := executor(r.db, exec).QueryRowContext(ctx, query, tournamentID, round).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check round %d of tournament %d: %w", round, tournamentID, err)
	}
	return exists, nil
}

func (r *postgresBattleRepository) ListByRound(ctx context.Context, exec SQLExecutor, tournamentID, round int) ([]*models.Battle, error) {
	query := `SELECT` + battleColumns + `
		FROM tournament_battles
		WHERE tournament_id = $1 AND round = $2
		ORDER BY id ASC`
	return r.list(ctx, exec, query, tournamentID, round)
}

func (r *postgresBattleRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]*models.Battle, error) {
	query := `SELECT` + battleColumns + `
		FROM tournament_battles
		WHERE tournament_id = $1
		ORDER BY round ASC, id ASC`
	return r.list(ctx, exec, query, tournamentID)
}

func (r *postgresBattleRepository) list(ctx context.Context, exec SQLExecutor, query string, args ...interface{}) ([]*models.Battle, error) {
	rows, err := executor(r.db, exec).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list battles: %w", err)
	}
	defer rows.Close()

	battles := make([]*models.Battle, 0)
	for rows.Next() {
		b, scanErr := scanBattle(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan battle row: %w", scanErr)
		}
		battles = append(battles, b)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during battle rows iteration: %w", err)
	}
	return battles, nil
}

func (r *postgresBattleRepository) handleBattleError(err error, op string) error {
	if pqErr, ok := err.(*pq.Error); ok {
		switch pqErr.Code {
		case "23505": // unique_violation
			switch pqErr.Constraint {
			case "tournament_battles_round_player1_key", "tournament_battles_round_player2_key":
				return ErrRoundAlreadyExists
			}
		case "23503": // foreign_key_violation
			if pqErr.Constraint == "tournament_battles_tournament_id_fkey" {
				return ErrBattleTournamentInvalid
			}
		case "23514": // check_violation
			if pqErr.Constraint == "tournament_battles_status_check" {
				return ErrBattleInvalidStatus
			}
		}
	}
	return fmt.Errorf("failed to %s battle: %w", op, err)
}
