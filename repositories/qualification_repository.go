package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dosada05/tournament-engine/models"
)

type QualificationRepository interface {
	ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.QualificationAttempt, error)
}

type postgresQualificationRepository struct {
	db *sql.DB
}

func NewPostgresQualificationRepository(db *sql.DB) QualificationRepository {
	return &postgresQualificationRepository{db: db}
}

func (r *postgresQualificationRepository) ListByTournament(ctx context.Context, exec SQLExecutor, tournamentID int) ([]models.QualificationAttempt, error) {
	query := `
		SELECT id, tournament_id, player_id, score, duration_seconds, created_at
		FROM tournament_qualification_attempts
		WHERE tournament_id = $1
		ORDER BY id ASC`

	rows, err := executor(r.db, exec).QueryContext(ctx, query, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query qualification attempts for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	attempts := make([]models.QualificationAttempt, 0)
	for rows.Next() {
		var a models.QualificationAttempt
		if scanErr := rows.Scan(&a.ID, &a.TournamentID, &a.PlayerID, &a.Score, &a.DurationSeconds, &a.CreatedAt); scanErr != nil {
			return nil, fmt.Errorf("failed to scan qualification attempt row: %w", scanErr)
		}
		attempts = append(attempts, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during qualification attempt rows iteration: %w", err)
	}
	return attempts, nil
}
