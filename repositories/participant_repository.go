package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dosada05/tournament-engine/models"
)

type ParticipantRepository interface {
	ListApprovedPlayerIDs(ctx context.Context, exec SQLExecutor, tournamentID int) ([]int, error)
}

type postgresParticipantRepository struct {
	db *sql.DB
}

func NewPostgresParticipantRepository(db *sql.DB) ParticipantRepository {
	return &postgresParticipantRepository{db: db}
}

func (r *postgresParticipantRepository) ListApprovedPlayerIDs(ctx context.Context, exec SQLExecutor, tournamentID int) ([]int, error) {
	query := `
		SELECT player_id
		FROM tournament_participants
		WHERE tournament_id = $1 AND status = $2
		ORDER BY id ASC`

	rows, err := executor(r.db, exec).QueryContext(ctx, query, tournamentID, models.ParticipantApproved)
	if err != nil {
		return nil, fmt.Errorf("failed to query approved participants for tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	ids := make([]int, 0)
	for rows.Next() {
		var id int
		if scanErr := rows.Scan(&id); scanErr != nil {
			return nil, fmt.Errorf("failed to scan participant row: %w", scanErr)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error during participant rows iteration: %w", err)
	}
	return ids, nil
}
