package repositories

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Dosada05/tournament-engine/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockBattleRepository(t *testing.T) (*postgresBattleRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &postgresBattleRepository{db: db}, mock
}

func TestHandleBattleError(t *testing.T) {
	r := &postgresBattleRepository{}
	other := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "duplicate first slot",
			err:  &pq.Error{Code: "23505", Constraint: "tournament_battles_round_player1_key"},
			want: ErrRoundAlreadyExists,
		},
		{
			name: "duplicate second slot",
			err:  &pq.Error{Code: "23505", Constraint: "tournament_battles_round_player2_key"},
			want: ErrRoundAlreadyExists,
		},
		{
			name: "unknown tournament",
			err:  &pq.Error{Code: "23503", Constraint: "tournament_battles_tournament_id_fkey"},
			want: ErrBattleTournamentInvalid,
		},
		{
			name: "bad status value",
			err:  &pq.Error{Code: "23514", Constraint: "tournament_battles_status_check"},
			want: ErrBattleInvalidStatus,
		},
		{
			name: "unrelated unique constraint",
			err:  &pq.Error{Code: "23505", Constraint: "tournament_battles_pkey"},
		},
		{
			name: "non postgres error",
			err:  other,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.handleBattleError(tt.err, "create")
			if tt.want != nil {
				assert.Equal(t, tt.want, got)
				return
			}
			assert.ErrorIs(t, got, tt.err)
			assert.Contains(t, got.Error(), "failed to create battle")
		})
	}
}

func TestCheckAffectedRows(t *testing.T) {
	tests := []struct {
		name   string
		result sql.Result
		want   error
	}{
		{name: "row updated", result: sqlmock.NewResult(0, 1)},
		{name: "no rows", result: sqlmock.NewResult(0, 0), want: ErrBattleStatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, checkAffectedRows(tt.result, ErrBattleStatusConflict))
		})
	}

	t.Run("driver cannot report rows", func(t *testing.T) {
		err := checkAffectedRows(sqlmock.NewErrorResult(errors.New("unsupported")), ErrBattleStatusConflict)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrBattleStatusConflict)
	})
}

func TestBattleRepository_UpdateResultGuardsOnStatus(t *testing.T) {
	winner := 4
	battle := &models.Battle{ID: 11, Status: models.BattleCompleted, WinnerID: &winner}
	query := regexp.QuoteMeta(`WHERE id = $5 AND status = $6`)

	t.Run("status still matches", func(t *testing.T) {
		r, mock := newMockBattleRepository(t)
		mock.ExpectExec(query).
			WithArgs(models.BattleCompleted, &winner, nil, nil, 11, models.BattleInProgress).
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, r.UpdateResult(context.Background(), nil, battle, models.BattleInProgress))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("status changed underneath", func(t *testing.T) {
		r, mock := newMockBattleRepository(t)
		mock.ExpectExec(query).WillReturnResult(sqlmock.NewResult(0, 0))

		err := r.UpdateResult(context.Background(), nil, battle, models.BattleInProgress)
		assert.ErrorIs(t, err, ErrBattleStatusConflict)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestBattleRepository_CreateBatchRejectsDuplicateRound(t *testing.T) {
	r, mock := newMockBattleRepository(t)
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO tournament_battles`)).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "tournament_battles_round_player1_key"})

	err := r.CreateBatch(context.Background(), nil, []*models.Battle{
		{TournamentID: 2, Round: 1, Player1ID: 1, Status: models.BattleScheduled},
	})
	assert.ErrorIs(t, err, ErrRoundAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
