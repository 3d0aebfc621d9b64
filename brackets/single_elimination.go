package brackets

import (
	"fmt"

	"github.com/Dosada05/tournament-engine/models"
)

// PairRound builds the battles of one single-elimination round. Players are
// paired in input order; with an odd count the last player receives a bye,
// stored as an already completed battle without an opponent.
func PairRound(params PairingParams) ([]*models.Battle, error) {
	n := len(params.PlayerIDs)
	if n == 0 {
		return nil, ErrNoPlayers
	}
	if params.Round <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidRound, params.Round)
	}

	seen := make(map[int]struct{}, n)
	for _, id := range params.PlayerIDs {
		if id <= 0 {
			return nil, fmt.Errorf("%w: got %d", ErrInvalidPlayer, id)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: player %d in round %d", ErrDuplicatePlayer, id, params.Round)
		}
		seen[id] = struct{}{}
	}

	scheduledAt := params.ScheduledAt
	completedAt := params.Now
	battles := make([]*models.Battle, 0, (n+1)/2)

	for i := 0; i+1 < n; i += 2 {
		p2 := params.PlayerIDs[i+1]
		battles = append(battles, &models.Battle{
			TournamentID: params.TournamentID,
			Round:        params.Round,
			Player1ID:    params.PlayerIDs[i],
			Player2ID:    &p2,
			Status:       models.BattleScheduled,
			ScheduledAt:  &scheduledAt,
		})
	}

	if n%2 != 0 {
		byePlayer := params.PlayerIDs[n-1]
		battles = append(battles, &models.Battle{
			TournamentID: params.TournamentID,
			Round:        params.Round,
			Player1ID:    byePlayer,
			Player2ID:    nil,
			WinnerID:     &byePlayer,
			Status:       models.BattleBye,
			CompletedAt:  &completedAt,
		})
	}

	return battles, nil
}

// Byes returns the players advancing without an opponent in battles.
func Byes(battles []*models.Battle) []int {
	var ids []int
	for _, b := range battles {
		if b.IsBye() {
			ids = append(ids, b.Player1ID)
		}
	}
	return ids
}
