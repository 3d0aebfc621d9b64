package models

import "time"

type BattleStatus string

const (
	BattleScheduled  BattleStatus = "scheduled"
	BattleInProgress BattleStatus = "in_progress"
	BattleCompleted  BattleStatus = "completed"
	BattleBye        BattleStatus = "bye"
)

// Battle is one pairing of a bracket round. A nil Player2ID means the player
// has no opponent: the row is a bye and Player1ID advances automatically.
type Battle struct {
	ID           int          `json:"id"`
	TournamentID int          `json:"tournament_id"`
	Round        int          `json:"round"`
	Player1ID    int          `json:"player1_id"`
	Player2ID    *int         `json:"player2_id"`
	WinnerID     *int         `json:"winner_id,omitempty"`
	Status       BattleStatus `json:"status"`
	Score        *string      `json:"score,omitempty"`
	ScheduledAt  *time.Time   `json:"scheduled_at,omitempty"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
}

func (b *Battle) IsBye() bool {
	return b.Player2ID == nil
}

// IsDecided reports whether the battle reached a terminal status with a winner recorded.
func (b *Battle) IsDecided() bool {
	return b.Status.IsTerminal() && b.WinnerID != nil
}

// Players returns the player IDs taking part in the battle.
func (b *Battle) Players() []int {
	if b.Player2ID == nil {
		return []int{b.Player1ID}
	}
	return []int{b.Player1ID, *b.Player2ID}
}

// HasPlayer reports whether playerID is one of the battle's players.
func (b *Battle) HasPlayer(playerID int) bool {
	for _, id := range b.Players() {
		if id == playerID {
			return true
		}
	}
	return false
}

func (s BattleStatus) IsTerminal() bool {
	return s == BattleCompleted || s == BattleBye
}

func (s BattleStatus) IsValid() bool {
	switch s {
	case BattleScheduled, BattleInProgress, BattleCompleted, BattleBye:
		return true
	}
	return false
}

// CanTransitionTo encodes the battle lifecycle. Byes are assigned at creation
// and never move; a completed battle is final.
func (s BattleStatus) CanTransitionTo(next BattleStatus) bool {
	switch s {
	case BattleScheduled:
		return next == BattleInProgress || next == BattleCompleted
	case BattleInProgress:
		return next == BattleCompleted
	default:
		return false
	}
}
