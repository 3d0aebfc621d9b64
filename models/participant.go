package models

import "time"

type ParticipantStatus string

const (
	ParticipantPending  ParticipantStatus = "pending"
	ParticipantApproved ParticipantStatus = "approved"
	ParticipantRejected ParticipantStatus = "rejected"
)

// TournamentParticipant links a player to a tournament. Only approved
// participants take part in qualification ranking.
type TournamentParticipant struct {
	ID           int               `json:"id"`
	TournamentID int               `json:"tournament_id"`
	PlayerID     int               `json:"player_id"`
	Status       ParticipantStatus `json:"status"`
	CreatedAt    time.Time         `json:"created_at"`
}
