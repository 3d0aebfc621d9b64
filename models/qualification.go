package models

import "time"

// QualificationAttempt is an immutable qualification submission. ID doubles as
// the monotonic submission identifier: a higher ID is a later submission.
type QualificationAttempt struct {
	ID              int       `json:"id"`
	TournamentID    int       `json:"tournament_id"`
	PlayerID        int       `json:"player_id"`
	Score           float64   `json:"score"`
	DurationSeconds *int      `json:"duration_seconds,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}
