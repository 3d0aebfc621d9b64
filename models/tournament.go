package models

import "time"

// TournamentStatus represents the tournament lifecycle stored in the tournaments.status column.
type TournamentStatus string

const (
	StatusUpcoming  TournamentStatus = "upcoming"
	StatusActive    TournamentStatus = "active"
	StatusCompleted TournamentStatus = "completed"
)

// DefaultBracketSlots is the seed count used when a tournament does not configure one.
const DefaultBracketSlots = 8

// Tournament is a single-elimination tournament with a qualification phase.
type Tournament struct {
	ID                int              `json:"id" db:"id"`
	Name              string           `json:"name" db:"name"`
	Status            TournamentStatus `json:"status" db:"status"`
	EndDate           *time.Time       `json:"end_date,omitempty" db:"end_date"`
	BracketSlots      int              `json:"bracket_slots" db:"bracket_slots"`
	DaysBetweenRounds *int             `json:"days_between_rounds,omitempty" db:"days_between_rounds"`
	RulesJSON         *string          `json:"-" db:"rules"`
	WinnerID          *int             `json:"winner_id,omitempty" db:"winner_id"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at" db:"updated_at"`
}

// Slots returns the configured bracket size, falling back to DefaultBracketSlots.
func (t *Tournament) Slots() int {
	if t.BracketSlots <= 0 {
		return DefaultBracketSlots
	}
	return t.BracketSlots
}

// QualificationClosed reports whether the qualification deadline has passed at now.
// A tournament without an end date never closes on its own.
func (t *Tournament) QualificationClosed(now time.Time) bool {
	if t.EndDate == nil {
		return false
	}
	return !now.Before(*t.EndDate)
}

// CanTransitionTo reports whether moving from the current status to next is allowed.
func (s TournamentStatus) CanTransitionTo(next TournamentStatus) bool {
	switch s {
	case StatusUpcoming:
		return next == StatusActive || next == StatusCompleted
	case StatusActive:
		return next == StatusCompleted
	default:
		return false
	}
}
