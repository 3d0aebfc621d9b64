package events

import (
	"encoding/json"
	"time"

	"github.com/Dosada05/tournament-engine/models"
)

type Type string

const (
	TypeRoundCreated Type = "round_created"
	TypeRoundClosed  Type = "round_closed"
)

// Event is a bracket notification published after the change is committed.
type Event interface {
	Type() Type
	Tournament() int
}

type RoundCreated struct {
	TournamentID int              `json:"tournament_id"`
	Round        int              `json:"round"`
	Battles      []*models.Battle `json:"battles"`
}

func (e RoundCreated) Type() Type      { return TypeRoundCreated }
func (e RoundCreated) Tournament() int { return e.TournamentID }

// RoundClosed reports the winners of a finished round. NextRound is nil and
// TournamentComplete is set when the round produced the champion.
type RoundClosed struct {
	TournamentID       int   `json:"tournament_id"`
	Round              int   `json:"round"`
	Winners            []int `json:"winners"`
	NextRound          *int  `json:"next_round"`
	TournamentComplete bool  `json:"tournament_complete"`
	TournamentWinner   *int  `json:"tournament_winner"`
}

func (e RoundClosed) Type() Type      { return TypeRoundClosed }
func (e RoundClosed) Tournament() int { return e.TournamentID }

// Envelope is the wire form shared by every publisher.
type Envelope struct {
	Type         Type            `json:"type"`
	TournamentID int             `json:"tournament_id"`
	OccurredAt   time.Time       `json:"occurred_at"`
	Payload      json.RawMessage `json:"payload"`
	event        Event
}

func NewEnvelope(e Event, now time.Time) (Envelope, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Type:         e.Type(),
		TournamentID: e.Tournament(),
		OccurredAt:   now,
		Payload:      payload,
		event:        e,
	}, nil
}

// Event returns the typed event the envelope was built from, or nil for an
// envelope decoded from the wire.
func (e Envelope) Event() Event {
	return e.event
}
