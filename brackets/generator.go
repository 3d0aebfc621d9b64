package brackets

import (
	"errors"
	"time"
)

var (
	ErrNoPlayers       = errors.New("cannot pair a round with zero players")
	ErrInvalidRound    = errors.New("round number must be positive")
	ErrDuplicatePlayer = errors.New("player appears more than once in the round")
	ErrInvalidPlayer   = errors.New("player id must be positive")
)

// PairingParams describes one round to generate.
type PairingParams struct {
	TournamentID int
	Round        int
	// PlayerIDs are paired in order: element 2i plays element 2i+1.
	PlayerIDs []int
	// ScheduledAt is stamped on every real battle of the round.
	ScheduledAt time.Time
	// Now is the creation time; byes are completed at this instant.
	Now time.Time
}
