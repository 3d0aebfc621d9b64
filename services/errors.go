package services

import (
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-engine/brackets"
	"github.com/Dosada05/tournament-engine/repositories"
)

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrBattleNotFound     = errors.New("battle not found")

	ErrInvalidBattleStatus     = errors.New("invalid battle status")
	ErrInvalidBattleTransition = errors.New("invalid battle status transition")
	ErrWinnerRequired          = errors.New("a completed battle requires a winner")
	ErrWinnerNotInBattle       = errors.New("winner is not a player of this battle")
	ErrWinnerOnUndecidedBattle = errors.New("winner can only be set when completing a battle")

	ErrRoundAlreadyExists = errors.New("battles for this round already exist")
	ErrInvalidPairing     = errors.New("invalid round pairing")
	ErrTournamentFinished = errors.New("tournament is already completed")

	// ErrInvariantViolation marks stored bracket data that contradicts the
	// engine's invariants and needs manual inspection.
	ErrInvariantViolation = errors.New("bracket invariant violation")
)

// mapRepositoryError translates storage sentinels into service sentinels and
// wraps everything else with context.
func mapRepositoryError(err error, format string, args ...any) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repositories.ErrTournamentNotFound):
		return ErrTournamentNotFound
	case errors.Is(err, repositories.ErrBattleNotFound):
		return ErrBattleNotFound
	case errors.Is(err, repositories.ErrRoundAlreadyExists):
		return ErrRoundAlreadyExists
	case errors.Is(err, repositories.ErrBattleStatusConflict):
		return fmt.Errorf("%w: %v", ErrInvalidBattleTransition, err)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func mapPairingError(err error) error {
	switch {
	case errors.Is(err, brackets.ErrNoPlayers),
		errors.Is(err, brackets.ErrInvalidRound),
		errors.Is(err, brackets.ErrDuplicatePlayer),
		errors.Is(err, brackets.ErrInvalidPlayer):
		return fmt.Errorf("%w: %v", ErrInvalidPairing, err)
	}
	return err
}
