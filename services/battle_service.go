package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Dosada05/tournament-engine/models"
)

// BattleUpdate is a result report for a single battle.
type BattleUpdate struct {
	Status   models.BattleStatus `json:"status"`
	WinnerID *int                `json:"winner_id"`
	Score    *string             `json:"score"`
}

// BattleTransition carries a battle before and after a persisted update.
type BattleTransition struct {
	Previous models.Battle
	Current  models.Battle
}

// BattleObserver is notified synchronously after every persisted battle update.
type BattleObserver interface {
	OnTransition(ctx context.Context, tr BattleTransition)
}

type BattleObserverFunc func(ctx context.Context, tr BattleTransition)

func (f BattleObserverFunc) OnTransition(ctx context.Context, tr BattleTransition) { f(ctx, tr) }

type BattleService interface {
	ReportResult(ctx context.Context, battleID int, update BattleUpdate) (*models.Battle, error)
	Subscribe(o BattleObserver)
}

type battleService struct {
	deps Deps

	mu        sync.RWMutex
	observers []BattleObserver
}

func NewBattleService(deps Deps) BattleService {
	return &battleService{deps: deps.withDefaults()}
}

func (s *battleService) Subscribe(o BattleObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// ReportResult applies update to the battle if the lifecycle allows it:
// scheduled -> in_progress -> completed, or scheduled -> completed directly.
// Completing a battle requires a winner who plays in it. A report that keeps
// a non-terminal status only updates the score.
func (s *battleService) ReportResult(ctx context.Context, battleID int, update BattleUpdate) (*models.Battle, error) {
	if !update.Status.IsValid() || update.Status == models.BattleBye {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBattleStatus, update.Status)
	}

	battle, err := s.deps.Battles.GetByID(ctx, nil, battleID)
	if err != nil {
		return nil, mapRepositoryError(err, "failed to load battle %d", battleID)
	}
	previous := *battle

	if err := validateBattleUpdate(battle, update); err != nil {
		return nil, err
	}

	next := *battle
	next.Status = update.Status
	if update.Score != nil {
		next.Score = update.Score
	}
	if update.Status == models.BattleCompleted {
		winner := *update.WinnerID
		completedAt := s.deps.Clock.Now()
		next.WinnerID = &winner
		next.CompletedAt = &completedAt
	}

	if err := s.deps.Battles.UpdateResult(ctx, nil, &next, previous.Status); err != nil {
		return nil, mapRepositoryError(err, "failed to update battle %d", battleID)
	}

	if previous.Status != next.Status {
		s.deps.Metrics.BattleTransition(string(next.Status))
		s.deps.Logger.Info("battle status changed",
			slog.Int("battle_id", next.ID),
			slog.Int("tournament_id", next.TournamentID),
			slog.Int("round", next.Round),
			slog.String("from", string(previous.Status)),
			slog.String("to", string(next.Status)),
		)
	}

	s.notify(ctx, BattleTransition{Previous: previous, Current: next})
	return &next, nil
}

func validateBattleUpdate(battle *models.Battle, update BattleUpdate) error {
	if battle.Status != update.Status && !battle.Status.CanTransitionTo(update.Status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidBattleTransition, battle.Status, update.Status)
	}
	if battle.Status.IsTerminal() {
		return fmt.Errorf("%w: battle %d is already %s", ErrInvalidBattleTransition, battle.ID, battle.Status)
	}

	if update.Status != models.BattleCompleted {
		if update.WinnerID != nil {
			return ErrWinnerOnUndecidedBattle
		}
		return nil
	}
	if update.WinnerID == nil {
		return ErrWinnerRequired
	}
	if !battle.HasPlayer(*update.WinnerID) {
		return fmt.Errorf("%w: player %d", ErrWinnerNotInBattle, *update.WinnerID)
	}
	return nil
}

func (s *battleService) notify(ctx context.Context, tr BattleTransition) {
	s.mu.RLock()
	observers := make([]BattleObserver, len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()

	for _, o := range observers {
		o.OnTransition(ctx, tr)
	}
}

// IsValidationError reports whether err was caused by a rejected battle update
// rather than an infrastructure failure.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidBattleStatus) ||
		errors.Is(err, ErrInvalidBattleTransition) ||
		errors.Is(err, ErrWinnerRequired) ||
		errors.Is(err, ErrWinnerNotInBattle) ||
		errors.Is(err, ErrWinnerOnUndecidedBattle) ||
		errors.Is(err, ErrInvalidPairing)
}
