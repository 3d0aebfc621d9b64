package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/tournament-engine/brackets"
	"github.com/Dosada05/tournament-engine/events"
	"github.com/Dosada05/tournament-engine/models"
	"github.com/Dosada05/tournament-engine/repositories"
	"golang.org/x/sync/errgroup"
)

// RoundView is one bracket round in display order.
type RoundView struct {
	Round    int              `json:"round"`
	Complete bool             `json:"complete"`
	Battles  []*models.Battle `json:"battles"`
}

type BracketView struct {
	Tournament *models.Tournament `json:"tournament"`
	Rounds     []RoundView        `json:"rounds"`
}

type TournamentService interface {
	// FinalizeTournament completes the tournament with winnerID. Calling it on a
	// completed tournament, or with a nil winner, changes nothing.
	FinalizeTournament(ctx context.Context, tournamentID int, winnerID *int) error
	// CreateBattlesForRound pairs playerIDs in order for round and stores the battles.
	CreateBattlesForRound(ctx context.Context, tournamentID int, playerIDs []int, round int, scheduledAt time.Time) ([]*models.Battle, error)
	GetBracket(ctx context.Context, tournamentID int) (*BracketView, error)
	// BracketSnapshot returns GetBracket's view for archiving.
	BracketSnapshot(ctx context.Context, tournamentID int) (any, error)
}

type tournamentService struct {
	deps Deps
}

func NewTournamentService(deps Deps) TournamentService {
	return &tournamentService{deps: deps.withDefaults()}
}

func (s *tournamentService) FinalizeTournament(ctx context.Context, tournamentID int, winnerID *int) error {
	log := s.deps.Logger.With(slog.Int("tournament_id", tournamentID))
	if winnerID == nil {
		log.Warn("finalize requested without a winner, ignoring")
		return nil
	}

	release := s.deps.Locks.Lock(tournamentID)
	defer release()

	var (
		changed   bool
		lastRound int
	)
	err := s.deps.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.deps.Tournaments.LockByID(ctx, exec, tournamentID)
		if err != nil {
			return mapRepositoryError(err, "failed to lock tournament %d", tournamentID)
		}
		if !t.Status.CanTransitionTo(models.StatusCompleted) {
			return nil
		}
		if lastRound, err = s.deps.Battles.MaxRound(ctx, exec, tournamentID); err != nil {
			return err
		}
		if err := s.deps.Tournaments.Complete(ctx, exec, tournamentID, *winnerID); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return err
	}
	if !changed {
		log.Debug("tournament already completed, finalize is a no-op")
		return nil
	}

	s.deps.Metrics.TournamentFinalized("manual")
	log.Info("tournament finalized", slog.Int("winner_id", *winnerID))
	winner := *winnerID
	s.deps.Emitter.Emit(ctx, events.RoundClosed{
		TournamentID:       tournamentID,
		Round:              lastRound,
		Winners:            []int{winner},
		TournamentComplete: true,
		TournamentWinner:   &winner,
	})
	return nil
}

func (s *tournamentService) CreateBattlesForRound(ctx context.Context, tournamentID int, playerIDs []int, round int, scheduledAt time.Time) ([]*models.Battle, error) {
	now := s.deps.Clock.Now()
	created, err := brackets.PairRound(brackets.PairingParams{
		TournamentID: tournamentID,
		Round:        round,
		PlayerIDs:    playerIDs,
		ScheduledAt:  scheduledAt,
		Now:          now,
	})
	if err != nil {
		return nil, mapPairingError(err)
	}

	release := s.deps.Locks.Lock(tournamentID)
	defer release()

	err = s.deps.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		t, err := s.deps.Tournaments.LockByID(ctx, exec, tournamentID)
		if err != nil {
			return mapRepositoryError(err, "failed to lock tournament %d", tournamentID)
		}
		if t.Status == models.StatusCompleted {
			return ErrTournamentFinished
		}

		exists, err := s.deps.Battles.RoundExists(ctx, exec, tournamentID, round)
		if err != nil {
			return err
		}
		if exists {
			return ErrRoundAlreadyExists
		}

		// A manually seeded bracket starts the tournament.
		if t.Status == models.StatusUpcoming {
			if err := s.deps.Tournaments.UpdateStatus(ctx, exec, tournamentID, models.StatusActive); err != nil {
				return err
			}
		}
		if err := s.deps.Battles.CreateBatch(ctx, exec, created); err != nil {
			return mapRepositoryError(err, "failed to create round %d", round)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.deps.Metrics.RoundCreated()
	s.deps.Logger.Info("round created manually",
		slog.Int("tournament_id", tournamentID),
		slog.Int("round", round),
		slog.Int("battles", len(created)),
	)
	s.deps.Emitter.Emit(ctx, events.RoundCreated{
		TournamentID: tournamentID,
		Round:        round,
		Battles:      created,
	})
	return created, nil
}

func (s *tournamentService) GetBracket(ctx context.Context, tournamentID int) (*BracketView, error) {
	var (
		tournament *models.Tournament
		battles    []*models.Battle
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := s.deps.Tournaments.GetByID(gctx, nil, tournamentID)
		if err != nil {
			return mapRepositoryError(err, "failed to load tournament %d", tournamentID)
		}
		tournament = t
		return nil
	})
	g.Go(func() error {
		list, err := s.deps.Battles.ListByTournament(gctx, nil, tournamentID)
		if err != nil {
			return fmt.Errorf("failed to load battles of tournament %d: %w", tournamentID, err)
		}
		battles = list
		return nil
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, err
	}

	return &BracketView{Tournament: tournament, Rounds: groupRounds(battles)}, nil
}

func (s *tournamentService) BracketSnapshot(ctx context.Context, tournamentID int) (any, error) {
	return s.GetBracket(ctx, tournamentID)
}

// groupRounds expects battles ordered by round.
func groupRounds(battles []*models.Battle) []RoundView {
	rounds := make([]RoundView, 0)
	for _, b := range battles {
		if len(rounds) == 0 || rounds[len(rounds)-1].Round != b.Round {
			rounds = append(rounds, RoundView{Round: b.Round, Complete: true})
		}
		current := &rounds[len(rounds)-1]
		current.Battles = append(current.Battles, b)
		if !b.IsDecided() {
			current.Complete = false
		}
	}
	return rounds
}
