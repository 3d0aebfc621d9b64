package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Dosada05/tournament-engine/brackets"
	"github.com/Dosada05/tournament-engine/events"
	"github.com/Dosada05/tournament-engine/models"
	"github.com/Dosada05/tournament-engine/queue"
	"github.com/Dosada05/tournament-engine/repositories"
)

type AdvanceOutcome string

const (
	// AdvanceSkipped: tournament missing, not active, or without battles.
	AdvanceSkipped             AdvanceOutcome = "skipped"
	AdvanceRoundIncomplete     AdvanceOutcome = "round_incomplete"
	AdvanceAlreadyAdvanced     AdvanceOutcome = "already_advanced"
	AdvanceRoundCreated        AdvanceOutcome = "round_created"
	AdvanceTournamentFinalized AdvanceOutcome = "tournament_finalized"
	AdvanceInvariantViolation  AdvanceOutcome = "invariant_violation"
)

// RoundAdvancer closes the latest round of a tournament once every battle in
// it is decided, then either creates the next round or finalizes the winner.
// Re-running it for an already advanced round changes nothing.
type RoundAdvancer struct {
	deps Deps
}

func NewRoundAdvancer(deps Deps) *RoundAdvancer {
	return &RoundAdvancer{deps: deps.withDefaults()}
}

type advanceResult struct {
	outcome  AdvanceOutcome
	round    int
	winners  []int
	created  []*models.Battle
	champion *int
}

// Handle is the queue entry point for queue.JobAdvanceRound.
func (a *RoundAdvancer) Handle(ctx context.Context, job queue.Job) error {
	payload, err := queue.DecodePayload[queue.AdvanceRoundPayload](job)
	if err != nil {
		return err
	}
	if payload.TournamentID <= 0 {
		return queue.Permanent(fmt.Errorf("%w: tournament_id must be positive", queue.ErrInvalidPayload))
	}
	_, err = a.Advance(ctx, payload.TournamentID)
	return err
}

// Advance runs one advancement attempt. Returned errors are transient and
// safe to retry; every precondition miss is reported as an outcome instead.
func (a *RoundAdvancer) Advance(ctx context.Context, tournamentID int) (AdvanceOutcome, error) {
	release := a.deps.Locks.Lock(tournamentID)
	defer release()

	log := a.deps.Logger.With(slog.Int("tournament_id", tournamentID))

	var res advanceResult
	err := a.deps.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		var err error
		res, err = a.advance(ctx, exec, tournamentID, log)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrRoundAlreadyExists) {
			log.Info("next round created concurrently, nothing to do")
			return AdvanceAlreadyAdvanced, nil
		}
		return "", fmt.Errorf("advance tournament %d: %w", tournamentID, err)
	}

	a.publish(ctx, tournamentID, res, log)
	return res.outcome, nil
}

func (a *RoundAdvancer) advance(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, log *slog.Logger) (advanceResult, error) {
	t, err := a.deps.Tournaments.LockByID(ctx, exec, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			log.Debug("tournament not found, skipping advancement")
			return advanceResult{outcome: AdvanceSkipped}, nil
		}
		return advanceResult{}, err
	}
	if t.Status != models.StatusActive {
		log.Debug("tournament not active, skipping advancement", slog.String("status", string(t.Status)))
		return advanceResult{outcome: AdvanceSkipped}, nil
	}

	maxRound, err := a.deps.Battles.MaxRound(ctx, exec, tournamentID)
	if err != nil {
		return advanceResult{}, err
	}
	if maxRound == 0 {
		log.Debug("tournament has no battles, skipping advancement")
		return advanceResult{outcome: AdvanceSkipped}, nil
	}

	battles, err := a.deps.Battles.ListByRound(ctx, exec, tournamentID, maxRound)
	if err != nil {
		return advanceResult{}, err
	}
	if len(battles) == 0 {
		return advanceResult{outcome: AdvanceSkipped}, nil
	}

	for _, b := range battles {
		if !b.IsDecided() {
			log.Debug("round not complete yet", slog.Int("round", maxRound), slog.Int("battle_id", b.ID))
			return advanceResult{outcome: AdvanceRoundIncomplete, round: maxRound}, nil
		}
	}

	nextRound := maxRound + 1
	exists, err := a.deps.Battles.RoundExists(ctx, exec, tournamentID, nextRound)
	if err != nil {
		return advanceResult{}, err
	}
	if exists {
		log.Debug("next round already exists", slog.Int("round", nextRound))
		return advanceResult{outcome: AdvanceAlreadyAdvanced, round: maxRound}, nil
	}

	winners := roundWinners(battles)
	res := advanceResult{round: maxRound, winners: winners}

	switch len(winners) {
	case 0:
		a.deps.Metrics.InvariantViolation()
		log.Error("completed round has no winners, leaving tournament for inspection",
			slog.Int("round", maxRound),
			slog.Any("error", ErrInvariantViolation),
		)
		res.outcome = AdvanceInvariantViolation
		return res, nil

	case 1:
		champion := winners[0]
		if err := a.deps.Tournaments.Complete(ctx, exec, tournamentID, champion); err != nil {
			return advanceResult{}, err
		}
		res.outcome = AdvanceTournamentFinalized
		res.champion = &champion
		return res, nil
	}

	now := a.deps.Clock.Now()
	created, err := brackets.PairRound(brackets.PairingParams{
		TournamentID: tournamentID,
		Round:        nextRound,
		PlayerIDs:    winners,
		ScheduledAt:  now.Add(brackets.RoundDelay(t)),
		Now:          now,
	})
	if err != nil {
		// Winners are distinct positive IDs read from storage, so this is corrupt data.
		a.deps.Metrics.InvariantViolation()
		log.Error("cannot pair next round", slog.Int("round", nextRound), slog.Any("error", err))
		return advanceResult{outcome: AdvanceInvariantViolation, round: maxRound}, nil
	}
	if err := a.deps.Battles.CreateBatch(ctx, exec, created); err != nil {
		return advanceResult{}, mapRepositoryError(err, "failed to create round %d", nextRound)
	}

	res.outcome = AdvanceRoundCreated
	res.created = created
	return res, nil
}

// roundWinners returns each distinct winner once, in battle order.
func roundWinners(battles []*models.Battle) []int {
	seen := make(map[int]bool, len(battles))
	winners := make([]int, 0, len(battles))
	for _, b := range battles {
		if b.WinnerID == nil || seen[*b.WinnerID] {
			continue
		}
		seen[*b.WinnerID] = true
		winners = append(winners, *b.WinnerID)
	}
	return winners
}

func (a *RoundAdvancer) publish(ctx context.Context, tournamentID int, res advanceResult, log *slog.Logger) {
	switch res.outcome {
	case AdvanceRoundCreated:
		nextRound := res.round + 1
		a.deps.Metrics.RoundCreated()
		log.Info("round created",
			slog.Int("round", nextRound),
			slog.Int("battles", len(res.created)),
		)
		for _, playerID := range brackets.Byes(res.created) {
			log.Info("player advanced by bye", slog.Int("round", nextRound), slog.Int("player_id", playerID))
		}
		a.deps.Emitter.Emit(ctx, events.RoundClosed{
			TournamentID: tournamentID,
			Round:        res.round,
			Winners:      res.winners,
			NextRound:    &nextRound,
		})
		a.deps.Emitter.Emit(ctx, events.RoundCreated{
			TournamentID: tournamentID,
			Round:        nextRound,
			Battles:      res.created,
		})

	case AdvanceTournamentFinalized:
		a.deps.Metrics.TournamentFinalized("advancement")
		log.Info("tournament finalized", slog.Int("round", res.round), slog.Int("winner_id", *res.champion))
		a.deps.Emitter.Emit(ctx, events.RoundClosed{
			TournamentID:       tournamentID,
			Round:              res.round,
			Winners:            res.winners,
			TournamentComplete: true,
			TournamentWinner:   res.champion,
		})
	}
}
