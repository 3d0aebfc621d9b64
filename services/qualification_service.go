package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Dosada05/tournament-engine/brackets"
	"github.com/Dosada05/tournament-engine/events"
	"github.com/Dosada05/tournament-engine/models"
	"github.com/Dosada05/tournament-engine/repositories"
)

type QualificationOutcome string

const (
	// QualificationSkipped: not upcoming, deadline not reached, or round 1 already exists.
	QualificationSkipped             QualificationOutcome = "skipped"
	QualificationNoQualifiers        QualificationOutcome = "no_qualifiers"
	QualificationFinalizedSoleWinner QualificationOutcome = "finalized_sole_winner"
	QualificationBracketStarted      QualificationOutcome = "bracket_started"
)

// QualificationFinalizer closes the qualification phase of tournaments whose
// deadline has passed and seeds round 1 from the ranked attempts.
type QualificationFinalizer struct {
	deps Deps
}

func NewQualificationFinalizer(deps Deps) *QualificationFinalizer {
	return &QualificationFinalizer{deps: deps.withDefaults()}
}

type qualificationResult struct {
	outcome QualificationOutcome
	seeds   []int
	created []*models.Battle
}

// FinalizeDue runs Finalize for every upcoming tournament past its deadline.
// A failing tournament is logged and stays upcoming for the next sweep; only
// a failure to list tournaments is returned.
func (f *QualificationFinalizer) FinalizeDue(ctx context.Context) (int, error) {
	due, err := f.deps.Tournaments.ListDueForQualification(ctx, nil, f.deps.Clock.Now())
	if err != nil {
		return 0, err
	}

	finalized := 0
	for _, t := range due {
		if ctx.Err() != nil {
			return finalized, ctx.Err()
		}
		outcome, err := f.Finalize(ctx, t.ID)
		if err != nil {
			f.deps.Logger.Error("qualification finalization failed",
				slog.Int("tournament_id", t.ID),
				slog.Any("error", err),
			)
			continue
		}
		if outcome == QualificationFinalizedSoleWinner || outcome == QualificationBracketStarted {
			finalized++
		}
	}
	return finalized, nil
}

// Finalize closes qualification for one tournament. Ranking, the status
// change and round 1 are written in one transaction, so a failure leaves the
// tournament untouched.
func (f *QualificationFinalizer) Finalize(ctx context.Context, tournamentID int) (QualificationOutcome, error) {
	release := f.deps.Locks.Lock(tournamentID)
	defer release()

	log := f.deps.Logger.With(slog.Int("tournament_id", tournamentID))

	var res qualificationResult
	err := f.deps.Tx.WithinTx(ctx, func(exec repositories.SQLExecutor) error {
		var err error
		res, err = f.finalize(ctx, exec, tournamentID, log)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrRoundAlreadyExists) {
			return QualificationSkipped, nil
		}
		return "", err
	}

	f.publish(ctx, tournamentID, res, log)
	return res.outcome, nil
}

func (f *QualificationFinalizer) finalize(ctx context.Context, exec repositories.SQLExecutor, tournamentID int, log *slog.Logger) (qualificationResult, error) {
	t, err := f.deps.Tournaments.LockByID(ctx, exec, tournamentID)
	if err != nil {
		return qualificationResult{}, mapRepositoryError(err, "failed to lock tournament %d", tournamentID)
	}

	now := f.deps.Clock.Now()
	if t.Status != models.StatusUpcoming || !t.QualificationClosed(now) {
		log.Debug("qualification not closable", slog.String("status", string(t.Status)))
		return qualificationResult{outcome: QualificationSkipped}, nil
	}

	started, err := f.deps.Battles.RoundExists(ctx, exec, tournamentID, 1)
	if err != nil {
		return qualificationResult{}, err
	}
	if started {
		log.Debug("round 1 already exists, skipping qualification")
		return qualificationResult{outcome: QualificationSkipped}, nil
	}

	approvedIDs, err := f.deps.Participants.ListApprovedPlayerIDs(ctx, exec, tournamentID)
	if err != nil {
		return qualificationResult{}, err
	}
	approved := make(map[int]bool, len(approvedIDs))
	for _, id := range approvedIDs {
		approved[id] = true
	}

	attempts, err := f.deps.Qualifications.ListByTournament(ctx, exec, tournamentID)
	if err != nil {
		return qualificationResult{}, err
	}

	seeds := brackets.RankQualifiers(attempts, approved, t.Slots())
	switch len(seeds) {
	case 0:
		log.Warn("qualification closed without qualifiers, tournament left upcoming",
			slog.Int("attempts", len(attempts)),
			slog.Int("approved", len(approvedIDs)),
		)
		return qualificationResult{outcome: QualificationNoQualifiers}, nil

	case 1:
		if err := f.deps.Tournaments.Complete(ctx, exec, tournamentID, seeds[0]); err != nil {
			return qualificationResult{}, err
		}
		return qualificationResult{outcome: QualificationFinalizedSoleWinner, seeds: seeds}, nil
	}

	if err := f.deps.Tournaments.UpdateStatus(ctx, exec, tournamentID, models.StatusActive); err != nil {
		return qualificationResult{}, err
	}

	created, err := brackets.PairRound(brackets.PairingParams{
		TournamentID: tournamentID,
		Round:        1,
		PlayerIDs:    seeds,
		ScheduledAt:  now,
		Now:          now,
	})
	if err != nil {
		return qualificationResult{}, mapPairingError(err)
	}
	if err := f.deps.Battles.CreateBatch(ctx, exec, created); err != nil {
		return qualificationResult{}, mapRepositoryError(err, "failed to create round 1")
	}

	return qualificationResult{outcome: QualificationBracketStarted, seeds: seeds, created: created}, nil
}

func (f *QualificationFinalizer) publish(ctx context.Context, tournamentID int, res qualificationResult, log *slog.Logger) {
	switch res.outcome {
	case QualificationFinalizedSoleWinner:
		winner := res.seeds[0]
		f.deps.Metrics.TournamentFinalized("qualification")
		log.Info("tournament finalized with a single qualifier", slog.Int("winner_id", winner))
		// Round 0 stands for the qualification phase.
		f.deps.Emitter.Emit(ctx, events.RoundClosed{
			TournamentID:       tournamentID,
			Round:              0,
			Winners:            res.seeds,
			TournamentComplete: true,
			TournamentWinner:   &winner,
		})

	case QualificationBracketStarted:
		f.deps.Metrics.RoundCreated()
		log.Info("qualification closed, round 1 created",
			slog.Int("seeds", len(res.seeds)),
			slog.Int("battles", len(res.created)),
		)
		for _, playerID := range brackets.Byes(res.created) {
			log.Info("player advanced by bye", slog.Int("round", 1), slog.Int("player_id", playerID))
		}
		f.deps.Emitter.Emit(ctx, events.RoundCreated{
			TournamentID: tournamentID,
			Round:        1,
			Battles:      res.created,
		})
	}
}
