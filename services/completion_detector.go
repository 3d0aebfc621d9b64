package services

import (
	"context"
	"log/slog"

	"github.com/Dosada05/tournament-engine/models"
)

// RoundCompletionDetector enqueues one advancement run for every battle that
// newly becomes completed with a winner. It is the only automatic trigger of
// round advancement.
type RoundCompletionDetector struct {
	enqueuer AdvanceEnqueuer
	logger   *slog.Logger
}

func NewRoundCompletionDetector(enqueuer AdvanceEnqueuer, logger *slog.Logger) *RoundCompletionDetector {
	return &RoundCompletionDetector{enqueuer: enqueuer, logger: logger}
}

func (d *RoundCompletionDetector) OnTransition(ctx context.Context, tr BattleTransition) {
	if tr.Previous.Status == models.BattleCompleted {
		return
	}
	if tr.Current.Status != models.BattleCompleted || tr.Current.WinnerID == nil {
		return
	}

	if err := d.enqueuer.EnqueueAdvanceRound(ctx, tr.Current.TournamentID); err != nil {
		d.logger.Error("failed to enqueue round advancement",
			slog.Int("tournament_id", tr.Current.TournamentID),
			slog.Int("battle_id", tr.Current.ID),
			slog.Int("round", tr.Current.Round),
			slog.Any("error", err),
		)
		return
	}
	d.logger.Debug("round advancement enqueued",
		slog.Int("tournament_id", tr.Current.TournamentID),
		slog.Int("battle_id", tr.Current.ID),
	)
}
