package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

const DefaultSweepInterval = time.Minute

var ErrInvalidInterval = errors.New("sweep interval must be positive")

// Sweeper closes qualification for every tournament whose deadline passed.
type Sweeper interface {
	FinalizeDue(ctx context.Context) (int, error)
}

type Options struct {
	Interval time.Duration
	Clock    clockwork.Clock
	// SweepTimeout bounds a single sweep. Zero means Interval.
	SweepTimeout time.Duration
}

// Scheduler runs the qualification sweep periodically. A sweep that is still
// running when the next tick fires is rescheduled instead of overlapping.
type Scheduler struct {
	sched   gocron.Scheduler
	sweeper Sweeper
	logger  *slog.Logger
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
}

func New(sweeper Sweeper, logger *slog.Logger, opts Options) (*Scheduler, error) {
	if opts.Interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.SweepTimeout <= 0 {
		opts.SweepTimeout = opts.Interval
	}
	if logger == nil {
		logger = slog.Default()
	}

	sched, err := gocron.NewScheduler(gocron.WithClock(opts.Clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		sched:   sched,
		sweeper: sweeper,
		logger:  logger.With(slog.String("component", "qualification_sweep")),
		timeout: opts.SweepTimeout,
		ctx:     ctx,
		cancel:  cancel,
	}

	_, err = sched.NewJob(
		gocron.DurationJob(opts.Interval),
		gocron.NewTask(s.sweep),
		gocron.WithName("qualification-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		cancel()
		_ = sched.Shutdown()
		return nil, fmt.Errorf("failed to register qualification sweep: %w", err)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
	s.logger.Info("qualification sweep scheduler started")
}

// Shutdown cancels an in-flight sweep and waits for it to return.
func (s *Scheduler) Shutdown() error {
	s.cancel()
	if err := s.sched.Shutdown(); err != nil {
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}
	s.logger.Info("qualification sweep scheduler stopped")
	return nil
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()

	n, err := s.sweeper.FinalizeDue(ctx)
	if err != nil {
		s.logger.Error("qualification sweep failed", slog.Any("error", err))
		return
	}
	if n > 0 {
		s.logger.Info("qualification sweep finished", slog.Int("finalized", n))
	}
}
