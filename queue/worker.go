package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/Dosada05/tournament-engine/metrics"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"
)

var ErrUnknownJobType = errors.New("no handler registered for job type")

type Handler interface {
	Handle(ctx context.Context, job Job) error
}

type HandlerFunc func(ctx context.Context, job Job) error

func (f HandlerFunc) Handle(ctx context.Context, job Job) error { return f(ctx, job) }

// Worker pulls jobs from a Broker with a fixed number of goroutines. Handler
// errors never escape: they are retried per the RetryPolicy and recorded via
// Broker.Fail once retries are exhausted.
type Worker struct {
	broker      Broker
	policy      RetryPolicy
	concurrency int
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *metrics.Metrics

	mu       sync.RWMutex
	handlers map[JobType]Handler
}

type WorkerOptions struct {
	Concurrency int
	Policy      RetryPolicy
	Clock       clockwork.Clock
	Metrics     *metrics.Metrics
}

func NewWorker(broker Broker, logger *slog.Logger, opts WorkerOptions) *Worker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Policy.MaxAttempts <= 0 {
		opts.Policy = DefaultRetryPolicy()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	return &Worker{
		broker:      broker,
		policy:      opts.Policy,
		concurrency: opts.Concurrency,
		clock:       opts.Clock,
		logger:      logger.With(slog.String("component", "worker")),
		metrics:     opts.Metrics,
		handlers:    make(map[JobType]Handler),
	}
}

func (w *Worker) Register(jobType JobType, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = h
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker pool started", slog.Int("concurrency", w.concurrency))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		slot := i
		g.Go(func() error {
			w.loop(gctx, slot)
			return nil
		})
	}
	err := g.Wait()
	w.logger.Info("worker pool stopped")
	return err
}

func (w *Worker) loop(ctx context.Context, slot int) {
	for {
		job, err := w.broker.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrBrokerClosed) {
				return
			}
			w.logger.Error("failed to dequeue job", slog.Int("slot", slot), slog.Any("error", err))
			if IsPermanent(err) {
				continue
			}
			select {
			case <-w.clock.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		w.Process(ctx, job)
	}
}

// Process runs one job to completion, scheduling a retry or recording a
// permanent failure as needed. A job cut short because ctx was cancelled is
// put back without counting the attempt. Bookkeeping after the handler returns
// ignores ctx cancellation so a shutdown never drops the job.
func (w *Worker) Process(ctx context.Context, job Job) {
	log := w.logger.With(
		slog.String("job_id", job.ID.String()),
		slog.String("job_type", string(job.Type)),
		slog.Int("attempt", job.Attempt+1),
	)

	err := w.execute(ctx, job)
	bg := context.WithoutCancel(ctx)
	if err == nil {
		w.metrics.JobProcessed(string(job.Type), "success")
		log.Debug("job completed")
		w.ack(bg, job, log)
		return
	}

	if ctx.Err() != nil && !IsPermanent(err) {
		w.metrics.JobProcessed(string(job.Type), "interrupted")
		log.Warn("job interrupted, putting it back", slog.Any("error", err))
		w.requeue(bg, job, w.clock.Now(), err, log)
		return
	}

	job.Attempt++
	job.LastError = err.Error()

	if IsPermanent(err) || w.policy.Exhausted(job.Attempt) {
		w.metrics.JobProcessed(string(job.Type), "failed")
		log.Error("job failed permanently",
			slog.Any("error", err),
			slog.String("payload", string(job.Payload)),
		)
		w.fail(bg, job, err, log)
		return
	}

	delay := w.policy.Delay(job.Attempt)
	w.metrics.JobProcessed(string(job.Type), "retry")
	log.Warn("job failed, scheduling retry",
		slog.Any("error", err),
		slog.Duration("retry_in", delay),
	)
	w.requeue(bg, job, w.clock.Now().Add(delay), err, log)
}

// requeue falls back to Broker.Fail when the job cannot be enqueued again.
func (w *Worker) requeue(ctx context.Context, job Job, runAt time.Time, cause error, log *slog.Logger) {
	if enqErr := w.broker.Enqueue(ctx, job, runAt); enqErr != nil {
		log.Error("failed to schedule retry, recording job as failed",
			slog.Any("error", enqErr),
			slog.String("payload", string(job.Payload)),
		)
		w.fail(ctx, job, fmt.Errorf("requeue failed: %w (last error: %v)", enqErr, cause), log)
		return
	}
	w.ack(ctx, job, log)
}

// fail leaves the job unacknowledged when even the failure record cannot be
// written, so the broker can hand it out again.
func (w *Worker) fail(ctx context.Context, job Job, cause error, log *slog.Logger) {
	if failErr := w.broker.Fail(ctx, job, cause); failErr != nil {
		log.Error("failed to record failed job",
			slog.Any("error", failErr),
			slog.String("payload", string(job.Payload)),
		)
		return
	}
	w.ack(ctx, job, log)
}

func (w *Worker) ack(ctx context.Context, job Job, log *slog.Logger) {
	if err := w.broker.Ack(ctx, job); err != nil {
		log.Error("failed to acknowledge job", slog.Any("error", err))
	}
}

func (w *Worker) execute(ctx context.Context, job Job) (err error) {
	w.mu.RLock()
	h, ok := w.handlers[job.Type]
	w.mu.RUnlock()
	if !ok {
		return Permanent(fmt.Errorf("%w: %s", ErrUnknownJobType, job.Type))
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job handler panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return h.Handle(ctx, job)
}
