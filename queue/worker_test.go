package queue

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorker(t *testing.T) (*Worker, *MemoryBroker, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	broker := NewMemoryBroker(clock, 16)
	t.Cleanup(broker.Close)
	w := NewWorker(broker, discardLogger(), WorkerOptions{
		Concurrency: 2,
		Policy:      DefaultRetryPolicy(),
		Clock:       clock,
	})
	return w, broker, clock
}

func advanceJob(t *testing.T, clock clockwork.Clock) Job {
	t.Helper()
	job, err := NewAdvanceRoundJob(9, clock.Now())
	require.NoError(t, err)
	return job
}

func TestWorker_ProcessSuccess(t *testing.T) {
	w, broker, clock := newTestWorker(t)

	var got AdvanceRoundPayload
	w.Register(JobAdvanceRound, HandlerFunc(func(ctx context.Context, job Job) error {
		var err error
		got, err = DecodePayload[AdvanceRoundPayload](job)
		return err
	}))

	w.Process(context.Background(), advanceJob(t, clock))

	assert.Equal(t, 9, got.TournamentID)
	assert.Zero(t, broker.Delayed())
	assert.Empty(t, broker.Failed())
}

func TestWorker_TransientErrorIsRetriedWithBackoff(t *testing.T) {
	w, broker, clock := newTestWorker(t)
	w.Register(JobAdvanceRound, HandlerFunc(func(context.Context, Job) error {
		return errors.New("connection reset")
	}))

	job := advanceJob(t, clock)
	w.Process(context.Background(), job)

	require.Equal(t, 1, broker.Delayed())
	assert.Empty(t, broker.Failed())

	clock.Advance(59 * time.Second)
	_, err := dequeueWithin(t, broker, 50*time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	clock.Advance(time.Second)
	retried, err := dequeueWithin(t, broker, time.Second)
	require.NoError(t, err)
	assert.Equal(t, job.ID, retried.ID)
	assert.Equal(t, 1, retried.Attempt)
	assert.Equal(t, "connection reset", retried.LastError)
}

func TestWorker_ExhaustedRetriesAreRecorded(t *testing.T) {
	w, broker, clock := newTestWorker(t)
	w.Register(JobAdvanceRound, HandlerFunc(func(context.Context, Job) error {
		return errors.New("still down")
	}))

	job := advanceJob(t, clock)
	job.Attempt = DefaultMaxAttempts - 1
	w.Process(context.Background(), job)

	assert.Zero(t, broker.Delayed())
	failed := broker.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, job.ID, failed[0].Job.ID)
	assert.Equal(t, DefaultMaxAttempts, failed[0].Job.Attempt)
	assert.JSONEq(t, `{"tournament_id":9}`, string(failed[0].Job.Payload))
}

func TestWorker_PermanentErrorSkipsRetries(t *testing.T) {
	w, broker, clock := newTestWorker(t)
	w.Register(JobAdvanceRound, HandlerFunc(func(context.Context, Job) error {
		return Permanent(errors.New("bad input"))
	}))

	w.Process(context.Background(), advanceJob(t, clock))

	assert.Zero(t, broker.Delayed())
	require.Len(t, broker.Failed(), 1)
	assert.Equal(t, "bad input", broker.Failed()[0].Error)
}

func TestWorker_UnknownJobTypeFails(t *testing.T) {
	w, broker, clock := newTestWorker(t)

	job := advanceJob(t, clock)
	job.Type = "tournament.unknown"
	w.Process(context.Background(), job)

	require.Len(t, broker.Failed(), 1)
	assert.Contains(t, broker.Failed()[0].Error, ErrUnknownJobType.Error())
}

func TestWorker_PanicIsRecoveredAndRetried(t *testing.T) {
	w, broker, clock := newTestWorker(t)
	w.Register(JobAdvanceRound, HandlerFunc(func(context.Context, Job) error {
		panic("nil map write")
	}))

	assert.NotPanics(t, func() {
		w.Process(context.Background(), advanceJob(t, clock))
	})
	assert.Equal(t, 1, broker.Delayed())
}

func TestWorker_RunDrainsQueueUntilCancelled(t *testing.T) {
	w, broker, clock := newTestWorker(t)

	var handled atomic.Int32
	done := make(chan struct{}, 3)
	w.Register(JobAdvanceRound, HandlerFunc(func(context.Context, Job) error {
		handled.Add(1)
		done <- struct{}{}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- w.Run(ctx) }()

	for i := 0; i < 3; i++ {
		require.NoError(t, broker.Enqueue(ctx, advanceJob(t, clock), clock.Now()))
	}
	for i := 0; i < 3; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	cancel()
	select {
	case err := <-runErr:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
	assert.Equal(t, int32(3), handled.Load())
}

func TestDispatcher_EnqueueAdvanceRound(t *testing.T) {
	clock := clockwork.NewFakeClock()
	broker := NewMemoryBroker(clock, 4)
	defer broker.Close()

	d := NewDispatcher(broker, clock)
	require.NoError(t, d.EnqueueAdvanceRound(context.Background(), 5))

	job, err := dequeueWithin(t, broker, time.Second)
	require.NoError(t, err)
	assert.Equal(t, JobAdvanceRound, job.Type)
	payload, err := DecodePayload[AdvanceRoundPayload](job)
	require.NoError(t, err)
	assert.Equal(t, 5, payload.TournamentID)
}

func TestWorker_CancelledJobIsPutBackWithoutCountingAttempt(t *testing.T) {
	broker, mr, clock := newTestRedisBroker(t)
	w := NewWorker(broker, discardLogger(), WorkerOptions{Policy: DefaultRetryPolicy(), Clock: clock})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Register(JobAdvanceRound, HandlerFunc(func(ctx context.Context, job Job) error {
		cancel()
		return ctx.Err()
	}))

	job, err := NewAdvanceRoundJob(42, clock.Now())
	require.NoError(t, err)
	require.NoError(t, broker.Enqueue(context.Background(), job, clock.Now()))
	dequeued, err := dequeueWithin(t, broker, 3*time.Second)
	require.NoError(t, err)

	w.Process(ctx, dequeued)

	ready, err := mr.List("test:jobs:ready")
	require.NoError(t, err)
	require.Len(t, ready, 1)
	var requeued Job
	require.NoError(t, json.Unmarshal([]byte(ready[0]), &requeued))
	assert.Equal(t, job.ID, requeued.ID)
	assert.Zero(t, requeued.Attempt)

	assert.False(t, mr.Exists("test:jobs:processing:default"))
	assert.False(t, mr.Exists("test:jobs:delayed"))
	failed, err := broker.Failed(context.Background())
	require.NoError(t, err)
	assert.Empty(t, failed)
}

func TestWorker_RetryOnCancelledContextStillSchedules(t *testing.T) {
	broker, mr, clock := newTestRedisBroker(t)
	w := NewWorker(broker, discardLogger(), WorkerOptions{Policy: DefaultRetryPolicy(), Clock: clock})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.Register(JobAdvanceRound, HandlerFunc(func(context.Context, Job) error {
		return Permanent(errors.New("bad payload"))
	}))

	w.Process(ctx, advanceJob(t, clock))

	failed, err := broker.Failed(context.Background())
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "bad payload", failed[0].Error)
	assert.False(t, mr.Exists("test:jobs:ready"))
}

// rejectingBroker accepts failure records but refuses new jobs.
type rejectingBroker struct {
	*MemoryBroker
}

func (rejectingBroker) Enqueue(context.Context, Job, time.Time) error {
	return errors.New("queue unavailable")
}

func TestWorker_FailedRequeueIsRecordedAsFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	mem := NewMemoryBroker(clock, 4)
	t.Cleanup(mem.Close)
	w := NewWorker(rejectingBroker{mem}, discardLogger(), WorkerOptions{Policy: DefaultRetryPolicy(), Clock: clock})
	w.Register(JobAdvanceRound, HandlerFunc(func(context.Context, Job) error {
		return errors.New("connection reset")
	}))

	job := advanceJob(t, clock)
	w.Process(context.Background(), job)

	failed := mem.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, job.ID, failed[0].Job.ID)
	assert.Equal(t, 1, failed[0].Job.Attempt)
	assert.Contains(t, failed[0].Error, "queue unavailable")
	assert.Contains(t, failed[0].Error, "connection reset")
	assert.Zero(t, mem.Delayed())
}
