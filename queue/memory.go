package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

var ErrBrokerClosed = errors.New("broker closed")

// MemoryBroker is an in-process Broker. Delayed jobs are held on clock timers,
// so a fake clock drives retries deterministically in tests. Jobs do not
// survive a restart.
type MemoryBroker struct {
	clock clockwork.Clock
	ready chan Job
	done  chan struct{}

	mu      sync.Mutex
	closed  bool
	delayed map[uuid.UUID]clockwork.Timer
	failed  []FailedJob
}

func NewMemoryBroker(clock clockwork.Clock, buffer int) *MemoryBroker {
	if buffer <= 0 {
		buffer = 256
	}
	return &MemoryBroker{
		clock:   clock,
		ready:   make(chan Job, buffer),
		done:    make(chan struct{}),
		delayed: make(map[uuid.UUID]clockwork.Timer),
	}
}

func (b *MemoryBroker) Enqueue(ctx context.Context, job Job, runAt time.Time) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBrokerClosed
	}
	wait := runAt.Sub(b.clock.Now())
	if wait > 0 {
		// The callback may fire while the clock holds its own lock; hand off
		// to a goroutine so it never waits on b.mu from there.
		b.delayed[job.ID] = b.clock.AfterFunc(wait, func() { go b.release(job) })
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	select {
	case b.ready <- job:
		return nil
	case <-b.done:
		return ErrBrokerClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b *MemoryBroker) release(job Job) {
	b.mu.Lock()
	delete(b.delayed, job.ID)
	b.mu.Unlock()
	select {
	case b.ready <- job:
	case <-b.done:
	}
}

func (b *MemoryBroker) Dequeue(ctx context.Context) (Job, error) {
	select {
	case job := <-b.ready:
		return job, nil
	case <-b.done:
		return Job{}, ErrBrokerClosed
	case <-ctx.Done():
		return Job{}, ctx.Err()
	}
}

func (b *MemoryBroker) Fail(_ context.Context, job Job, cause error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	record := FailedJob{Job: job, FailedAt: b.clock.Now()}
	if cause != nil {
		record.Error = cause.Error()
	}
	b.failed = append(b.failed, record)
	return nil
}

// Ack is a no-op: an in-process job is gone once Dequeue returns it.
func (b *MemoryBroker) Ack(context.Context, Job) error { return nil }

// Failed returns a copy of the jobs recorded by Fail.
func (b *MemoryBroker) Failed() []FailedJob {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]FailedJob, len(b.failed))
	copy(out, b.failed)
	return out
}

// Delayed returns the number of jobs waiting for their run time.
func (b *MemoryBroker) Delayed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.delayed)
}

// Close stops pending timers and unblocks Dequeue callers. Delayed jobs are dropped.
func (b *MemoryBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, timer := range b.delayed {
		timer.Stop()
		delete(b.delayed, id)
	}
	close(b.done)
}
