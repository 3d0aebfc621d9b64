package queue

import (
	"context"
	"time"
)

// Broker stores jobs until they are due and hands them to workers.
type Broker interface {
	// Enqueue makes job visible to Dequeue no earlier than runAt.
	Enqueue(ctx context.Context, job Job, runAt time.Time) error
	// Dequeue blocks until a due job is available or ctx is done.
	Dequeue(ctx context.Context) (Job, error)
	// Fail records a job that will not be retried.
	Fail(ctx context.Context, job Job, cause error) error
	// Ack releases a dequeued job once it has been handled, retried or failed.
	// A job that is never acknowledged may be delivered again.
	Ack(ctx context.Context, job Job) error
}

// FailedJob is the record kept for a job that exhausted its retries.
type FailedJob struct {
	Job      Job       `json:"job"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
}
