package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
)

const (
	defaultRedisPrefix = "tournament-engine:jobs"
	promoteBatchSize   = 100
)

// RedisBroker keeps due jobs in a list and delayed jobs in a sorted set scored
// by run time. Workers in any process move due members to the list; a member is
// claimed by whoever removes it from the set, so each job is promoted once.
//
// Dequeue moves a job into the consumer's processing list and Ack removes it
// from there. Jobs left behind by a crash are put back by RequeueInFlight, so
// delivery is at least once.
type RedisBroker struct {
	client        *redis.Client
	clock         clockwork.Clock
	readyKey      string
	delayedKey    string
	failedKey     string
	processingKey string
	pollTimeout   time.Duration
}

type RedisBrokerOptions struct {
	// Prefix namespaces the keys; defaults to "tournament-engine:jobs".
	Prefix string
	// PollTimeout bounds a blocking pop so delayed jobs get promoted regularly.
	// Redis accepts whole seconds only; defaults to one second.
	PollTimeout time.Duration
	// Consumer names this process's in-flight list. It must be stable across
	// restarts and unique per process; defaults to "default".
	Consumer string
}

func NewRedisBroker(client *redis.Client, clock clockwork.Clock, opts RedisBrokerOptions) *RedisBroker {
	prefix := opts.Prefix
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	poll := opts.PollTimeout
	if poll < time.Second {
		poll = time.Second
	}
	consumer := opts.Consumer
	if consumer == "" {
		consumer = "default"
	}
	return &RedisBroker{
		client:        client,
		clock:         clock,
		readyKey:      prefix + ":ready",
		delayedKey:    prefix + ":delayed",
		failedKey:     prefix + ":failed",
		processingKey: prefix + ":processing:" + consumer,
		pollTimeout:   poll,
	}
}

func (b *RedisBroker) Enqueue(ctx context.Context, job Job, runAt time.Time) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job %s: %w", job.ID, err)
	}

	if !runAt.After(b.clock.Now()) {
		if err := b.client.LPush(ctx, b.readyKey, data).Err(); err != nil {
			return fmt.Errorf("failed to push job %s: %w", job.ID, err)
		}
		return nil
	}

	member := redis.Z{Score: float64(runAt.UnixMilli()), Member: data}
	if err := b.client.ZAdd(ctx, b.delayedKey, member).Err(); err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", job.ID, err)
	}
	return nil
}

func (b *RedisBroker) Dequeue(ctx context.Context) (Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Job{}, err
		}
		if err := b.promoteDue(ctx); err != nil {
			return Job{}, err
		}

		raw, err := b.client.BLMove(ctx, b.readyKey, b.processingKey, "RIGHT", "LEFT", b.pollTimeout).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Job{}, ctxErr
			}
			return Job{}, fmt.Errorf("failed to pop job: %w", err)
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			_ = b.client.LRem(ctx, b.processingKey, 1, raw).Err()
			return Job{}, Permanent(fmt.Errorf("%w: undecodable job envelope: %v", ErrInvalidPayload, err))
		}
		job.receipt = raw
		return job, nil
	}
}

func (b *RedisBroker) promoteDue(ctx context.Context) error {
	now := strconv.FormatInt(b.clock.Now().UnixMilli(), 10)
	due, err := b.client.ZRangeByScore(ctx, b.delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   now,
		Count: promoteBatchSize,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to read delayed jobs: %w", err)
	}

	for _, member := range due {
		removed, err := b.client.ZRem(ctx, b.delayedKey, member).Result()
		if err != nil {
			return fmt.Errorf("failed to claim delayed job: %w", err)
		}
		if removed != 1 {
			continue
		}
		if err := b.client.LPush(ctx, b.readyKey, member).Err(); err != nil {
			return fmt.Errorf("failed to promote delayed job: %w", err)
		}
	}
	return nil
}

func (b *RedisBroker) Fail(ctx context.Context, job Job, cause error) error {
	record := FailedJob{Job: job, FailedAt: b.clock.Now()}
	if cause != nil {
		record.Error = cause.Error()
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode failed job %s: %w", job.ID, err)
	}
	if err := b.client.LPush(ctx, b.failedKey, data).Err(); err != nil {
		return fmt.Errorf("failed to record failed job %s: %w", job.ID, err)
	}
	return nil
}

func (b *RedisBroker) Ack(ctx context.Context, job Job) error {
	if job.receipt == "" {
		return nil
	}
	if err := b.client.LRem(ctx, b.processingKey, 1, job.receipt).Err(); err != nil {
		return fmt.Errorf("failed to acknowledge job %s: %w", job.ID, err)
	}
	return nil
}

// RequeueInFlight moves jobs this consumer dequeued but never acknowledged
// back to the ready list. Call it before the worker pool starts.
func (b *RedisBroker) RequeueInFlight(ctx context.Context) (int, error) {
	moved := 0
	for {
		err := b.client.LMove(ctx, b.processingKey, b.readyKey, "RIGHT", "LEFT").Err()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, fmt.Errorf("failed to requeue in-flight jobs: %w", err)
		}
		moved++
	}
}

// Failed lists recorded failures, newest first.
func (b *RedisBroker) Failed(ctx context.Context) ([]FailedJob, error) {
	raw, err := b.client.LRange(ctx, b.failedKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list failed jobs: %w", err)
	}
	out := make([]FailedJob, 0, len(raw))
	for _, item := range raw {
		var record FailedJob
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			return nil, fmt.Errorf("failed to decode failed job: %w", err)
		}
		out = append(out, record)
	}
	return out, nil
}
