package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisBroker(t *testing.T) (*RedisBroker, *miniredis.Miniredis, *clockwork.FakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := clockwork.NewFakeClock()
	return NewRedisBroker(client, clock, RedisBrokerOptions{Prefix: "test:jobs"}), mr, clock
}

func TestRedisBroker_ImmediateJob(t *testing.T) {
	b, _, clock := newTestRedisBroker(t)

	job, err := NewAdvanceRoundJob(3, clock.Now())
	require.NoError(t, err)
	require.NoError(t, b.Enqueue(context.Background(), job, clock.Now()))

	got, err := dequeueWithin(t, b, 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.JSONEq(t, `{"tournament_id":3}`, string(got.Payload))
}

func TestRedisBroker_DelayedJobIsPromotedWhenDue(t *testing.T) {
	b, mr, clock := newTestRedisBroker(t)

	job, err := NewAdvanceRoundJob(3, clock.Now())
	require.NoError(t, err)
	require.NoError(t, b.Enqueue(context.Background(), job, clock.Now().Add(2*time.Minute)))

	members, err := mr.ZMembers("test:jobs:delayed")
	require.NoError(t, err)
	assert.Len(t, members, 1)
	assert.False(t, mr.Exists("test:jobs:ready"))

	require.NoError(t, b.promoteDue(context.Background()))
	assert.False(t, mr.Exists("test:jobs:ready"), "job promoted before its run time")

	clock.Advance(2 * time.Minute)
	got, err := dequeueWithin(t, b, 3*time.Second)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.False(t, mr.Exists("test:jobs:delayed"))
}

func TestRedisBroker_PromotionClaimsOnce(t *testing.T) {
	b, mr, clock := newTestRedisBroker(t)

	job, err := NewAdvanceRoundJob(3, clock.Now())
	require.NoError(t, err)
	require.NoError(t, b.Enqueue(context.Background(), job, clock.Now().Add(time.Second)))
	clock.Advance(time.Second)

	require.NoError(t, b.promoteDue(context.Background()))
	require.NoError(t, b.promoteDue(context.Background()))

	ready, err := mr.List("test:jobs:ready")
	require.NoError(t, err)
	assert.Len(t, ready, 1)
}

func TestRedisBroker_Fail(t *testing.T) {
	b, _, clock := newTestRedisBroker(t)

	job, err := NewAdvanceRoundJob(11, clock.Now())
	require.NoError(t, err)
	job.Attempt = 5
	require.NoError(t, b.Fail(context.Background(), job, assert.AnError))

	failed, err := b.Failed(context.Background())
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, job.ID, failed[0].Job.ID)
	assert.Equal(t, 5, failed[0].Job.Attempt)
	assert.Equal(t, assert.AnError.Error(), failed[0].Error)
	assert.True(t, failed[0].FailedAt.Equal(clock.Now()))
}

func TestRedisBroker_DequeuedJobStaysInFlightUntilAcked(t *testing.T) {
	b, mr, clock := newTestRedisBroker(t)

	job, err := NewAdvanceRoundJob(7, clock.Now())
	require.NoError(t, err)
	require.NoError(t, b.Enqueue(context.Background(), job, clock.Now()))

	got, err := dequeueWithin(t, b, 3*time.Second)
	require.NoError(t, err)

	inFlight, err := mr.List("test:jobs:processing:default")
	require.NoError(t, err)
	assert.Len(t, inFlight, 1)
	assert.False(t, mr.Exists("test:jobs:ready"))

	require.NoError(t, b.Ack(context.Background(), got))
	assert.False(t, mr.Exists("test:jobs:processing:default"))
}

func TestRedisBroker_RequeueInFlightRedeliversUnackedJobs(t *testing.T) {
	b, mr, clock := newTestRedisBroker(t)

	for _, id := range []int{1, 2} {
		job, err := NewAdvanceRoundJob(id, clock.Now())
		require.NoError(t, err)
		require.NoError(t, b.Enqueue(context.Background(), job, clock.Now()))
		_, err = dequeueWithin(t, b, 3*time.Second)
		require.NoError(t, err)
	}

	// A fresh broker for the same consumer stands in for a restarted process.
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	restarted := NewRedisBroker(client, clock, RedisBrokerOptions{Prefix: "test:jobs"})

	moved, err := restarted.RequeueInFlight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, moved)
	assert.False(t, mr.Exists("test:jobs:processing:default"))

	first, err := dequeueWithin(t, restarted, 3*time.Second)
	require.NoError(t, err)
	payload, err := DecodePayload[AdvanceRoundPayload](first)
	require.NoError(t, err)
	assert.Equal(t, 1, payload.TournamentID)
}

func TestRedisBroker_ConsumersHaveSeparateInFlightLists(t *testing.T) {
	b, mr, clock := newTestRedisBroker(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	other := NewRedisBroker(client, clock, RedisBrokerOptions{Prefix: "test:jobs", Consumer: "worker-b"})

	job, err := NewAdvanceRoundJob(3, clock.Now())
	require.NoError(t, err)
	require.NoError(t, b.Enqueue(context.Background(), job, clock.Now()))
	_, err = dequeueWithin(t, b, 3*time.Second)
	require.NoError(t, err)

	moved, err := other.RequeueInFlight(context.Background())
	require.NoError(t, err)
	assert.Zero(t, moved)
	assert.True(t, mr.Exists("test:jobs:processing:default"))
}
