package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/Dosada05/tournament-engine/metrics"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingPublisher struct {
	name string
	err  error
	mu   sync.Mutex
	got  []Envelope
}

func (p *recordingPublisher) Name() string { return p.name }

func (p *recordingPublisher) Publish(_ context.Context, env Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, env)
	return p.err
}

type panickingPublisher struct{}

func (panickingPublisher) Name() string { return "panics" }

func (panickingPublisher) Publish(context.Context, Envelope) error { panic("subscriber bug") }

func intPtr(v int) *int { return &v }

func TestEmitter_FansOutAndSwallowsFailures(t *testing.T) {
	clock := clockwork.NewFakeClock()
	failing := &recordingPublisher{name: "failing", err: errors.New("redis down")}
	healthy := &recordingPublisher{name: "healthy"}

	emitter := NewEmitter(clock, discardLogger(), metrics.New(prometheus.NewRegistry()), failing, panickingPublisher{})
	emitter.Register(healthy)

	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), RoundClosed{TournamentID: 4, Round: 2, Winners: []int{7}, TournamentComplete: true, TournamentWinner: intPtr(7)})
	})

	require.Len(t, failing.got, 1)
	require.Len(t, healthy.got, 1)

	env := healthy.got[0]
	assert.Equal(t, TypeRoundClosed, env.Type)
	assert.Equal(t, 4, env.TournamentID)
	assert.Equal(t, clock.Now(), env.OccurredAt)
	assert.JSONEq(t, `{
		"tournament_id": 4,
		"round": 2,
		"winners": [7],
		"next_round": null,
		"tournament_complete": true,
		"tournament_winner": 7
	}`, string(env.Payload))
	assert.IsType(t, RoundClosed{}, env.Event())
}

func TestEmitter_NilIsNoop(t *testing.T) {
	var emitter *Emitter
	assert.NotPanics(t, func() {
		emitter.Emit(context.Background(), RoundCreated{TournamentID: 1, Round: 1})
	})
}

func TestRoundCreated_WireShape(t *testing.T) {
	env, err := NewEnvelope(RoundCreated{TournamentID: 3, Round: 2}, clockwork.NewFakeClock().Now())
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(env.Payload, &decoded))
	assert.Equal(t, float64(3), decoded["tournament_id"])
	assert.Equal(t, float64(2), decoded["round"])
	assert.Contains(t, decoded, "battles")
}
