package events

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Dosada05/tournament-engine/metrics"
	"github.com/jonboulle/clockwork"
)

type Publisher interface {
	Name() string
	Publish(ctx context.Context, env Envelope) error
}

// Emitter fans an event out to every registered publisher. Delivery is
// best effort: failures are logged and counted but never returned, so a
// broken subscriber cannot undo a committed bracket change.
type Emitter struct {
	clock   clockwork.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu         sync.RWMutex
	publishers []Publisher
}

func NewEmitter(clock clockwork.Clock, logger *slog.Logger, m *metrics.Metrics, publishers ...Publisher) *Emitter {
	return &Emitter{
		clock:      clock,
		logger:     logger.With(slog.String("component", "events")),
		metrics:    m,
		publishers: publishers,
	}
}

func (e *Emitter) Register(p Publisher) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.publishers = append(e.publishers, p)
}

func (e *Emitter) Emit(ctx context.Context, ev Event) {
	if e == nil {
		return
	}
	log := e.logger.With(
		slog.String("event", string(ev.Type())),
		slog.Int("tournament_id", ev.Tournament()),
	)

	env, err := NewEnvelope(ev, e.clock.Now())
	if err != nil {
		log.Error("failed to encode event", slog.Any("error", err))
		return
	}

	e.mu.RLock()
	publishers := make([]Publisher, len(e.publishers))
	copy(publishers, e.publishers)
	e.mu.RUnlock()

	for _, p := range publishers {
		if err := e.publish(ctx, p, env); err != nil {
			e.metrics.PublishFailed(p.Name())
			log.Error("failed to publish event", slog.String("publisher", p.Name()), slog.Any("error", err))
		}
	}
	log.Debug("event emitted", slog.Int("publishers", len(publishers)))
}

func (e *Emitter) publish(ctx context.Context, p Publisher, env Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("publisher panicked: %v", r)
		}
	}()
	return p.Publish(ctx, env)
}
