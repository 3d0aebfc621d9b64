package queue

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
)

// Dispatcher enqueues typed payloads for immediate execution.
type Dispatcher struct {
	broker Broker
	clock  clockwork.Clock
}

func NewDispatcher(broker Broker, clock clockwork.Clock) *Dispatcher {
	return &Dispatcher{broker: broker, clock: clock}
}

func (d *Dispatcher) EnqueueAdvanceRound(ctx context.Context, tournamentID int) error {
	now := d.clock.Now()
	job, err := NewAdvanceRoundJob(tournamentID, now)
	if err != nil {
		return err
	}
	if err := d.broker.Enqueue(ctx, job, now); err != nil {
		return fmt.Errorf("failed to enqueue advance for tournament %d: %w", tournamentID, err)
	}
	return nil
}
