package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Dosada05/tournament-engine/events"
	"github.com/Dosada05/tournament-engine/metrics"
	"github.com/Dosada05/tournament-engine/repositories"
	"github.com/jonboulle/clockwork"
)

// Deps carries the collaborators shared by the bracket services. Set Locks
// so services built from the same Deps exclude each other per tournament.
type Deps struct {
	Tx             Transactor
	Tournaments    repositories.TournamentRepository
	Participants   repositories.ParticipantRepository
	Qualifications repositories.QualificationRepository
	Battles        repositories.BattleRepository
	Emitter        EventEmitter
	Clock          clockwork.Clock
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Locks          *TournamentLocks
}

// withDefaults fills optional collaborators.
func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Locks == nil {
		d.Locks = NewTournamentLocks()
	}
	if d.Emitter == nil {
		d.Emitter = noopEmitter{}
	}
	return d
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, events.Event) {}

// Transactor runs fn inside one database transaction. *db.TxManager implements it.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error
}

type EventEmitter interface {
	Emit(ctx context.Context, ev events.Event)
}

// AdvanceEnqueuer schedules a Round Advancement run for a tournament.
type AdvanceEnqueuer interface {
	EnqueueAdvanceRound(ctx context.Context, tournamentID int) error
}

// TournamentLocks serializes work on the same tournament inside one process.
// Cross-process exclusion comes from the row lock taken in the transaction.
type TournamentLocks struct {
	mu    sync.Mutex
	locks map[int]*tournamentLock
}

type tournamentLock struct {
	mu   sync.Mutex
	refs int
}

func NewTournamentLocks() *TournamentLocks {
	return &TournamentLocks{locks: make(map[int]*tournamentLock)}
}

// Lock blocks until the caller owns tournamentID and returns the release func.
func (l *TournamentLocks) Lock(tournamentID int) func() {
	l.mu.Lock()
	entry, ok := l.locks[tournamentID]
	if !ok {
		entry = &tournamentLock{}
		l.locks[tournamentID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, tournamentID)
		}
		l.mu.Unlock()
	}
}
