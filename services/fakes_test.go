package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/tournament-engine/brackets"
	"github.com/Dosada05/tournament-engine/events"
	"github.com/Dosada05/tournament-engine/models"
	"github.com/Dosada05/tournament-engine/repositories"
	"github.com/jonboulle/clockwork"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

const (
	playerA = 101
	playerB = 102
	playerC = 103
	playerD = 104
)

func intPtr(v int) *int { return &v }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory stand-in for the Postgres repositories. WithinTx
// snapshots the data and restores it when the unit of work fails.
type memStore struct {
	mu           sync.Mutex
	txMu         sync.Mutex
	tournaments  map[int]*models.Tournament
	participants []models.TournamentParticipant
	attempts     []models.QualificationAttempt
	battles      []*models.Battle
	nextBattleID int

	createBatchErr error
	listDueErr     error
	lockErr        map[int]error
	txCount        int
}

func newMemStore() *memStore {
	return &memStore{
		tournaments:  make(map[int]*models.Tournament),
		nextBattleID: 1,
		lockErr:      make(map[int]error),
	}
}

func (s *memStore) addTournament(t models.Tournament) *models.Tournament {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := t
	s.tournaments[t.ID] = &cp
	return &cp
}

func (s *memStore) approve(tournamentID int, players ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range players {
		s.participants = append(s.participants, models.TournamentParticipant{
			ID:           len(s.participants) + 1,
			TournamentID: tournamentID,
			PlayerID:     p,
			Status:       models.ParticipantApproved,
		})
	}
}

func (s *memStore) addAttempt(tournamentID, player int, score float64, duration *int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts = append(s.attempts, models.QualificationAttempt{
		ID:              len(s.attempts) + 1,
		TournamentID:    tournamentID,
		PlayerID:        player,
		Score:           score,
		DurationSeconds: duration,
	})
}

func (s *memStore) insertBattles(battles ...*models.Battle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range battles {
		cp := *b
		cp.ID = s.nextBattleID
		s.nextBattleID++
		b.ID = cp.ID
		s.battles = append(s.battles, &cp)
	}
}

func (s *memStore) tournament(id int) models.Tournament {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tournaments[id]
}

func (s *memStore) battlesOf(tournamentID, round int) []models.Battle {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Battle
	for _, b := range s.battles {
		if b.TournamentID == tournamentID && b.Round == round {
			out = append(out, *b)
		}
	}
	return out
}

func (s *memStore) battleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.battles)
}

// complete marks a stored battle completed with winner, bypassing the service.
func (s *memStore) complete(battleID, winner int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.battles {
		if b.ID == battleID {
			b.Status = models.BattleCompleted
			b.WinnerID = intPtr(winner)
			now := testNow
			b.CompletedAt = &now
		}
	}
}

func (s *memStore) WithinTx(ctx context.Context, fn func(exec repositories.SQLExecutor) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	s.txCount++
	tournaments := make(map[int]models.Tournament, len(s.tournaments))
	for id, t := range s.tournaments {
		tournaments[id] = *t
	}
	battles := make([]models.Battle, len(s.battles))
	for i, b := range s.battles {
		battles[i] = *b
	}
	nextID := s.nextBattleID
	s.mu.Unlock()

	if err := fn(nil); err != nil {
		s.mu.Lock()
		s.tournaments = make(map[int]*models.Tournament, len(tournaments))
		for id, t := range tournaments {
			cp := t
			s.tournaments[id] = &cp
		}
		s.battles = make([]*models.Battle, len(battles))
		for i := range battles {
			cp := battles[i]
			s.battles[i] = &cp
		}
		s.nextBattleID = nextID
		s.mu.Unlock()
		return err
	}
	return nil
}

type fakeTournaments struct{ s *memStore }

func (f fakeTournaments) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Tournament, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	cp := *t
	return &cp, nil
}

func (f fakeTournaments) LockByID(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Tournament, error) {
	f.s.mu.Lock()
	err := f.s.lockErr[id]
	f.s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.GetByID(ctx, exec, id)
}

func (f fakeTournaments) ListDueForQualification(_ context.Context, _ repositories.SQLExecutor, now time.Time) ([]*models.Tournament, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.listDueErr != nil {
		return nil, f.s.listDueErr
	}
	var out []*models.Tournament
	for _, t := range f.s.tournaments {
		if t.Status == models.StatusUpcoming && t.EndDate != nil && !t.EndDate.After(now) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f fakeTournaments) UpdateStatus(_ context.Context, _ repositories.SQLExecutor, id int, status models.TournamentStatus) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = status
	return nil
}

func (f fakeTournaments) Complete(_ context.Context, _ repositories.SQLExecutor, id int, winnerID int) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	t, ok := f.s.tournaments[id]
	if !ok {
		return repositories.ErrTournamentNotFound
	}
	t.Status = models.StatusCompleted
	t.WinnerID = intPtr(winnerID)
	return nil
}

type fakeParticipants struct{ s *memStore }

func (f fakeParticipants) ListApprovedPlayerIDs(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	ids := make([]int, 0)
	for _, p := range f.s.participants {
		if p.TournamentID == tournamentID && p.Status == models.ParticipantApproved {
			ids = append(ids, p.PlayerID)
		}
	}
	return ids, nil
}

type fakeQualifications struct{ s *memStore }

func (f fakeQualifications) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]models.QualificationAttempt, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := make([]models.QualificationAttempt, 0)
	for _, a := range f.s.attempts {
		if a.TournamentID == tournamentID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeBattles struct{ s *memStore }

func (f fakeBattles) CreateBatch(_ context.Context, _ repositories.SQLExecutor, battles []*models.Battle) error {
	f.s.mu.Lock()
	err := f.s.createBatchErr
	f.s.mu.Unlock()
	if err != nil {
		return err
	}
	f.s.insertBattles(battles...)
	return nil
}

func (f fakeBattles) GetByID(_ context.Context, _ repositories.SQLExecutor, id int) (*models.Battle, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, b := range f.s.battles {
		if b.ID == id {
			cp := *b
			return &cp, nil
		}
	}
	return nil, repositories.ErrBattleNotFound
}

func (f fakeBattles) UpdateResult(_ context.Context, _ repositories.SQLExecutor, battle *models.Battle, expected models.BattleStatus) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, b := range f.s.battles {
		if b.ID == battle.ID {
			if b.Status != expected {
				return repositories.ErrBattleStatusConflict
			}
			b.Status = battle.Status
			b.WinnerID = battle.WinnerID
			b.Score = battle.Score
			b.CompletedAt = battle.CompletedAt
			return nil
		}
	}
	return repositories.ErrBattleStatusConflict
}

func (f fakeBattles) MaxRound(_ context.Context, _ repositories.SQLExecutor, tournamentID int) (int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	highest := 0
	for _, b := range f.s.battles {
		if b.TournamentID == tournamentID && b.Round > highest {
			highest = b.Round
		}
	}
	return highest, nil
}

func (f fakeBattles) RoundExists(_ context.Context, _ repositories.SQLExecutor, tournamentID, round int) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, b := range f.s.battles {
		if b.TournamentID == tournamentID && b.Round == round {
			return true, nil
		}
	}
	return false, nil
}

func (f fakeBattles) ListByRound(_ context.Context, _ repositories.SQLExecutor, tournamentID, round int) ([]*models.Battle, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := make([]*models.Battle, 0)
	for _, b := range f.s.battles {
		if b.TournamentID == tournamentID && b.Round == round {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f fakeBattles) ListByTournament(_ context.Context, _ repositories.SQLExecutor, tournamentID int) ([]*models.Battle, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := make([]*models.Battle, 0)
	for _, b := range f.s.battles {
		if b.TournamentID == tournamentID {
			cp := *b
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Round < out[j].Round })
	return out, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingEmitter) Emit(_ context.Context, ev events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEmitter) all() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Event, len(r.events))
	copy(out, r.events)
	return out
}

type harness struct {
	store   *memStore
	emitter *recordingEmitter
	clock   *clockwork.FakeClock
	deps    Deps
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := newMemStore()
	emitter := &recordingEmitter{}
	clock := clockwork.NewFakeClockAt(testNow)
	return &harness{
		store:   store,
		emitter: emitter,
		clock:   clock,
		deps: Deps{
			Tx:             store,
			Tournaments:    fakeTournaments{store},
			Participants:   fakeParticipants{store},
			Qualifications: fakeQualifications{store},
			Battles:        fakeBattles{store},
			Emitter:        emitter,
			Clock:          clock,
			Logger:         discardLogger(),
			Locks:          NewTournamentLocks(),
		},
	}
}

func pairForTest(t *testing.T, tournamentID, round int, players ...int) []*models.Battle {
	t.Helper()
	battles, err := brackets.PairRound(brackets.PairingParams{
		TournamentID: tournamentID,
		Round:        round,
		PlayerIDs:    players,
		ScheduledAt:  testNow,
		Now:          testNow,
	})
	if err != nil {
		t.Fatalf("pair round: %v", err)
	}
	return battles
}

// activeTournament stores an active tournament with round 1 already paired.
func (h *harness) activeTournament(t *testing.T, id int, players ...int) []*models.Battle {
	t.Helper()
	h.store.addTournament(models.Tournament{ID: id, Name: "cup", Status: models.StatusActive, BracketSlots: 8})
	battles := pairForTest(t, id, 1, players...)
	h.store.insertBattles(battles...)
	return battles
}
