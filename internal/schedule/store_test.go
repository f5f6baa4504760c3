package schedule

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/cinema-showtime-scheduler/internal/model"
	"github.com/iliyamo/cinema-showtime-scheduler/internal/repository"
)

// memStore is an in-memory Store.  Insert and Update hold the mutex
// while checking for overlap, which gives the same exclusion guarantee
// the database constraint gives in production.
type memStore struct {
	mu     sync.Mutex
	movies map[uint64]model.Movie
	halls  map[uint64]bool
	rows   map[uint64]*model.Showtime
	nextID uint64

	// insertErrs are returned, one per call, before anything is written.
	insertErrs []error
	// lostAcks makes that many inserts commit and still report a
	// transient failure, like a dropped connection after COMMIT.
	lostAcks int
	// onList runs after ListActiveInWindow takes its snapshot.
	onList func()
}

func newMemStore() *memStore {
	return &memStore{
		movies: map[uint64]model.Movie{},
		halls:  map[uint64]bool{},
		rows:   map[uint64]*model.Showtime{},
	}
}

func (m *memStore) addMovie(id uint64, minutes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.movies[id] = model.Movie{ID: id, Title: fmt.Sprintf("movie-%d", id), DurationMin: minutes}
}

func (m *memStore) addHall(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.halls[id] = true
}

// seed stores a showtime directly, bypassing every rule.
func (m *memStore) seed(s model.Showtime) model.Showtime {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	if s.Status == "" {
		s.Status = model.StatusActive
	}
	cp := s
	m.rows[s.ID] = &cp
	return s
}

func (m *memStore) liveCount(hallID uint64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.rows {
		if r.HallID == hallID && r.Live() {
			n++
		}
	}
	return n
}

func (m *memStore) GetMovie(_ context.Context, id uint64) (*model.Movie, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mv, ok := m.movies[id]
	if !ok {
		return nil, repository.ErrMovieNotFound
	}
	return &mv, nil
}

func (m *memStore) GetShowtime(_ context.Context, id uint64) (*model.Showtime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.DeletedAt != nil {
		return nil, repository.ErrShowtimeNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memStore) ListActiveInWindow(_ context.Context, hallID uint64, start, end time.Time, excludeID uint64) ([]model.Showtime, error) {
	m.mu.Lock()
	out := make([]model.Showtime, 0)
	for _, r := range m.rows {
		if r.HallID == hallID && r.ID != excludeID && r.Live() &&
			r.StartsAt.Before(end) && r.EndsAt.After(start) {
			out = append(out, *r)
		}
	}
	hook := m.onList
	m.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, nil
}

func (m *memStore) ListByHall(_ context.Context, hallID uint64) ([]model.Showtime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Showtime, 0)
	for _, r := range m.rows {
		if r.HallID == hallID && r.DeletedAt == nil {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (m *memStore) clashes(s *model.Showtime) bool {
	for _, r := range m.rows {
		if r.ID != s.ID && r.HallID == s.HallID && r.Live() &&
			r.StartsAt.Before(s.EndsAt) && s.StartsAt.Before(r.EndsAt) {
			return true
		}
	}
	return false
}

func (m *memStore) Insert(_ context.Context, s *model.Showtime) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.insertErrs) > 0 {
		err := m.insertErrs[0]
		m.insertErrs = m.insertErrs[1:]
		return err
	}
	if !m.halls[s.HallID] {
		return repository.ErrHallNotFound
	}
	if s.Live() && m.clashes(s) {
		return repository.ErrOverlap
	}
	m.nextID++
	s.ID = m.nextID
	cp := *s
	m.rows[s.ID] = &cp
	if m.lostAcks > 0 {
		m.lostAcks--
		return fmt.Errorf("insert showtime: %w: connection reset", repository.ErrTransient)
	}
	return nil
}

func (m *memStore) Update(_ context.Context, s *model.Showtime) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[s.ID]
	if !ok || r.DeletedAt != nil {
		return repository.ErrShowtimeNotFound
	}
	if !m.halls[s.HallID] {
		return repository.ErrHallNotFound
	}
	if s.Live() && m.clashes(s) {
		return repository.ErrOverlap
	}
	cp := *s
	m.rows[s.ID] = &cp
	return nil
}

func (m *memStore) SoftDelete(_ context.Context, id uint64, by *uint64) (*model.Showtime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok || r.DeletedAt != nil {
		return nil, repository.ErrShowtimeNotFound
	}
	now := time.Now().UTC()
	r.DeletedAt = &now
	r.Status = model.StatusCancelled
	r.UpdatedBy = by
	cp := *r
	return &cp, nil
}

type recordedEvent struct {
	action string
	id     uint64
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []recordedEvent
	err    error
}

func (f *fakeNotifier) NotifyShowtime(_ context.Context, action string, s model.Showtime) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{action: action, id: s.ID})
	return f.err
}

type fakeRecorder struct {
	mu        sync.Mutex
	writes    map[string]int
	conflicts map[string]int
	items     map[Kind]int
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{writes: map[string]int{}, conflicts: map[string]int{}, items: map[Kind]int{}}
}

func (f *fakeRecorder) Write(op string, kind Kind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes[op+"/"+string(kind)]++
}

func (f *fakeRecorder) Conflict(source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conflicts[source]++
}

func (f *fakeRecorder) BatchItem(kind Kind) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items[kind]++
}
