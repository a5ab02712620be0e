package inmemory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mohammad-safakhou/newspulse/models"
	"github.com/mohammad-safakhou/newspulse/session"
)

type entry struct {
	turns     []models.Turn
	expiresAt time.Time
}

// Store keeps sessions in process memory. Expiry is enforced lazily on
// read and by the periodic Sweep; restarts lose all sessions.
type Store struct {
	ttl      time.Duration
	maxTurns int

	mu       sync.RWMutex
	sessions map[string]*entry
}

func NewInMemorySessionStore(ttl time.Duration, maxTurns int) *Store {
	return &Store{
		ttl:      ttl,
		maxTurns: maxTurns,
		sessions: make(map[string]*entry),
	}
}

func (s *Store) GetOrCreate(ctx context.Context, id string) (string, bool, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		id = uuid.NewString()
	}
	if e, ok := s.sessions[id]; ok && e.expiresAt.After(now) {
		e.expiresAt = now.Add(s.ttl)
		return id, false, nil
	}
	// Unknown (or expired) ids are created under the supplied id so
	// client-minted sessions keep their history across requests.
	s.sessions[id] = &entry{expiresAt: now.Add(s.ttl)}
	return id, true, nil
}

func (s *Store) History(ctx context.Context, id string) ([]models.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok || !e.expiresAt.After(time.Now()) {
		return nil, nil
	}
	out := make([]models.Turn, len(e.turns))
	copy(out, e.turns)
	return out, nil
}

func (s *Store) AppendExchange(ctx context.Context, id string, user, assistant models.Turn) error {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok || !e.expiresAt.After(now) {
		e = &entry{}
		s.sessions[id] = e
	}
	e.turns = append(e.turns, user, assistant)
	if s.maxTurns > 0 && len(e.turns) > s.maxTurns {
		e.turns = e.turns[len(e.turns)-s.maxTurns:]
	}
	e.expiresAt = now.Add(s.ttl)
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

func (s *Store) Sweep(ctx context.Context) (int, error) {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int
	for id, e := range s.sessions {
		if !e.expiresAt.After(now) {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

func (s *Store) Stats(ctx context.Context) (session.Stats, error) {
	now := time.Now()
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := session.Stats{
		TTL:        s.ttl,
		TTLMinutes: int(s.ttl / time.Minute),
		Backend:    "inmemory",
	}
	for _, e := range s.sessions {
		if e.expiresAt.After(now) {
			st.ActiveSessions++
			st.TotalTurns += len(e.turns)
		}
	}
	return st, nil
}
