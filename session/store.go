package session

import (
	"errors"
	"sync"
	"time"

	"github.com/giygas/rxwriter/interfaces"
	"github.com/giygas/rxwriter/logging"
	"github.com/giygas/rxwriter/metrics"
	"github.com/google/uuid"
)

// Compile-time check to ensure Store implements SessionSweeper
var _ interfaces.SessionSweeper = (*Store)(nil)

var (
	// ErrNotFound is returned for unknown or expired session IDs
	ErrNotFound = errors.New("session not found")
	// ErrStoreFull is returned by Create when the store is at capacity
	ErrStoreFull = errors.New("session store is full")
)

const (
	DefaultTTL         = 2 * time.Hour
	DefaultMaxSessions = 10000
)

// Store keeps sessions in memory, keyed by a random UUID
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

func NewStore(ttl time.Duration, capacity int) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultMaxSessions
	}
	return &Store{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// Create starts an empty session
func (st *Store) Create() (*Session, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if len(st.sessions) >= st.capacity {
		return nil, ErrStoreFull
	}

	id := uuid.NewString()
	s := newSession(id, st.now())
	st.sessions[id] = s
	metrics.SessionsActive.Set(float64(len(st.sessions)))

	return s, nil
}

// Get returns the session with id and refreshes its idle timer
func (st *Store) Get(id string) (*Session, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	st.mu.RLock()
	s, ok := st.sessions[id]
	st.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	s.touch(st.now())
	return s, nil
}

func (st *Store) Delete(id string) error {
	st.mu.Lock()
	s, ok := st.sessions[id]
	if ok {
		delete(st.sessions, id)
		metrics.SessionsActive.Set(float64(len(st.sessions)))
	}
	st.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	s.close()
	return nil
}

func (st *Store) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.sessions)
}

func (st *Store) Capacity() int {
	return st.capacity
}

// Sweep removes the sessions idle for longer than the TTL at now
func (st *Store) Sweep(now time.Time) int {
	cutoff := now.Add(-st.ttl)

	st.mu.Lock()
	var expired []*Session
	for id, s := range st.sessions {
		if s.idleSince().Before(cutoff) {
			expired = append(expired, s)
			delete(st.sessions, id)
		}
	}
	remaining := len(st.sessions)
	st.mu.Unlock()

	for _, s := range expired {
		s.close()
	}

	metrics.SessionsActive.Set(float64(remaining))
	metrics.SessionsExpired.Add(float64(len(expired)))
	if len(expired) > 0 {
		logging.Info("Expired idle sessions", "removed", len(expired), "remaining", remaining)
	}
	return len(expired)
}
