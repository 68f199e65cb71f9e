package cart

import (
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session ID is unknown or expired.
var ErrSessionNotFound = errors.New("cart session not found")

// DefaultSessionTTL is how long an idle POS session is kept before eviction.
const DefaultSessionTTL = 4 * time.Hour

type session struct {
	cart     *Cart
	lastUsed time.Time
}

// SessionStore holds the active POS carts keyed by session ID. A single
// operator drives a given cart, but different operators hit the store
// concurrently, so access is serialised here rather than in Cart.
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session
	ttl      time.Duration
	now      func() time.Time
}

// NewSessionStore creates a store with the given idle TTL. A non-positive TTL
// falls back to DefaultSessionTTL.
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		sessions: make(map[string]*session),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create opens a new empty cart session and returns its ID.
func (s *SessionStore) Create() string {
	id := uuid.New().String()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = &session{cart: New(), lastUsed: s.now()}
	return id
}

// With runs fn against the session's cart while holding the store lock,
// keeping cart mutations race-free across requests. Expired sessions are
// treated as missing.
func (s *SessionStore) With(id string, fn func(*Cart) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok || s.now().Sub(sess.lastUsed) > s.ttl {
		delete(s.sessions, id)
		return ErrSessionNotFound
	}
	sess.lastUsed = s.now()
	return fn(sess.cart)
}

// Delete removes a session, typically after checkout.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Evict drops sessions idle beyond the TTL and returns how many were removed.
// Intended to be called periodically from the application wiring.
func (s *SessionStore) Evict() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
