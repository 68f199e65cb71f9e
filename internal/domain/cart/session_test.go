package cart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_CreateAndWith(t *testing.T) {
	s := NewSessionStore(time.Hour)
	id := s.Create()

	err := s.With(id, func(c *Cart) error {
		c.AddCustom("fee", dec("1.00"), false)
		return nil
	})
	require.NoError(t, err)

	err = s.With(id, func(c *Cart) error {
		assert.Equal(t, 1, c.Len())
		return nil
	})
	require.NoError(t, err)
}

func TestSessionStore_UnknownSession(t *testing.T) {
	s := NewSessionStore(time.Hour)
	err := s.With("missing", func(*Cart) error { return nil })
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStore_ExpiredSessionTreatedAsMissing(t *testing.T) {
	s := NewSessionStore(time.Minute)
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	id := s.Create()
	current = current.Add(2 * time.Minute)

	err := s.With(id, func(*Cart) error { return nil })
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStore_Delete(t *testing.T) {
	s := NewSessionStore(time.Hour)
	id := s.Create()
	s.Delete(id)

	err := s.With(id, func(*Cart) error { return nil })
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionStore_Evict(t *testing.T) {
	s := NewSessionStore(time.Minute)
	current := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return current }

	stale := s.Create()
	current = current.Add(2 * time.Minute)
	fresh := s.Create()

	assert.Equal(t, 1, s.Evict())

	assert.ErrorIs(t, s.With(stale, func(*Cart) error { return nil }), ErrSessionNotFound)
	assert.NoError(t, s.With(fresh, func(*Cart) error { return nil }))
}
