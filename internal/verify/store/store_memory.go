package store

import (
	"context"
	"sync"

	"medgate/internal/verify"
	"medgate/pkg/platform/sentinel"
)

// MemoryStore keeps the session in process memory. Used in tests and when no
// Redis is configured; durability across restarts is then lost, which the
// pipeline tolerates by starting fresh.
type MemoryStore struct {
	mu      sync.RWMutex
	session verify.Session
	present bool
}

var _ SessionStore = (*MemoryStore)(nil)

func NewMemory() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(_ context.Context) (verify.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.present || s.session.Version != verify.SessionVersion {
		return verify.Session{}, sentinel.ErrNotFound
	}
	return s.session, nil
}

func (s *MemoryStore) Save(_ context.Context, sess verify.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = sess
	s.present = true
	return nil
}

func (s *MemoryStore) Delete(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = verify.Session{}
	s.present = false
	return nil
}
