package core

import (
	"sync"

	"github.com/qcr/abb-libegm/internal/domain"
)

// SessionTracker publishes the latest header/status pair to concurrent readers. There
// is a single writer (the orchestrator); header and status always move together.
type SessionTracker struct {
	mu   sync.Mutex
	id   string
	data domain.SessionData
}

// Begin records the identifier of a new session. The previous session's data stays
// visible until the first update.
func (s *SessionTracker) Begin(id string) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
}

func (s *SessionTracker) Update(h domain.Header, st domain.Status) {
	s.mu.Lock()
	s.data = domain.SessionData{Header: h, Status: st}
	s.mu.Unlock()
}

func (s *SessionTracker) Snapshot() domain.SessionData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

func (s *SessionTracker) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}
