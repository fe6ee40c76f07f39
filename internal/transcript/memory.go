package transcript

import (
	"context"
	"sync"
	"time"

	"tabletalk-web/internal/models"
)

type memorySession struct {
	entries  []models.TranscriptEntry
	lastSeen time.Time
}

// MemoryStore keeps transcripts in process. Sessions idle for longer than
// the TTL read as empty and are reclaimed by Sweep.
type MemoryStore struct {
	mu          sync.RWMutex
	sessions    map[string]*memorySession
	maxMessages int
	ttl         time.Duration
	now         func() time.Time
}

func NewMemoryStore(maxMessages int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*memorySession),
		maxMessages: maxMessages,
		ttl:         ttl,
		now:         time.Now,
	}
}

func (s *MemoryStore) Append(ctx context.Context, entry models.TranscriptEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	sess, ok := s.sessions[entry.SessionID]
	if !ok || s.expired(sess, now) {
		sess = &memorySession{}
		s.sessions[entry.SessionID] = sess
	}

	sess.entries = append(sess.entries, entry)
	if over := len(sess.entries) - s.maxMessages; s.maxMessages > 0 && over > 0 {
		sess.entries = append([]models.TranscriptEntry(nil), sess.entries[over:]...)
	}
	sess.lastSeen = now
	return nil
}

func (s *MemoryStore) List(ctx context.Context, sessionID string, limit int) ([]models.TranscriptEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok || s.expired(sess, s.now()) {
		return []models.TranscriptEntry{}, nil
	}
	return tail(sess.entries, limit), nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*memorySession)
	return nil
}

func (s *MemoryStore) expired(sess *memorySession, now time.Time) bool {
	return s.ttl > 0 && now.Sub(sess.lastSeen) > s.ttl
}

// Sweep drops every session idle for longer than the TTL and reports how
// many were removed.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if s.expired(sess, now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
