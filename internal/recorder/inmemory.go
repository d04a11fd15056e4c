package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process store for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	keyed   map[string]map[string]StreamRecord
	keyless map[string][]StreamRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		keyed:   make(map[string]map[string]StreamRecord),
		keyless: make(map[string][]StreamRecord),
	}
}

func (s *InMemoryStore) SaveEvent(_ context.Context, rec StreamRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	if rec.StableKey == "" {
		s.keyless[rec.SessionID] = append(s.keyless[rec.SessionID], rec)
		return nil
	}
	items, ok := s.keyed[rec.SessionID]
	if !ok {
		items = make(map[string]StreamRecord)
		s.keyed[rec.SessionID] = items
	}
	items[rec.StableKey] = rec
	return nil
}

// Events returns every record for a session, lifecycle events first.
func (s *InMemoryStore) Events(sessionID string) []StreamRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]StreamRecord(nil), s.keyless[sessionID]...)
	for _, rec := range s.keyed[sessionID] {
		out = append(out, rec)
	}
	return out
}

func (s *InMemoryStore) Close() error { return nil }
