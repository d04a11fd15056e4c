package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Kedhareswer/thesisflow-ai-sub006/internal/stream"
)

var ErrNotFound = errors.New("session not found")

// Session is the server-side bookkeeping for one open SSE stream.
type Session struct {
	ID        string    `json:"session_id"`
	Endpoint  string    `json:"endpoint"`
	UserID    string    `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
}

type tracked struct {
	session Session
	handle  stream.Handle
}

// Manager tracks live streams and cancels those idle past the maximum age,
// so a stalled upstream cannot pin a connection forever. Streams that keep
// emitting are left alone regardless of total duration.
type Manager struct {
	mu       sync.RWMutex
	streams  map[string]tracked
	maxIdle  time.Duration
	onExpire func(Session)
}

func NewManager(maxIdle time.Duration) *Manager {
	if maxIdle <= 0 {
		maxIdle = 10 * time.Minute
	}
	return &Manager{
		streams: make(map[string]tracked),
		maxIdle: maxIdle,
	}
}

func (m *Manager) SetExpireHook(hook func(Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

// Track registers a live stream. The returned release must be called when the
// stream closes; it is safe to call more than once.
func (m *Manager) Track(id, endpoint, userID string, h stream.Handle) func() {
	s := Session{
		ID:        id,
		Endpoint:  endpoint,
		UserID:    userID,
		StartedAt: time.Now().UTC(),
	}

	m.mu.Lock()
	m.streams[id] = tracked{session: s, handle: h}
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.streams, id)
		m.mu.Unlock()
	}
}

func (m *Manager) Get(id string) (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	tr, ok := m.streams[id]
	if !ok {
		return Session{}, ErrNotFound
	}
	return tr.session, nil
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.streams)
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireStale()
			}
		}
	}()
}

func (m *Manager) expireStale() {
	now := time.Now()
	var expired []tracked

	m.mu.Lock()
	for id, tr := range m.streams {
		last := tr.session.StartedAt
		if tr.handle != nil {
			last = tr.handle.LastActivity()
		}
		if now.Sub(last) < m.maxIdle {
			continue
		}
		expired = append(expired, tr)
		delete(m.streams, id)
	}
	hook := m.onExpire
	m.mu.Unlock()

	for _, tr := range expired {
		if tr.handle != nil {
			// Host-side cancel: the client is still connected, so this
			// surfaces as a terminal error frame, not a silent close.
			tr.handle.Cancel("stream cancelled: idle timeout")
		}
		if hook != nil {
			hook(tr.session)
		}
	}
}
