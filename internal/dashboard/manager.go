package dashboard

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"vantage/internal/netinfo"
)

// Manager keeps dashboard sessions in memory and expires idle ones.
type Manager struct {
	fetcher netinfo.Fetcher
	ttl     time.Duration

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(fetcher netinfo.Fetcher, ttl time.Duration) *Manager {
	return &Manager{
		fetcher:  fetcher,
		ttl:      ttl,
		sessions: make(map[string]*Session),
	}
}

// Open returns the session for id, creating an empty one on first use.
func (m *Manager) Open(id string) *Session {
	now := time.Now()
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		s = NewSession(id, m.fetcher)
		m.sessions[id] = s
	}
	m.mu.Unlock()
	s.touch(now)
	return s
}

// Get returns the session for id, or nil.
func (m *Manager) Get(id string) *Session {
	m.mu.Lock()
	s := m.sessions[id]
	m.mu.Unlock()
	if s != nil {
		s.touch(time.Now())
	}
	return s
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep drops sessions idle for longer than the TTL and returns how many went.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, s := range m.sessions {
		if s.idleSince(now) > m.ttl {
			s.Close()
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// Run sweeps on every tick until ctx is done, then closes all sessions.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.closeAll()
			return
		case now := <-ticker.C:
			if n := m.Sweep(now); n > 0 {
				log.WithField("component", "dashboard").Debugf("expired %d idle sessions", n)
			}
		}
	}
}

func (m *Manager) closeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.Close()
		delete(m.sessions, id)
	}
}
