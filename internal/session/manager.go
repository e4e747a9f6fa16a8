package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Manager hands out Session objects by console key. Active sessions are
// cached so every request of the same browser shares one Session (and its
// subscriptions); sessions are forgotten when they end or expire.
type Manager struct {
	store  Store
	logger *zap.Logger

	mu   sync.Mutex
	live map[string]*Session

	listenersMu sync.RWMutex
	listeners   []func(Event)
}

// NewManager creates a manager backed by store.
func NewManager(store Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		store:  store,
		logger: logger,
		live:   make(map[string]*Session),
	}
}

// NewKey returns a fresh random console key.
func (m *Manager) NewKey() string {
	return uuid.NewString()
}

// Get returns the session stored under key. An unknown key yields an empty,
// inactive session that becomes tracked once Begin succeeds.
func (m *Manager) Get(ctx context.Context, key string) (*Session, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	now := time.Now()
	m.mu.Lock()
	if s, ok := m.live[key]; ok {
		m.mu.Unlock()
		s.touch(now)
		return s, nil
	}
	m.mu.Unlock()

	s := m.newSession(key)
	s.touch(now)
	rec, err := m.store.Load(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		return s, nil
	case err != nil:
		return nil, err
	}
	s.rec = *rec

	if rec.Active() {
		m.mu.Lock()
		// Another request may have loaded the same key meanwhile.
		if existing, ok := m.live[key]; ok {
			m.mu.Unlock()
			existing.touch(now)
			return existing, nil
		}
		m.live[key] = s
		m.mu.Unlock()
	}
	return s, nil
}

// OnExpired registers fn for expiry events of every managed session.
func (m *Manager) OnExpired(fn func(Event)) {
	m.listenersMu.Lock()
	m.listeners = append(m.listeners, fn)
	m.listenersMu.Unlock()
}

// Live returns the number of tracked active sessions.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Store returns the underlying store.
func (m *Manager) Store() Store { return m.store }

// Discard forgets the session stored under key and deletes its record. It
// is used to retire a key that must not be used again, such as the key a
// browser presented before logging in.
func (m *Manager) Discard(ctx context.Context, key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	m.mu.Lock()
	delete(m.live, key)
	m.mu.Unlock()
	return m.store.Delete(ctx, key)
}

// EvictIdle drops cached sessions not used since cutoff and returns how
// many were dropped. Their records stay in the store, so a later request
// with the same key restores them.
func (m *Manager) EvictIdle(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key, s := range m.live {
		if s.idleSince().Before(cutoff) {
			delete(m.live, key)
			n++
		}
	}
	return n
}

func (m *Manager) newSession(key string) *Session {
	s := New(key, m.store, m.logger)
	s.onChange = m.track
	return s
}

func (m *Manager) track(s *Session, active bool, ev *Event) {
	m.mu.Lock()
	if active {
		m.live[s.key] = s
	} else if m.live[s.key] == s {
		delete(m.live, s.key)
	}
	m.mu.Unlock()

	if ev == nil || ev.Reason != ReasonExpired {
		return
	}

	m.listenersMu.RLock()
	listeners := append([]func(Event){}, m.listeners...)
	m.listenersMu.RUnlock()
	for _, fn := range listeners {
		fn(*ev)
	}
}

// purger is implemented by stores that can drop stale inactive records.
type purger interface {
	PurgeInactive(ctx context.Context, cutoff time.Time) (int, error)
}

// RunJanitor runs until ctx is done. Every interval it evicts cached
// sessions idle for longer than maxAge and, when the store supports it,
// removes inactive records older than maxAge.
func (m *Manager) RunJanitor(ctx context.Context, interval, maxAge time.Duration) {
	p, canPurge := m.store.(purger)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-maxAge)
			if n := m.EvictIdle(cutoff); n > 0 {
				m.logger.Debug("evicted idle sessions", zap.Int("count", n))
			}
			if !canPurge {
				continue
			}
			n, err := p.PurgeInactive(ctx, cutoff)
			if err != nil {
				m.logger.Warn("session purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				m.logger.Info("purged inactive sessions", zap.Int("count", n))
			}
		}
	}
}
