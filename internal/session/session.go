package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Reason says why a session stopped being active.
type Reason string

const (
	ReasonLogout  Reason = "logout"
	ReasonExpired Reason = "expired"
)

// Event is delivered to expiry subscribers.
type Event struct {
	Key    string
	UserID string
	Reason Reason
	At     time.Time
}

// Session is the explicit login context of one console user (one browser, or
// the CLI). It is safe for concurrent use.
type Session struct {
	key    string
	store  Store
	logger *zap.Logger

	mu       sync.RWMutex
	rec      Record
	nextID   int
	subs     map[int]func(Event)
	values   map[string]interface{}
	lastSeen time.Time

	// onChange lets the owning Manager track activation and teardown.
	onChange func(s *Session, active bool, ev *Event)
}

// New creates a session bound to key and store with an empty record.
// Most callers obtain sessions through a Manager instead.
func New(key string, store Store, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		key:    key,
		store:  store,
		logger: logger,
		subs:   make(map[int]func(Event)),
	}
}

// Key returns the console key this session is stored under.
func (s *Session) Key() string { return s.key }

// Token returns the backend session token, or "" when logged out.
func (s *Session) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Token
}

// UserID returns the identifier of the last user who logged in. It is kept
// after logout so forms can be prefilled.
func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.UserID
}

// Active reports whether the session holds a backend token.
func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Active()
}

// Begin initialises the session after a successful login and persists it.
func (s *Session) Begin(ctx context.Context, userID, token string) error {
	if userID == "" || token == "" {
		return errors.New("session: user id and token are required")
	}

	s.mu.Lock()
	prev := s.rec
	s.rec.UserID = userID
	s.rec.Token = token
	s.rec.UpdatedAt = time.Now().UTC()
	if !prev.Active() {
		s.rec.CreatedAt = s.rec.UpdatedAt
	}
	rec := s.rec
	s.mu.Unlock()

	if err := s.store.Save(ctx, s.key, rec); err != nil {
		s.mu.Lock()
		s.rec = prev
		s.mu.Unlock()
		return err
	}

	s.logger.Debug("session started", zap.String("key", s.key), zap.String("user_id", userID))
	if s.onChange != nil {
		s.onChange(s, true, nil)
	}
	return nil
}

// End tears the session down after logout. Subscribers are not notified:
// logout is initiated by the user, not observed from the backend.
func (s *Session) End(ctx context.Context) error {
	_, err := s.clear(ctx, ReasonLogout)
	return err
}

// Expire clears the token after the backend rejected it and notifies every
// subscriber. Expiring an inactive session is a no-op, so concurrent 401s
// produce a single notification.
func (s *Session) Expire(ctx context.Context) error {
	ev, err := s.clear(ctx, ReasonExpired)
	if ev == nil {
		return err
	}

	s.mu.RLock()
	subs := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(*ev)
	}
	return err
}

// clear drops the token and persists the result. It returns the event
// describing the transition, or nil when the session was already inactive.
func (s *Session) clear(ctx context.Context, reason Reason) (*Event, error) {
	s.mu.Lock()
	if !s.rec.Active() {
		s.mu.Unlock()
		return nil, nil
	}
	s.rec.Token = ""
	s.rec.UpdatedAt = time.Now().UTC()
	s.values = nil
	rec := s.rec
	s.mu.Unlock()

	ev := &Event{Key: s.key, UserID: rec.UserID, Reason: reason, At: rec.UpdatedAt}

	// The in-memory state is cleared even if persisting fails: a token the
	// backend rejected must never be sent again.
	err := s.store.Save(ctx, s.key, rec)
	if err != nil {
		s.logger.Warn("failed to persist session teardown",
			zap.String("key", s.key), zap.String("reason", string(reason)), zap.Error(err))
	} else {
		s.logger.Debug("session ended", zap.String("key", s.key), zap.String("reason", string(reason)))
	}

	if s.onChange != nil {
		s.onChange(s, false, ev)
	}
	return ev, err
}

// OnExpired registers fn to be called when the session expires. The returned
// function removes the subscription.
func (s *Session) OnExpired(fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// Value returns the value attached to the session under name, creating it
// with create on first use. Attached values hold per-user view state; they
// are dropped when the session ends or expires and are never persisted.
func (s *Session) Value(name string, create func() interface{}) interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.values[name]; ok {
		return v
	}
	if s.values == nil {
		s.values = make(map[string]interface{})
	}
	v := create()
	s.values[name] = v
	return v
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}
