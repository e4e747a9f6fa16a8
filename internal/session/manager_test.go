package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/scrypster/xmemory/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestManager_GetUnknownKeyIsInactive(t *testing.T) {
	m := session.NewManager(session.NewMemoryStore(), zaptest.NewLogger(t))
	s, err := m.Get(context.Background(), m.NewKey())
	require.NoError(t, err)
	assert.False(t, s.Active())
	assert.Equal(t, 0, m.Live(), "anonymous sessions are not cached")
}

func TestManager_EmptyKey(t *testing.T) {
	m := session.NewManager(session.NewMemoryStore(), nil)
	_, err := m.Get(context.Background(), "")
	assert.ErrorIs(t, err, session.ErrInvalidKey)
}

func TestManager_SharesActiveSession(t *testing.T) {
	ctx := context.Background()
	m := session.NewManager(session.NewMemoryStore(), nil)
	key := m.NewKey()

	s1, err := m.Get(ctx, key)
	require.NoError(t, err)
	require.NoError(t, s1.Begin(ctx, "alice", "tok"))
	assert.Equal(t, 1, m.Live())

	s2, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	require.NoError(t, s2.End(ctx))
	assert.Equal(t, 0, m.Live())
}

func TestManager_RestoresPersistedSession(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	require.NoError(t, store.Save(ctx, "persisted", session.Record{UserID: "bob", Token: "tok"}))

	m := session.NewManager(store, nil)
	s, err := m.Get(ctx, "persisted")
	require.NoError(t, err)
	assert.True(t, s.Active())
	assert.Equal(t, "bob", s.UserID())
	assert.Equal(t, 1, m.Live())
}

func TestManager_OnExpiredFansOut(t *testing.T) {
	ctx := context.Background()
	m := session.NewManager(session.NewMemoryStore(), nil)

	var events []session.Event
	m.OnExpired(func(ev session.Event) { events = append(events, ev) })

	a, _ := m.Get(ctx, "a")
	b, _ := m.Get(ctx, "b")
	require.NoError(t, a.Begin(ctx, "alice", "t1"))
	require.NoError(t, b.Begin(ctx, "bob", "t2"))

	require.NoError(t, a.Expire(ctx))
	require.NoError(t, b.End(ctx))

	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].Key)
	assert.Equal(t, 0, m.Live())
}

func TestManager_EvictIdleKeepsRecord(t *testing.T) {
	ctx := context.Background()
	m := session.NewManager(session.NewMemoryStore(), zaptest.NewLogger(t))
	key := m.NewKey()

	s1, err := m.Get(ctx, key)
	require.NoError(t, err)
	require.NoError(t, s1.Begin(ctx, "alice", "tok"))

	assert.Zero(t, m.EvictIdle(time.Now().Add(-time.Hour)), "recently used sessions stay cached")
	assert.Equal(t, 1, m.EvictIdle(time.Now().Add(time.Second)))
	assert.Equal(t, 0, m.Live())

	s2, err := m.Get(ctx, key)
	require.NoError(t, err)
	assert.NotSame(t, s1, s2)
	assert.True(t, s2.Active(), "an evicted session is restored from the store")

	// Ending the evicted copy must not drop the restored one.
	require.NoError(t, s1.End(ctx))
	assert.Equal(t, 1, m.Live())
}

func TestManager_RunJanitorEvictsIdleSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := session.NewManager(session.NewMemoryStore(), zaptest.NewLogger(t))

	s, err := m.Get(ctx, m.NewKey())
	require.NoError(t, err)
	require.NoError(t, s.Begin(ctx, "alice", "tok"))
	require.NoError(t, s.End(ctx))
	other, err := m.Get(ctx, m.NewKey())
	require.NoError(t, err)
	require.NoError(t, other.Begin(ctx, "bob", "tok2"))

	done := make(chan struct{})
	go func() {
		m.RunJanitor(ctx, 5*time.Millisecond, time.Nanosecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return m.Live() == 0 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		_, err := m.Store().Load(context.Background(), s.Key())
		return errors.Is(err, session.ErrNotFound)
	}, time.Second, 5*time.Millisecond, "inactive records are purged")

	_, err = m.Store().Load(context.Background(), other.Key())
	assert.NoError(t, err, "active records are kept")

	cancel()
	<-done
}

func TestManager_Discard(t *testing.T) {
	ctx := context.Background()
	m := session.NewManager(session.NewMemoryStore(), nil)
	key := m.NewKey()

	s, err := m.Get(ctx, key)
	require.NoError(t, err)
	require.NoError(t, s.Begin(ctx, "alice", "tok"))

	require.NoError(t, m.Discard(ctx, key))
	assert.Equal(t, 0, m.Live())
	_, err = m.Store().Load(ctx, key)
	assert.ErrorIs(t, err, session.ErrNotFound)
	assert.ErrorIs(t, m.Discard(ctx, ""), session.ErrInvalidKey)
}
