package session_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/scrypster/xmemory/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestSession_BeginEnd(t *testing.T) {
	ctx := context.Background()
	store := session.NewMemoryStore()
	s := session.New("k1", store, zaptest.NewLogger(t))

	assert.False(t, s.Active())
	assert.Empty(t, s.Token())

	require.NoError(t, s.Begin(ctx, "alice", "tok-1"))
	assert.True(t, s.Active())
	assert.Equal(t, "tok-1", s.Token())
	assert.Equal(t, "alice", s.UserID())

	rec, err := store.Load(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", rec.Token)

	require.NoError(t, s.End(ctx))
	assert.False(t, s.Active())
	assert.Empty(t, s.Token())
	assert.Equal(t, "alice", s.UserID(), "user id is kept for form prefill")

	rec, err = store.Load(ctx, "k1")
	require.NoError(t, err)
	assert.Empty(t, rec.Token)
}

func TestSession_BeginRequiresUserAndToken(t *testing.T) {
	s := session.New("k", session.NewMemoryStore(), nil)
	assert.Error(t, s.Begin(context.Background(), "", "tok"))
	assert.Error(t, s.Begin(context.Background(), "alice", ""))
	assert.False(t, s.Active())
}

func TestSession_ExpireNotifiesOnce(t *testing.T) {
	ctx := context.Background()
	s := session.New("k", session.NewMemoryStore(), nil)
	require.NoError(t, s.Begin(ctx, "alice", "tok"))

	var calls atomic.Int32
	var got session.Event
	s.OnExpired(func(ev session.Event) {
		calls.Add(1)
		got = ev
	})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Expire(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "k", got.Key)
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, session.ReasonExpired, got.Reason)
	assert.False(t, s.Active())
}

func TestSession_LogoutDoesNotNotify(t *testing.T) {
	ctx := context.Background()
	s := session.New("k", session.NewMemoryStore(), nil)
	require.NoError(t, s.Begin(ctx, "alice", "tok"))

	called := false
	s.OnExpired(func(session.Event) { called = true })
	require.NoError(t, s.End(ctx))
	require.NoError(t, s.Expire(ctx))
	assert.False(t, called)
}

func TestSession_Unsubscribe(t *testing.T) {
	ctx := context.Background()
	s := session.New("k", session.NewMemoryStore(), nil)
	require.NoError(t, s.Begin(ctx, "alice", "tok"))

	called := false
	unsubscribe := s.OnExpired(func(session.Event) { called = true })
	unsubscribe()
	require.NoError(t, s.Expire(ctx))
	assert.False(t, called)
}

func TestSession_ValueIsDroppedOnExpiry(t *testing.T) {
	ctx := context.Background()
	s := session.New("k1", session.NewMemoryStore(), zaptest.NewLogger(t))
	require.NoError(t, s.Begin(ctx, "alice", "tok"))

	created := 0
	create := func() interface{} {
		created++
		return &created
	}
	first := s.Value("list", create)
	assert.Same(t, first, s.Value("list", create))
	assert.Equal(t, 1, created)

	require.NoError(t, s.Expire(ctx))
	s.Value("list", create)
	assert.Equal(t, 2, created, "view state does not outlive the login")
}
