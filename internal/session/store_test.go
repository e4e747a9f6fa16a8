package session_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/scrypster/xmemory/internal/config"
	"github.com/scrypster/xmemory/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStore runs the shared Store contract against s.
func testStore(t *testing.T, s session.Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Load(ctx, "missing")
	assert.ErrorIs(t, err, session.ErrNotFound)

	_, err = s.Load(ctx, "")
	assert.ErrorIs(t, err, session.ErrInvalidKey)
	assert.ErrorIs(t, s.Save(ctx, "", session.Record{}), session.ErrInvalidKey)

	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, s.Save(ctx, "k", session.Record{
		UserID: "alice", Token: "tok", CreatedAt: created, UpdatedAt: created,
	}))

	rec, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "alice", rec.UserID)
	assert.Equal(t, "tok", rec.Token)
	assert.True(t, rec.Active())
	assert.True(t, created.Equal(rec.CreatedAt))

	// Upsert keeps the original creation time.
	require.NoError(t, s.Save(ctx, "k", session.Record{UserID: "alice", UpdatedAt: created.Add(time.Hour)}))
	rec, err = s.Load(ctx, "k")
	require.NoError(t, err)
	assert.False(t, rec.Active())
	assert.True(t, created.Equal(rec.CreatedAt))

	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"), "deleting a missing key is not an error")
	_, err = s.Load(ctx, "k")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, session.NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	s, err := session.NewSQLiteStore(filepath.Join(t.TempDir(), "nested", "sessions.db"))
	require.NoError(t, err)
	defer s.Close()
	testStore(t, s)
}

func TestSQLiteStore_PurgeInactive(t *testing.T) {
	ctx := context.Background()
	s, err := session.NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer s.Close()

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.Save(ctx, "stale", session.Record{UserID: "a", UpdatedAt: old}))
	require.NoError(t, s.Save(ctx, "live", session.Record{UserID: "b", Token: "t", UpdatedAt: old}))
	require.NoError(t, s.Save(ctx, "fresh", session.Record{UserID: "c"}))

	n, err := s.PurgeInactive(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Load(ctx, "stale")
	assert.ErrorIs(t, err, session.ErrNotFound)
	_, err = s.Load(ctx, "live")
	assert.NoError(t, err)
	_, err = s.Load(ctx, "fresh")
	assert.NoError(t, err)
}

func TestSQLiteStore_PurgeInactiveWithinOneSecond(t *testing.T) {
	ctx := context.Background()
	s, err := session.NewSQLiteStore(filepath.Join(t.TempDir(), "sessions.db"))
	require.NoError(t, err)
	defer s.Close()

	second := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	require.NoError(t, s.Save(ctx, "whole-second", session.Record{UserID: "a", UpdatedAt: second}))
	require.NoError(t, s.Save(ctx, "later", session.Record{UserID: "b", UpdatedAt: second.Add(200 * time.Millisecond)}))

	n, err := s.PurgeInactive(ctx, second.Add(100*time.Millisecond))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Load(ctx, "whole-second")
	assert.ErrorIs(t, err, session.ErrNotFound)
	rec, err := s.Load(ctx, "later")
	require.NoError(t, err)
	assert.True(t, second.Add(200*time.Millisecond).Equal(rec.UpdatedAt))
}

func TestSQLiteStore_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sessions.db")

	s, err := session.NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save(ctx, "k", session.Record{UserID: "alice", Token: "tok"}))
	require.NoError(t, s.Close())

	s, err = session.NewSQLiteStore(path)
	require.NoError(t, err)
	defer s.Close()
	rec, err := s.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "tok", rec.Token)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("XMEMORY_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("XMEMORY_TEST_POSTGRES_DSN not set")
	}
	s, err := session.NewPostgresStore(dsn)
	require.NoError(t, err)
	defer s.Close()
	_ = s.Delete(context.Background(), "k")
	testStore(t, s)
}

func TestOpen(t *testing.T) {
	cfg := &config.Config{Session: config.SessionConfig{Engine: config.EngineMemory}}
	s, err := session.Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &session.MemoryStore{}, s)

	cfg = &config.Config{Session: config.SessionConfig{Engine: config.EngineSQLite, DataPath: t.TempDir()}}
	s, err = session.Open(cfg)
	require.NoError(t, err)
	assert.IsType(t, &session.SQLiteStore{}, s)
	require.NoError(t, s.Close())

	_, err = session.Open(&config.Config{Session: config.SessionConfig{Engine: "redis"}})
	assert.Error(t, err)
}
