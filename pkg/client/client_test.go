package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/scrypster/xmemory/internal/session"
	"github.com/scrypster/xmemory/pkg/client"
	"github.com/scrypster/xmemory/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newClient(t *testing.T, h http.Handler) (*client.Client, *session.Session) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	sess := session.New("test", session.NewMemoryStore(), zaptest.NewLogger(t))
	return client.New(srv.URL+"/api/v1", sess, client.WithLogger(zaptest.NewLogger(t))), sess
}

func loggedIn(t *testing.T, h http.Handler) (*client.Client, *session.Session) {
	t.Helper()
	c, sess := newClient(t, h)
	require.NoError(t, sess.Begin(context.Background(), "alice", "tok-123"))
	return c, sess
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestLogin_StoresTokenAndSendsBearer(t *testing.T) {
	var sawAuth atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Empty(t, r.Header.Get("Authorization"), "login is sent without a bearer token")
		var req types.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.Username)
		assert.Equal(t, "secret", req.Password)
		writeJSON(w, http.StatusOK, types.LoginResponse{SessionID: "sess-42"})
	})
	mux.HandleFunc("/api/v1/memories/", func(w http.ResponseWriter, r *http.Request) {
		sawAuth.Store(r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		writeJSON(w, http.StatusOK, types.ListResponse{})
	})

	c, sess := newClient(t, mux)
	require.NoError(t, c.Login(context.Background(), "alice", "secret"))
	assert.Equal(t, "sess-42", sess.Token())
	assert.Equal(t, "alice", sess.UserID())

	_, err := c.ListMemories(context.Background(), types.ListQuery{UserID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "Bearer sess-42", sawAuth.Load())
}

func TestLogin_InvalidCredentialsDoesNotExpire(t *testing.T) {
	c, sess := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid credentials"})
	}))

	expired := false
	sess.OnExpired(func(session.Event) { expired = true })

	err := c.Login(context.Background(), "alice", "wrong")
	assert.ErrorIs(t, err, client.ErrInvalidCredentials)
	assert.False(t, sess.Active())
	assert.False(t, expired)
}

func TestListMemories_SendsAllParameters(t *testing.T) {
	rows := make([]types.Memory, 8)
	for i := range rows {
		rows[i] = types.Memory{ID: string(rune('a' + i)), MemoryType: types.MemoryTypeTask}
	}

	c, _ := loggedIn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/memories/", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "alice", q.Get("user_id"))
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "10", q.Get("page_size"))
		assert.Equal(t, "created_at", q.Get("sort_by"))
		assert.Equal(t, "desc", q.Get("sort_order"))
		assert.Equal(t, "task", q.Get("memory_type"))
		assert.Equal(t, "P1", q.Get("parent_id"))
		writeJSON(w, http.StatusOK, types.ListResponse{Memories: rows, Total: 18, Page: 2, PageSize: 10, TotalPages: 2})
	}))

	resp, err := c.ListMemories(context.Background(), types.ListQuery{
		UserID: "alice", Page: 2, PageSize: 10, SortBy: "created_at", SortOrder: "desc",
		MemoryType: types.MemoryTypeTask, ParentID: "P1",
	})
	require.NoError(t, err)
	assert.Len(t, resp.Memories, 8)
	assert.Equal(t, 18, resp.Total)
	assert.Equal(t, 2, resp.TotalPages)
}

func TestListMemories_OmitsAllFilter(t *testing.T) {
	c, _ := loggedIn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.False(t, q.Has("memory_type"))
		assert.False(t, q.Has("parent_id"))
		assert.Equal(t, "1", q.Get("page"))
		writeJSON(w, http.StatusOK, map[string]interface{}{"memories": nil, "total": 0})
	}))

	resp, err := c.ListMemories(context.Background(), types.ListQuery{UserID: "alice"})
	require.NoError(t, err)
	assert.NotNil(t, resp.Memories)
	assert.Empty(t, resp.Memories)
}

func TestUserScopedCallsRequireUser(t *testing.T) {
	var calls atomic.Int32
	c, _ := loggedIn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	ctx := context.Background()

	_, err := c.ListMemories(ctx, types.ListQuery{})
	assert.ErrorIs(t, err, client.ErrUserRequired)
	_, err = c.SearchMemories(ctx, "", "q", 0)
	assert.ErrorIs(t, err, client.ErrUserRequired)
	_, err = c.CreateMemory(ctx, types.CreateMemoryRequest{Content: "x"})
	assert.ErrorIs(t, err, client.ErrUserRequired)
	assert.ErrorIs(t, c.DeleteMemory(ctx, "m1", ""), client.ErrUserRequired)
	assert.Equal(t, int32(0), calls.Load())
}

func TestUnauthorizedExpiresSession(t *testing.T) {
	c, sess := loggedIn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
	}))

	var events []session.Event
	sess.OnExpired(func(ev session.Event) { events = append(events, ev) })

	_, err := c.GetMemory(context.Background(), "m1")
	assert.ErrorIs(t, err, client.ErrUnauthorized)
	assert.True(t, client.IsUnauthorized(err))
	assert.False(t, sess.Active())
	assert.Empty(t, sess.Token())
	require.Len(t, events, 1)
	assert.Equal(t, session.ReasonExpired, events[0].Reason)

	// Without a token the call fails fast and nothing is sent.
	_, err = c.GetMemory(context.Background(), "m1")
	assert.ErrorIs(t, err, client.ErrUnauthorized)
	assert.Len(t, events, 1)
}

func TestCreateMemory_FillsFromRequest(t *testing.T) {
	c, _ := loggedIn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var req types.CreateMemoryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "alice", req.UserID)
		assert.Equal(t, []string{"go"}, req.Tags)
		writeJSON(w, http.StatusOK, map[string]string{"id": "new-1"})
	}))

	mem, err := c.CreateMemory(context.Background(), types.CreateMemoryRequest{
		UserID: "alice", Title: "T", Content: "body", Tags: []string{"go"}, MemoryType: types.MemoryTypeInsight,
	})
	require.NoError(t, err)
	assert.Equal(t, "new-1", mem.ID)
	assert.Equal(t, "alice", mem.UserID)
	assert.Equal(t, "body", mem.Content)
	assert.Equal(t, types.MemoryTypeInsight, mem.MemoryType)
}

func TestSearchMemories(t *testing.T) {
	c, _ := loggedIn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/memories/search", r.URL.Path)
		assert.Equal(t, "golang", r.URL.Query().Get("query"))
		assert.Equal(t, "10", r.URL.Query().Get("size"))
		writeJSON(w, http.StatusOK, types.SearchResponse{Memories: []types.Memory{{ID: "m1"}}})
	}))

	hits, err := c.SearchMemories(context.Background(), "alice", "golang", 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "m1", hits[0].ID)
}

func TestUpdateMemory_SendsOnlySetFields(t *testing.T) {
	c, _ := loggedIn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/api/v1/memories/m1", r.URL.Path)
		assert.Equal(t, "alice", r.URL.Query().Get("user_id"))
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]interface{}{"summary": "Done"}, body)
		writeJSON(w, http.StatusOK, types.Memory{ID: "m1", Summary: "Done"})
	}))

	done := "Done"
	mem, err := c.UpdateMemory(context.Background(), "m1", "alice", types.UpdateMemoryRequest{Summary: &done})
	require.NoError(t, err)
	assert.Equal(t, "Done", mem.Summary)
}

func TestDeleteMemory(t *testing.T) {
	c, _ := loggedIn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		switch r.URL.Path {
		case "/api/v1/memories/ok":
			writeJSON(w, http.StatusOK, types.DeleteResponse{Success: true, Message: "deleted"})
		case "/api/v1/memories/gone":
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Memory not found"})
		default:
			writeJSON(w, http.StatusOK, types.DeleteResponse{Success: false, Message: "locked"})
		}
	}))
	ctx := context.Background()

	assert.NoError(t, c.DeleteMemory(ctx, "ok", "alice"))

	err := c.DeleteMemory(ctx, "gone", "alice")
	assert.True(t, client.IsNotFound(err))
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "Memory not found", apiErr.Message)

	err = c.DeleteMemory(ctx, "other", "alice")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")
}

func TestAPIError_DetailList(t *testing.T) {
	c, _ := loggedIn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"detail": []map[string]string{{"msg": "field required"}, {"msg": "too long"}},
		})
	}))

	_, err := c.GetMemory(context.Background(), "m1")
	var apiErr *client.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "field required; too long", apiErr.Message)
}

func TestLogout_EndsSessionEvenOnFailure(t *testing.T) {
	c, sess := loggedIn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusInternalServerError)
	}))

	expired := false
	sess.OnExpired(func(session.Event) { expired = true })

	require.NoError(t, c.Logout(context.Background()))
	assert.False(t, sess.Active())
	assert.Equal(t, "alice", sess.UserID())
	assert.False(t, expired)
}

func TestBreaker_OpensOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sess := session.New("k", session.NewMemoryStore(), nil)
	require.NoError(t, sess.Begin(context.Background(), "alice", "tok"))
	breaker := client.NewBreaker(client.BreakerConfig{MaxFailures: 2, Timeout: time.Minute}, nil)
	c := client.New(srv.URL, sess, client.WithBreaker(breaker))

	for i := 0; i < 2; i++ {
		_, err := c.GetMemory(context.Background(), "m1")
		var apiErr *client.APIError
		require.True(t, errors.As(err, &apiErr))
	}
	assert.Equal(t, "open", c.BreakerState())

	_, err := c.GetMemory(context.Background(), "m1")
	assert.ErrorIs(t, err, client.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load(), "open circuit fails fast")
	assert.Equal(t, uint64(1), breaker.Metrics().Rejected)
}

func TestBreaker_IgnoresClientErrors(t *testing.T) {
	c, _ := loggedIn(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	for i := 0; i < 10; i++ {
		_, err := c.GetMemory(context.Background(), "missing")
		assert.True(t, client.IsNotFound(err))
	}
	assert.Equal(t, "closed", c.BreakerState())
}
