package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/scrypster/xmemory/internal/session"
	"github.com/scrypster/xmemory/web/handlers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestSecurityHeaders(t *testing.T) {
	w := httptest.NewRecorder()
	handlers.SecurityHeaders(okHandler).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}

func TestRateLimitMiddleware_RejectsBurstOverflow(t *testing.T) {
	handler := handlers.RateLimitMiddleware(handlers.NewRateLimiter(0.001, 2))(okHandler)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRequestLogger_LogsStatusAndRequestID(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := middleware.RequestID(handlers.RequestLogger(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/memories?page=2", nil))

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "GET", fields["method"])
	assert.Equal(t, "/memories", fields["path"])
	assert.EqualValues(t, http.StatusTeapot, fields["status"])
	assert.EqualValues(t, len("short and stout"), fields["bytes"])
	assert.NotEmpty(t, fields["request_id"])
}

func TestRequireSession(t *testing.T) {
	logger := zaptest.NewLogger(t)
	store := session.NewMemoryStore()
	handler := handlers.RequireSession(okHandler)

	t.Run("no session", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/memories", nil))
		assert.Equal(t, http.StatusSeeOther, w.Code)
		assert.Equal(t, "/login", w.Header().Get("Location"))
	})

	t.Run("inactive session", func(t *testing.T) {
		s := session.New("k1", store, logger)
		req := httptest.NewRequest("GET", "/memories", nil)
		req = req.WithContext(handlers.WithSession(req.Context(), s))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusSeeOther, w.Code)
	})

	t.Run("active session", func(t *testing.T) {
		s := session.New("k2", store, logger)
		require.NoError(t, s.Begin(context.Background(), "alice", "tok"))
		req := httptest.NewRequest("GET", "/memories", nil)
		req = req.WithContext(handlers.WithSession(req.Context(), s))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestSessionMiddleware_ReusesCookieKey(t *testing.T) {
	logger := zaptest.NewLogger(t)
	sessions := session.NewManager(session.NewMemoryStore(), logger)

	var seen *session.Session
	handler := handlers.SessionMiddleware(sessions, handlers.CookieOptions{Name: "sid"}, logger)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = handlers.SessionFromContext(r.Context())
		}))

	key := sessions.NewKey()
	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: key})
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	require.NotNil(t, seen)
	assert.Equal(t, key, seen.Key())
	assert.Empty(t, w.Result().Cookies(), "a known cookie is not reissued")
}

func TestSessionMiddleware_ReplacesMalformedKey(t *testing.T) {
	logger := zaptest.NewLogger(t)
	sessions := session.NewManager(session.NewMemoryStore(), logger)

	var seen *session.Session
	handler := handlers.SessionMiddleware(sessions, handlers.CookieOptions{Name: "sid"}, logger)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = handlers.SessionFromContext(r.Context())
		}))

	for _, value := range []string{"chosen-by-attacker", "{6ba7b810-9dad-11d1-80b4-00c04fd430c8}", "6ba7b8109dad11d180b400c04fd430c8"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.AddCookie(&http.Cookie{Name: "sid", Value: value})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		require.NotNil(t, seen, value)
		assert.NotEqual(t, value, seen.Key(), value)
		cookies := w.Result().Cookies()
		require.Len(t, cookies, 1, value)
		assert.Equal(t, seen.Key(), cookies[0].Value, value)
	}
}
