// Package backendtest provides an in-memory XMemory REST backend for tests.
// It speaks the /api/v1 contract the console consumes: login and logout,
// memory CRUD, list with paging, sorting and filters, and search.
package backendtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/scrypster/xmemory/pkg/types"
)

// Backend is a fake XMemory backend served by httptest.
type Backend struct {
	mu       sync.Mutex
	users    map[string]string // username -> password
	tokens   map[string]string // token -> username
	memories map[string]types.Memory
	calls    map[string]int
	failures map[string]int // endpoint -> status to answer with
	clock    time.Time

	srv *httptest.Server
}

// New starts a backend that accepts alice/secret and stops it when t ends.
func New(t testing.TB) *Backend {
	t.Helper()
	b := &Backend{
		users:    map[string]string{"alice": "secret"},
		tokens:   make(map[string]string),
		memories: make(map[string]types.Memory),
		calls:    make(map[string]int),
		failures: make(map[string]int),
		clock:    time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	b.srv = httptest.NewServer(b.routes())
	t.Cleanup(b.srv.Close)
	return b
}

// URL returns the API base URL, including /api/v1.
func (b *Backend) URL() string {
	return b.srv.URL + "/api/v1"
}

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", b.login)
		r.Post("/auth/logout", b.authed("logout", b.logout))
		r.Get("/memories/", b.authed("list", b.list))
		r.Post("/memories/", b.authed("create", b.create))
		r.Get("/memories/search", b.authed("search", b.search))
		r.Get("/memories/{id}", b.authed("get", b.get))
		r.Put("/memories/{id}", b.authed("update", b.update))
		r.Delete("/memories/{id}", b.authed("delete", b.delete))
	})
	return r
}

// Seed stores memories as given. Memories without an id or creation time
// get one; creation times increase in seed order.
func (b *Backend) Seed(mems ...types.Memory) []types.Memory {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]types.Memory, 0, len(mems))
	for _, m := range mems {
		b.insertLocked(&m)
		out = append(out, m)
	}
	return out
}

// SeedN stores n memories of memoryType owned by userID, with contents
// "memory 1" through "memory n".
func (b *Backend) SeedN(userID string, n int, memoryType types.MemoryType) []types.Memory {
	mems := make([]types.Memory, n)
	for i := range mems {
		mems[i] = types.Memory{
			ID:         fmt.Sprintf("m%03d", i+1),
			UserID:     userID,
			Content:    fmt.Sprintf("memory %d", i+1),
			MemoryType: memoryType,
		}
	}
	return b.Seed(mems...)
}

// Memory returns the stored memory id.
func (b *Backend) Memory(id string) (types.Memory, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.memories[id]
	return m, ok
}

// Len returns the number of stored memories.
func (b *Backend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.memories)
}

// Calls returns how often endpoint was hit. Endpoints are login, logout,
// list, create, search, get, update and delete.
func (b *Backend) Calls(endpoint string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[endpoint]
}

// TotalCalls returns the number of requests of every endpoint.
func (b *Backend) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

// Fail makes endpoint answer with status until cleared with status 0.
func (b *Backend) Fail(endpoint string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.failures, endpoint)
		return
	}
	b.failures[endpoint] = status
}

// RevokeTokens invalidates every issued token, as a backend restart would.
func (b *Backend) RevokeTokens() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = make(map[string]string)
}

// Token returns a valid token for username without a login call.
func (b *Backend) Token(username string) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	tok := uuid.NewString()
	b.tokens[tok] = username
	return tok
}

func (b *Backend) insertLocked(m *types.Memory) {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.MemoryType == "" {
		m.MemoryType = types.MemoryTypeRaw
	}
	if m.CreatedAt == "" {
		b.clock = b.clock.Add(time.Minute)
		m.CreatedAt = b.clock.Format(time.RFC3339)
	}
	if m.UpdatedAt == "" {
		m.UpdatedAt = m.CreatedAt
	}
	if m.Tags == nil {
		m.Tags = []string{}
	}
	b.memories[m.ID] = *m
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

// authed counts the call, applies configured failures and checks the
// bearer token.
func (b *Backend) authed(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls[endpoint]++
		status := b.failures[endpoint]
		_, ok := b.tokens[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
		b.mu.Unlock()

		if !ok {
			writeDetail(w, http.StatusUnauthorized, "Invalid or expired session")
			return
		}
		if status != 0 {
			writeDetail(w, status, http.StatusText(status))
			return
		}
		next(w, r)
	}
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	var req types.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls["login"]++
	if status := b.failures["login"]; status != 0 {
		writeDetail(w, status, http.StatusText(status))
		return
	}
	if pw, ok := b.users[req.Username]; !ok || pw != req.Password {
		writeDetail(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	tok := uuid.NewString()
	b.tokens[tok] = req.Username
	writeJSON(w, http.StatusOK, types.LoginResponse{SessionID: tok})
}

func (b *Backend) logout(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	delete(b.tokens, strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

func (b *Backend) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("page_size"))
	if page < 1 {
		page = 1
	}
	if size < 1 || size > types.MaxPageSize {
		writeDetail(w, http.StatusUnprocessableEntity, "page_size must be within 1..100")
		return
	}

	b.mu.Lock()
	var matched []types.Memory
	for _, m := range b.memories {
		if m.UserID != q.Get("user_id") {
			continue
		}
		if t := q.Get("memory_type"); t != "" && string(m.MemoryType) != t {
			continue
		}
		if p := q.Get("parent_id"); p != "" && m.ParentID != p {
			continue
		}
		matched = append(matched, m)
	}
	b.mu.Unlock()

	sortBy := q.Get("sort_by")
	desc := q.Get("sort_order") != types.SortAsc
	sort.SliceStable(matched, func(i, j int) bool {
		a, c := matched[i].CreatedAt, matched[j].CreatedAt
		if sortBy == types.SortByUpdatedAt {
			a, c = matched[i].UpdatedAt, matched[j].UpdatedAt
		}
		if a == c {
			a, c = matched[i].ID, matched[j].ID
		}
		if desc {
			return a > c
		}
		return a < c
	})

	total := len(matched)
	start := (page - 1) * size
	end := start + size
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}
	writeJSON(w, http.StatusOK, types.ListResponse{
		Memories:   matched[start:end],
		Total:      total,
		Page:       page,
		PageSize:   size,
		TotalPages: types.TotalPages(total, size),
	})
}

func (b *Backend) create(w http.ResponseWriter, r *http.Request) {
	var req types.CreateMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
			"detail": []map[string]string{{"msg": "content must not be empty"}},
		})
		return
	}

	m := types.Memory{
		UserID:     req.UserID,
		Title:      req.Title,
		Content:    req.Content,
		Summary:    req.Summary,
		Tags:       req.Tags,
		MemoryType: req.MemoryType,
		ParentID:   req.ParentID,
	}
	if t, ok := types.ParseTimestamp(req.CreatedAt); ok {
		m.CreatedAt = t.Format(time.RFC3339)
	}

	b.mu.Lock()
	b.insertLocked(&m)
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, m)
}

func (b *Backend) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	needle := strings.ToLower(q.Get("query"))
	size, err := strconv.Atoi(q.Get("size"))
	if err != nil || size < 1 {
		size = 10
	}

	b.mu.Lock()
	var found []types.Memory
	for _, m := range b.memories {
		if m.UserID != q.Get("user_id") {
			continue
		}
		if strings.Contains(strings.ToLower(m.Content), needle) || strings.Contains(strings.ToLower(m.Title), needle) {
			found = append(found, m)
		}
	}
	b.mu.Unlock()

	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt > found[j].CreatedAt })
	if len(found) > size {
		found = found[:size]
	}
	writeJSON(w, http.StatusOK, types.SearchResponse{Memories: found})
}

func (b *Backend) get(w http.ResponseWriter, r *http.Request) {
	m, ok := b.Memory(chi.URLParam(r, "id"))
	if !ok {
		writeDetail(w, http.StatusNotFound, "Memory not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (b *Backend) update(w http.ResponseWriter, r *http.Request) {
	var req types.UpdateMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body")
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.memories[chi.URLParam(r, "id")]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Memory not found")
		return
	}
	if req.Content != nil {
		m.Content = *req.Content
	}
	if req.Title != nil {
		m.Title = *req.Title
	}
	if req.Tags != nil {
		m.Tags = *req.Tags
	}
	if req.Summary != nil {
		m.Summary = *req.Summary
	}
	if req.ParentID != nil {
		m.ParentID = *req.ParentID
	}
	if req.RelatedIDs != nil {
		m.RelatedIDs = *req.RelatedIDs
	}
	b.clock = b.clock.Add(time.Minute)
	m.UpdatedAt = b.clock.Format(time.RFC3339)
	b.memories[m.ID] = m
	writeJSON(w, http.StatusOK, m)
}

func (b *Backend) delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	_, ok := b.memories[id]
	delete(b.memories, id)
	b.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "Memory not found")
		return
	}
	writeJSON(w, http.StatusOK, types.DeleteResponse{Success: true, Message: "Memory deleted"})
}
