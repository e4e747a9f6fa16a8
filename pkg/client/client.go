// Package client is the HTTP client for the XMemory REST backend.
//
// A Client is bound to an explicit Session at construction. Login begins the
// session, Logout ends it, and any 401 on an authenticated call expires it
// before ErrUnauthorized is returned; what happens next (redirect, exit) is
// up to whoever subscribed to the session's expiry.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/scrypster/xmemory/pkg/types"
	"go.uber.org/zap"
)

// Session is the login context the client reads its token from and reports
// authentication changes to.
type Session interface {
	Token() string
	UserID() string
	Begin(ctx context.Context, userID, token string) error
	End(ctx context.Context) error
	Expire(ctx context.Context) error
}

// DefaultSearchSize is the number of search hits requested when size is unset.
const DefaultSearchSize = 10

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 64 << 10

// Client talks to one backend on behalf of one Session.
type Client struct {
	baseURL    string
	session    Session
	httpClient *http.Client
	breaker    *Breaker
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithBreaker shares a circuit breaker between clients. All clients of one
// console talk to the same backend, so they should trip together.
func WithBreaker(b *Breaker) Option {
	return func(c *Client) { c.breaker = b }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for the backend rooted at baseURL
// (e.g. "http://localhost:8000/api/v1").
func New(baseURL string, sess Session, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		session:    sess,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.breaker == nil {
		c.breaker = NewBreaker(BreakerConfig{}, c.logger)
	}
	return c
}

// Session returns the session this client is bound to.
func (c *Client) Session() Session { return c.session }

// Login exchanges credentials for a backend session token and begins the
// session with username as the user id.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp types.LoginResponse
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/login",
		body:   types.LoginRequest{Username: username, Password: password},
		out:    &resp,
		public: true,
	})
	if err != nil {
		return err
	}
	if resp.SessionID == "" {
		return fmt.Errorf("client: login response carried no session id")
	}
	if err := c.session.Begin(ctx, username, resp.SessionID); err != nil {
		return fmt.Errorf("client: failed to store session: %w", err)
	}
	c.logger.Info("logged in", zap.String("user_id", username))
	return nil
}

// Logout invalidates the token on the backend and ends the local session.
// The local session is ended even when the backend call fails.
func (c *Client) Logout(ctx context.Context) error {
	if c.session.Token() == "" {
		return c.session.End(ctx)
	}

	err := c.do(ctx, request{method: http.MethodPost, path: "/auth/logout", keepSession: true})
	if err != nil && !errors.Is(err, ErrUnauthorized) {
		c.logger.Warn("backend logout failed", zap.Error(err))
	}
	if endErr := c.session.End(ctx); endErr != nil {
		return endErr
	}
	return nil
}

// CreateMemory stores a new memory. When the backend answers with only an
// id, the returned Memory is completed from the request.
func (c *Client) CreateMemory(ctx context.Context, req types.CreateMemoryRequest) (*types.Memory, error) {
	if req.UserID == "" {
		return nil, ErrUserRequired
	}

	var mem types.Memory
	if err := c.do(ctx, request{method: http.MethodPost, path: "/memories/", body: req, out: &mem}); err != nil {
		return nil, err
	}

	if mem.UserID == "" {
		mem.UserID = req.UserID
	}
	if mem.Content == "" {
		mem.Content = req.Content
	}
	if mem.Title == "" {
		mem.Title = req.Title
	}
	if mem.Summary == "" {
		mem.Summary = req.Summary
	}
	if mem.MemoryType == "" {
		mem.MemoryType = req.MemoryType
	}
	if mem.Tags == nil {
		mem.Tags = req.Tags
	}
	if mem.ParentID == "" {
		mem.ParentID = req.ParentID
	}
	if mem.CreatedAt == "" {
		mem.CreatedAt = req.CreatedAt
	}
	return &mem, nil
}

// ListMemories fetches one page of the user's memories. Every parameter of q
// is sent; memory_type is omitted for the "all" filter and parent_id when empty.
func (c *Client) ListMemories(ctx context.Context, q types.ListQuery) (*types.ListResponse, error) {
	if q.UserID == "" {
		return nil, ErrUserRequired
	}
	q.Normalize()

	params := url.Values{}
	params.Set("user_id", q.UserID)
	params.Set("page", strconv.Itoa(q.Page))
	params.Set("page_size", strconv.Itoa(q.PageSize))
	params.Set("sort_by", q.SortBy)
	params.Set("sort_order", q.SortOrder)
	if q.MemoryType != types.MemoryTypeAll {
		params.Set("memory_type", string(q.MemoryType))
	}
	if q.ParentID != "" {
		params.Set("parent_id", q.ParentID)
	}

	var resp types.ListResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: "/memories/", query: params, out: &resp}); err != nil {
		return nil, err
	}
	if resp.Memories == nil {
		resp.Memories = []types.Memory{}
	}
	if resp.TotalPages == 0 && resp.Total > 0 {
		resp.TotalPages = types.TotalPages(resp.Total, q.PageSize)
	}
	return &resp, nil
}

// SearchMemories runs a backend search over the user's memories. A size of
// zero requests DefaultSearchSize hits.
func (c *Client) SearchMemories(ctx context.Context, userID, query string, size int) ([]types.Memory, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}
	if size <= 0 {
		size = DefaultSearchSize
	}

	params := url.Values{}
	params.Set("user_id", userID)
	params.Set("query", query)
	params.Set("size", strconv.Itoa(size))

	var resp types.SearchResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: "/memories/search", query: params, out: &resp}); err != nil {
		return nil, err
	}
	if resp.Memories == nil {
		resp.Memories = []types.Memory{}
	}
	return resp.Memories, nil
}

// GetMemory fetches a single memory. A missing id yields an error matching ErrNotFound.
func (c *Client) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	var mem types.Memory
	if err := c.do(ctx, request{method: http.MethodGet, path: "/memories/" + url.PathEscape(id), out: &mem}); err != nil {
		return nil, err
	}
	return &mem, nil
}

// UpdateMemory applies a partial update to the memory owned by userID.
func (c *Client) UpdateMemory(ctx context.Context, id, userID string, req types.UpdateMemoryRequest) (*types.Memory, error) {
	if userID == "" {
		return nil, ErrUserRequired
	}

	var mem types.Memory
	err := c.do(ctx, request{
		method: http.MethodPut,
		path:   "/memories/" + url.PathEscape(id),
		query:  url.Values{"user_id": {userID}},
		body:   req,
		out:    &mem,
	})
	if err != nil {
		return nil, err
	}
	return &mem, nil
}

// DeleteMemory removes the memory owned by userID.
func (c *Client) DeleteMemory(ctx context.Context, id, userID string) error {
	if userID == "" {
		return ErrUserRequired
	}

	var resp types.DeleteResponse
	err := c.do(ctx, request{
		method: http.MethodDelete,
		path:   "/memories/" + url.PathEscape(id),
		query:  url.Values{"user_id": {userID}},
		out:    &resp,
	})
	if err != nil {
		return err
	}
	// Older backends reply 200 with success=false instead of an error status.
	if !resp.Success && resp.Message != "" {
		return &APIError{StatusCode: http.StatusOK, Message: resp.Message, Method: http.MethodDelete, Path: "/memories/" + id}
	}
	return nil
}

// BreakerState exposes the breaker state for health reporting.
func (c *Client) BreakerState() string {
	return c.breaker.State()
}

type request struct {
	method string
	path   string
	query  url.Values
	body   interface{}
	out    interface{}
	// public requests are sent without the bearer header and never expire
	// the session.
	public bool
	// keepSession suppresses expiry on 401 for calls that end the session anyway.
	keepSession bool
}

// do sends req through the breaker and decodes a 2xx body into req.out.
func (c *Client) do(ctx context.Context, req request) error {
	var token string
	if !req.public {
		token = c.session.Token()
		if token == "" {
			return ErrUnauthorized
		}
	}

	var payload []byte
	if req.body != nil {
		var err error
		payload, err = json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("client: failed to encode request: %w", err)
		}
	}

	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}
	requestID := uuid.NewString()
	start := time.Now()

	_, err := c.breaker.Execute(ctx, func() (interface{}, error) {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
		if err != nil {
			return nil, fmt.Errorf("client: failed to build request: %w", err)
		}
		httpReq.Header.Set("Accept", "application/json")
		httpReq.Header.Set("X-Request-ID", requestID)
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("client: %s %s: %w", req.method, req.path, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
			if req.public {
				return nil, ErrInvalidCredentials
			}
			return nil, ErrUnauthorized
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Message:    errorMessage(data),
				Method:     req.method,
				Path:       req.path,
			}
		}

		if req.out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil, nil
		}
		if err := json.NewDecoder(resp.Body).Decode(req.out); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("client: %s %s: failed to decode response: %w", req.method, req.path, err)
		}
		return nil, nil
	})

	fields := []zap.Field{
		zap.String("method", req.method),
		zap.String("path", req.path),
		zap.String("request_id", requestID),
		zap.Duration("duration", time.Since(start)),
	}
	switch {
	case err == nil:
		c.logger.Debug("backend request", fields...)
	case errors.Is(err, ErrUnauthorized) && !req.keepSession:
		c.logger.Info("backend rejected session token", fields...)
		if expErr := c.session.Expire(ctx); expErr != nil {
			c.logger.Warn("failed to expire session", zap.Error(expErr))
		}
	default:
		c.logger.Warn("backend request failed", append(fields, zap.Error(err))...)
	}
	return err
}

// errorMessage extracts a human readable message from an error body.
// FastAPI replies {"detail": "..."} or {"detail": [{"msg": "..."}]}.
func errorMessage(data []byte) string {
	var body struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if len(body.Detail) > 0 {
			var s string
			if json.Unmarshal(body.Detail, &s) == nil {
				return s
			}
			var items []struct {
				Msg string `json:"msg"`
			}
			if json.Unmarshal(body.Detail, &items) == nil {
				msgs := make([]string, 0, len(items))
				for _, it := range items {
					if it.Msg != "" {
						msgs = append(msgs, it.Msg)
					}
				}
				if len(msgs) > 0 {
					return strings.Join(msgs, "; ")
				}
			}
		}
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	s := strings.TrimSpace(string(data))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
