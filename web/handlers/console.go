package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/scrypster/xmemory/internal/config"
	"github.com/scrypster/xmemory/internal/session"
	"github.com/scrypster/xmemory/internal/views"
	"github.com/scrypster/xmemory/pkg/client"
	"go.uber.org/zap"
)

const flashCookie = "xmemory_flash"

// Console holds the dependencies shared by the page handlers. Each request
// gets its own backend client bound to the request's session; the HTTP
// client and circuit breaker are shared.
type Console struct {
	cfg        *config.Config
	sessions   *session.Manager
	hub        *WebSocketHub
	renderer   *Renderer
	breaker    *client.Breaker
	httpClient *http.Client
	cookie     CookieOptions
	logger     *zap.Logger
}

// NewConsole creates the console handlers.
func NewConsole(cfg *config.Config, sessions *session.Manager, hub *WebSocketHub, logger *zap.Logger) (*Console, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	renderer, err := NewRenderer(nil, logger)
	if err != nil {
		return nil, err
	}
	return &Console{
		cfg:        cfg,
		sessions:   sessions,
		hub:        hub,
		renderer:   renderer,
		breaker:    client.NewBreaker(client.BreakerConfig{MaxFailures: cfg.Backend.BreakerMaxFailures, Timeout: cfg.Backend.BreakerOpenTimeout}, logger),
		httpClient: &http.Client{Timeout: cfg.Backend.Timeout},
		cookie:     CookieOptions{Name: cfg.Session.CookieName, Secure: cfg.Session.CookieSecure},
		logger:     logger,
	}, nil
}

// clientFor returns a backend client bound to s.
func (c *Console) clientFor(s *session.Session) *client.Client {
	return client.New(c.cfg.Backend.BaseURL, s,
		client.WithHTTPClient(c.httpClient),
		client.WithBreaker(c.breaker),
		client.WithLogger(c.logger))
}

// page builds the common template data for the request's session and
// consumes the pending flash message.
func (c *Console) page(w http.ResponseWriter, r *http.Request, data interface{}) pageData {
	pd := pageData{Data: data, Notice: popFlash(w, r)}
	if s := SessionFromContext(r.Context()); s != nil {
		pd.Active = s.Active()
		pd.UserID = s.UserID()
	}
	return pd
}

// notifyChanged tells the other tabs of the session that memories changed.
func (c *Console) notifyChanged(s *session.Session, count int) {
	if c.hub != nil {
		c.hub.SendTo(s.Key(), Event{Type: EventMemoriesChanged, Count: count})
	}
}

// handleError renders the page matching a backend error. An expired session
// is sent to the login page; its other tabs were already told through the
// hub when the session expired.
func (c *Console) handleError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case client.IsUnauthorized(err):
		http.Redirect(w, r, "/login?expired=1", http.StatusSeeOther)
	case errors.Is(err, client.ErrCircuitOpen):
		c.renderError(w, r, http.StatusServiceUnavailable, "Service unavailable",
			"The memory service is not responding. Please try again in a moment.")
	case errors.Is(err, views.ErrNotFound), client.IsNotFound(err):
		c.renderError(w, r, http.StatusNotFound, "Not found", "The requested memory does not exist.")
	case errors.Is(err, views.ErrInvalidParams), errors.Is(err, views.ErrFixedFilter):
		c.renderError(w, r, http.StatusBadRequest, "Bad request", err.Error())
	default:
		c.logger.Error("backend request failed", zap.String("path", r.URL.Path), zap.Error(err))
		c.renderError(w, r, http.StatusBadGateway, "Request failed", userMessage(err))
	}
}

func (c *Console) renderError(w http.ResponseWriter, r *http.Request, status int, heading, message string) {
	c.renderer.Render(w, status, "error", c.page(w, r, errorPage{Heading: heading, Message: message}))
}

// isTransient reports whether err can be shown inline on the current page
// instead of replacing it.
func isTransient(err error) bool {
	return !client.IsUnauthorized(err) &&
		!errors.Is(err, client.ErrCircuitOpen) &&
		!errors.Is(err, views.ErrInvalidParams) &&
		!errors.Is(err, views.ErrFixedFilter)
}

// userMessage returns the backend's explanation of err when there is one.
func userMessage(err error) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return fmt.Sprintf("The memory service said: %s", apiErr.Message)
	}
	return "The memory service could not complete the request."
}

// setFlash stores a message shown once on the next rendered page.
func setFlash(w http.ResponseWriter, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    url.QueryEscape(msg),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash returns and clears the pending flash message.
func popFlash(w http.ResponseWriter, r *http.Request) string {
	ck, err := r.Cookie(flashCookie)
	if err != nil || ck.Value == "" {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Value: "", Path: "/", MaxAge: -1})
	msg, err := url.QueryUnescape(ck.Value)
	if err != nil {
		return ""
	}
	return msg
}

// redirectWithFlash redirects to target after a successful POST.
func redirectWithFlash(w http.ResponseWriter, r *http.Request, target, msg string) {
	if msg != "" {
		setFlash(w, msg)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}
