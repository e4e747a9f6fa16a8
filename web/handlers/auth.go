package handlers

import (
	"errors"
	"net/http"

	"github.com/scrypster/xmemory/internal/session"
	"github.com/scrypster/xmemory/internal/views"
	"github.com/scrypster/xmemory/pkg/client"
	"go.uber.org/zap"
)

// LoginPage handles GET /login.
func (c *Console) LoginPage(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	if s != nil && s.Active() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	data := loginPage{Expired: r.URL.Query().Get("expired") == "1"}
	if s != nil {
		data.Username = s.UserID()
	}
	c.renderer.Render(w, http.StatusOK, "login", c.page(w, r, data))
}

// Login handles POST /login. A successful login always moves the browser
// to a new key, so a key known before login never becomes authenticated.
func (c *Console) Login(w http.ResponseWriter, r *http.Request) {
	prev := SessionFromContext(r.Context())
	form := views.LoginForm{
		Username: r.PostFormValue("username"),
		Password: r.PostFormValue("password"),
	}

	fresh, err := c.sessions.Get(r.Context(), c.sessions.NewKey())
	if err != nil {
		c.logger.Error("failed to create session", zap.Error(err))
		c.renderError(w, r, http.StatusServiceUnavailable, "Service unavailable", "Sessions are not available right now.")
		return
	}

	err = form.Submit(r.Context(), c.clientFor(fresh))
	if err == nil {
		c.retire(r, prev)
		setSessionCookie(w, c.cookie, fresh.Key())
		redirectWithFlash(w, r, "/", "Welcome, "+fresh.UserID())
		return
	}

	data := loginPage{Username: form.Username}
	pd := c.page(w, r, data)
	status := http.StatusBadGateway

	var verr *views.ValidationError
	switch {
	case errors.As(err, &verr):
		data.Errors = verr
		status = http.StatusUnprocessableEntity
	case errors.Is(err, client.ErrInvalidCredentials):
		pd.Error = "Invalid username or password."
		status = http.StatusUnauthorized
	case errors.Is(err, client.ErrCircuitOpen):
		pd.Error = "The memory service is not responding. Please try again in a moment."
		status = http.StatusServiceUnavailable
	default:
		c.logger.Error("login failed", zap.String("username", form.Username), zap.Error(err))
		pd.Error = userMessage(err)
	}
	pd.Data = data
	c.renderer.Render(w, status, "login", pd)
}

// retire ends prev once a login replaced it and deletes its record.
func (c *Console) retire(r *http.Request, prev *session.Session) {
	if prev == nil {
		return
	}
	if prev.Active() {
		if err := c.clientFor(prev).Logout(r.Context()); err != nil {
			c.logger.Warn("logout of replaced session failed", zap.Error(err))
		}
	}
	if err := c.sessions.Discard(r.Context(), prev.Key()); err != nil {
		c.logger.Warn("failed to discard replaced session", zap.Error(err))
	}
}

// Logout handles POST /logout. The local session ends even if the backend
// call fails.
func (c *Console) Logout(w http.ResponseWriter, r *http.Request) {
	s := SessionFromContext(r.Context())
	if s != nil {
		if err := c.clientFor(s).Logout(r.Context()); err != nil {
			c.logger.Warn("logout failed", zap.Error(err))
		}
	}
	redirectWithFlash(w, r, "/login", "You have been logged out.")
}
