// Package server provides HTTP server initialization and lifecycle management
// for the XMemory web console.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/scrypster/xmemory/internal/config"
	"github.com/scrypster/xmemory/internal/session"
	"github.com/scrypster/xmemory/web/handlers"
	"go.uber.org/zap"
)

// NewRouter builds the console's route table. Everything except the login
// pages, the health check and logout requires an active session.
func NewRouter(cfg *config.Config, sessions *session.Manager, console *handlers.Console, hub *handlers.WebSocketHub, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handlers.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(handlers.SecurityHeaders)
	r.Use(handlers.RateLimitMiddleware(handlers.NewRateLimiter(cfg.Security.RateLimit, cfg.Security.RateBurst)))

	// Health endpoint: no session, used by monitoring
	r.Get("/api/health", console.Health)

	r.Group(func(r chi.Router) {
		r.Use(handlers.SessionMiddleware(sessions, handlers.CookieOptions{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.CookieSecure,
		}, logger))

		r.Get("/login", console.LoginPage)
		r.Post("/login", console.Login)
		r.Post("/logout", console.Logout)

		r.Group(func(r chi.Router) {
			r.Use(handlers.RequireSession)

			r.Get("/", console.CreatePage)
			r.Get("/ws", hub.ServeHTTP)

			r.Route("/memories", func(r chi.Router) {
				r.Get("/", console.ListMemories)
				r.Post("/", console.CreateMemory)
				r.Post("/delete", console.DeleteMemories)
				r.Get("/{id}", console.ShowMemory)
				r.Post("/{id}", console.UpdateMemory)
			})

			r.Get("/search", console.Search)

			r.Route("/projects", func(r chi.Router) {
				r.Get("/", console.ListProjects)
				r.Post("/", console.CreateProject)
				r.Get("/{id}", console.ShowProject)
				r.Post("/{id}/delete", console.DeleteProject)
				r.Post("/{id}/tasks", console.CreateTask)
				r.Post("/{id}/tasks/{taskID}", console.UpdateTask)
				r.Post("/{id}/tasks/{taskID}/delete", console.DeleteTask)
			})
		})
	})

	return r
}

// Start initializes and starts the HTTP server.
// Returns the actual address being listened on (useful for testing with port 0)
// and the WebSocketHub. The server shuts down when ctx is cancelled.
func Start(ctx context.Context, cfg *config.Config, sessions *session.Manager, logger *zap.Logger) (string, *handlers.WebSocketHub, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	hub := handlers.NewWebSocketHub(logger)
	console, err := handlers.NewConsole(cfg, sessions, hub, logger)
	if err != nil {
		return "", nil, fmt.Errorf("server: %w", err)
	}

	// Tell the other tabs of a session that it expired.
	sessions.OnExpired(func(ev session.Event) {
		hub.SendTo(ev.Key, handlers.Event{Type: handlers.EventSessionExpired})
	})

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      NewRouter(cfg, sessions, console, hub, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return "", nil, fmt.Errorf("server: failed to listen on %s: %w", srv.Addr, err)
	}
	actualAddr := listener.Addr().String()

	go hub.Run()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
		}
	}()

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Tell open tabs before their connections drop.
		hub.Shutdown(shutdownCtx, handlers.Event{Type: handlers.EventServerShutdown})
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("xmemory console listening", zap.String("addr", actualAddr), zap.String("backend", cfg.Backend.BaseURL))
	return actualAddr, hub, nil
}
