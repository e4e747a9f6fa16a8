package client

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrUnauthorized is returned when the backend rejects the session token.
	// The client has already expired the session when this is returned.
	ErrUnauthorized = errors.New("client: session expired")

	// ErrInvalidCredentials is returned by Login for a 401 response.
	ErrInvalidCredentials = errors.New("client: invalid username or password")

	// ErrNotFound is matched by APIErrors carrying a 404 status.
	ErrNotFound = errors.New("client: not found")

	// ErrCircuitOpen is returned while the backend circuit breaker is open
	// and requests are rejected without being sent.
	ErrCircuitOpen = errors.New("client: backend unavailable (circuit open)")

	// ErrUserRequired is returned for user-scoped calls without a user id.
	ErrUserRequired = errors.New("client: user id is required")
)

// APIError is a non-2xx backend response other than 401.
type APIError struct {
	StatusCode int
	Message    string
	Method     string
	Path       string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("client: %s %s: %d %s", e.Method, e.Path, e.StatusCode, msg)
}

// Unwrap lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	return nil
}

// IsNotFound reports whether err is a 404 from the backend.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnauthorized reports whether err means the session is no longer valid.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
