// Package session owns the console's notion of "who is logged in".
//
// A Session is an explicit object handed to the API client at construction.
// Login calls Begin, logout calls End, and an authorization failure reported
// by the backend calls Expire, which notifies subscribers. Session state is
// persisted through a Store so it survives console restarts.
package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that no session is stored under the key.
	ErrNotFound = errors.New("session: not found")

	// ErrInvalidKey indicates an empty session key.
	ErrInvalidKey = errors.New("session: invalid key")
)

// Record is the persisted form of a session. The user identifier survives
// logout and expiry so forms can be prefilled; the token does not.
type Record struct {
	UserID    string
	Token     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Active reports whether the record carries a backend token.
func (r Record) Active() bool { return r.Token != "" }

// Store persists session records by key.
type Store interface {
	// Load returns the record stored under key, or ErrNotFound.
	Load(ctx context.Context, key string) (*Record, error)

	// Save creates or replaces the record under key (upsert semantics).
	Save(ctx context.Context, key string, rec Record) error

	// Delete removes the record under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the store.
	Close() error
}
