package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// sqlStore implements Store on database/sql. The SQLite and PostgreSQL
// stores differ only in driver, placeholders and connection setup.
type sqlStore struct {
	db      *sql.DB
	dialect string
}

const (
	dialectSQLite   = "sqlite"
	dialectPostgres = "postgres"
)

// timeLayout is RFC 3339 with a fixed-width fraction, so stored timestamps
// compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// schema is valid for both SQLite and PostgreSQL. Timestamps are stored as
// UTC text in timeLayout so both dialects scan them the same way.
const schema = `
CREATE TABLE IF NOT EXISTS console_sessions (
	session_key TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL DEFAULT '',
	token       TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
`

// rebind rewrites ? placeholders to $N for PostgreSQL.
func (s *sqlStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *sqlStore) Load(ctx context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}

	var rec Record
	var created, updated string
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT user_id, token, created_at, updated_at FROM console_sessions WHERE session_key = ?`), key,
	).Scan(&rec.UserID, &rec.Token, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("session: %s: failed to load %s: %w", s.dialect, key, err)
	}

	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &rec, nil
}

func (s *sqlStore) Save(ctx context.Context, key string, rec Record) error {
	if key == "" {
		return ErrInvalidKey
	}

	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}

	// created_at is only written on insert so the original login time survives.
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO console_sessions (session_key, user_id, token, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET
			user_id = excluded.user_id,
			token = excluded.token,
			updated_at = excluded.updated_at
	`), key, rec.UserID, rec.Token,
		rec.CreatedAt.UTC().Format(timeLayout),
		rec.UpdatedAt.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("session: %s: failed to save %s: %w", s.dialect, key, err)
	}
	return nil
}

func (s *sqlStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM console_sessions WHERE session_key = ?`), key)
	if err != nil {
		return fmt.Errorf("session: %s: failed to delete %s: %w", s.dialect, key, err)
	}
	return nil
}

// PurgeInactive removes records without a token that were last touched
// before cutoff. It returns the number of rows removed.
func (s *sqlStore) PurgeInactive(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`DELETE FROM console_sessions WHERE token = '' AND updated_at < ?`),
		cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, fmt.Errorf("session: %s: failed to purge: %w", s.dialect, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
