// Package registry persists the subscriber set in a sqlite file so it
// survives process restarts.
package registry

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"mensabot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// ErrNotFound reports a preference change or unsubscribe for an identity
// that has no record. It is informational, not an internal error.
var ErrNotFound = errors.New("registry: subscriber not found")

// Preference selects which weekdays a subscriber receives the menu on.
type Preference string

const (
	FullWeek   Preference = "weekdays"
	MondayOnly Preference = "mondays"
)

func (p Preference) Valid() bool { return p == FullWeek || p == MondayOnly }

// Subscriber is one subscribed chat with its delivery preference.
type Subscriber struct {
	ChatID     int64
	Preference Preference
}

type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Store is the sqlite-backed subscription registry. All mutations happen on
// the single dispatch goroutine, so the store needs no locking of its own
// beyond sqlite's.
type Store struct {
	db  *sql.DB
	log logx.Logger
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("registry: sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &Store{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Subscribe inserts the identity if absent. It is idempotent: an existing
// record is returned unchanged, preference included.
func (s *Store) Subscribe(ctx context.Context, chatID int64) (Subscriber, bool, error) {
	existing, err := s.get(ctx, chatID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Subscriber{}, false, err
	}

	sub := Subscriber{ChatID: chatID, Preference: FullWeek}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO subscribers(chat_id, preference) VALUES(?, ?)`,
		sub.ChatID, string(sub.Preference),
	)
	if err != nil {
		return Subscriber{}, false, err
	}
	return sub, true, nil
}

// SetPreference updates the delivery preference. It reports false if the
// identity is not subscribed.
func (s *Store) SetPreference(ctx context.Context, chatID int64, pref Preference) (bool, error) {
	if !pref.Valid() {
		return false, fmt.Errorf("registry: invalid preference %q", pref)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscribers SET preference = ? WHERE chat_id = ?`,
		string(pref), chatID,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Unsubscribe removes the identity. It reports false if there was no record.
func (s *Store) Unsubscribe(ctx context.Context, chatID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE chat_id = ?`, chatID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListAll enumerates every subscriber; order carries no meaning.
func (s *Store) ListAll(ctx context.Context) ([]Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chat_id, preference FROM subscribers`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscriber
	for rows.Next() {
		var sub Subscriber
		var pref string
		if err := rows.Scan(&sub.ChatID, &pref); err != nil {
			return nil, err
		}
		sub.Preference = Preference(pref)
		if !sub.Preference.Valid() {
			sub.Preference = FullWeek
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// Count returns the number of active subscribers.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM subscribers`).Scan(&n)
	return n, err
}

// GetMeta reads a small bookkeeping value (e.g. the schedule loop's
// last-fired-day watermark). A missing key returns "" without error.
func (s *Store) GetMeta(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return v, err
}

// SetMeta upserts a bookkeeping value.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

func (s *Store) get(ctx context.Context, chatID int64) (Subscriber, error) {
	var sub Subscriber
	var pref string
	err := s.db.QueryRowContext(ctx,
		`SELECT chat_id, preference FROM subscribers WHERE chat_id = ?`, chatID,
	).Scan(&sub.ChatID, &pref)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscriber{}, ErrNotFound
	}
	if err != nil {
		return Subscriber{}, err
	}
	sub.Preference = Preference(pref)
	if !sub.Preference.Valid() {
		sub.Preference = FullWeek
	}
	return sub, nil
}
