package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	started_at INTEGER NOT NULL,
	channels   INTEGER NOT NULL,
	added      TEXT NOT NULL DEFAULT '',
	removed    TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS snapshot (
	run_id   TEXT NOT NULL REFERENCES runs(id),
	position INTEGER NOT NULL,
	name     TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);`

// Run is one recorded catalog fetch.
type Run struct {
	ID        string
	StartedAt time.Time
	Channels  int
	Added     []string
	Removed   []string
}

// Store is the sqlite run log.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Previous returns the channel names of the latest run, or nil when there is none.
func (s *Store) Previous(ctx context.Context) ([]string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY started_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("history: latest run: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM snapshot WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("history: snapshot: %w", err)
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Record stores names as a new run with its change against the previous run and returns
// the run id.
func (s *Store) Record(ctx context.Context, names []string, c Change, at time.Time) (string, error) {
	id := uuid.NewString()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, channels, added, removed) VALUES (?, ?, ?, ?, ?)`,
		id, at.Unix(), len(names), strings.Join(c.Added, "\n"), strings.Join(c.Removed, "\n")); err != nil {
		return "", fmt.Errorf("history: insert run: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot (run_id, position, name) VALUES (?, ?, ?)`)
	if err != nil {
		return "", err
	}
	defer stmt.Close()
	for i, n := range names {
		if _, err := stmt.ExecContext(ctx, id, i, n); err != nil {
			return "", fmt.Errorf("history: insert snapshot: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("history: commit: %w", err)
	}
	return id, nil
}

// Runs returns up to limit runs, newest first.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, channels, added, removed FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("history: runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		var ts int64
		var added, removed string
		if err := rows.Scan(&r.ID, &ts, &r.Channels, &added, &removed); err != nil {
			return nil, err
		}
		r.StartedAt = time.Unix(ts, 0)
		r.Added = splitLines(added)
		r.Removed = splitLines(removed)
		out = append(out, r)
	}
	return out, rows.Err()
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
