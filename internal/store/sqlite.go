package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Schema for the record tables. OpenSQLite applies it.
const Schema = `
CREATE TABLE IF NOT EXISTS actions (
	id TEXT PRIMARY KEY,
	session TEXT NOT NULL,
	action TEXT NOT NULL,
	result TEXT NOT NULL,
	url TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS observations (
	id TEXT PRIMARY KEY,
	session TEXT NOT NULL,
	instruction TEXT NOT NULL,
	description TEXT NOT NULL,
	locator TEXT NOT NULL,
	url TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_observations_session ON observations(session, created_at);
`

// SQLite is a Store backed by modernc.org/sqlite
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path. ":memory:" works for tests.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One connection so ":memory:" is a single database and writes serialize.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) RecordAction(ctx context.Context, rec ActionRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO actions (id, session, action, result, url, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET session = excluded.session, action = excluded.action,
			result = excluded.result, url = excluded.url, created_at = excluded.created_at`,
		rec.ID, rec.Session, rec.Action, rec.Result, rec.URL, rec.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("record action: %w", err)
	}
	return nil
}

func (s *SQLite) RecordObservation(ctx context.Context, rec ObservationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	locator, err := json.Marshal(rec.Locator)
	if err != nil {
		return fmt.Errorf("encode locator: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO observations (id, session, instruction, description, locator, url, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET session = excluded.session, instruction = excluded.instruction,
			description = excluded.description, locator = excluded.locator, url = excluded.url,
			created_at = excluded.created_at`,
		rec.ID, rec.Session, rec.Instruction, rec.Description, string(locator), rec.URL, rec.CreatedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("record observation: %w", err)
	}
	return nil
}

func (s *SQLite) Action(ctx context.Context, id string) (*ActionRecord, error) {
	var (
		rec     ActionRecord
		created int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, session, action, result, url, created_at FROM actions WHERE id = ?`, id).
		Scan(&rec.ID, &rec.Session, &rec.Action, &rec.Result, &rec.URL, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load action: %w", err)
	}
	rec.CreatedAt = time.Unix(0, created)
	return &rec, nil
}

func (s *SQLite) Observations(ctx context.Context, session string) ([]ObservationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session, instruction, description, locator, url, created_at
		FROM observations WHERE ? = '' OR session = ? ORDER BY created_at, id`, session, session)
	if err != nil {
		return nil, fmt.Errorf("list observations: %w", err)
	}
	defer rows.Close()

	var out []ObservationRecord
	for rows.Next() {
		var (
			rec     ObservationRecord
			locator string
			created int64
		)
		if err := rows.Scan(&rec.ID, &rec.Session, &rec.Instruction, &rec.Description, &locator, &rec.URL, &created); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		if err := json.Unmarshal([]byte(locator), &rec.Locator); err != nil {
			return nil, fmt.Errorf("decode locator of %s: %w", rec.ID, err)
		}
		rec.CreatedAt = time.Unix(0, created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
