package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// timeLayout is fixed-width so that created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one answered query.
type Entry struct {
	ID        string
	City      string
	Key       string
	Outcome   string
	Answer    string
	CreatedAt time.Time
}

// Journal keeps a record of answered queries. It is write-only from the
// prediction path's point of view; nothing read back influences answers.
type Journal struct {
	db *sql.DB
}

// Open opens (or creates) the journal database at path and applies the schema.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}

	schema := `CREATE TABLE IF NOT EXISTS predictions (
		id TEXT PRIMARY KEY,
		city TEXT NOT NULL,
		city_key TEXT NOT NULL,
		outcome TEXT NOT NULL,
		answer TEXT NOT NULL,
		created_at TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: create schema: %w", err)
	}

	return &Journal{db: db}, nil
}

// Record stores e, filling in ID and CreatedAt when they are empty, and
// returns the stored entry.
func (j *Journal) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO predictions(id, city, city_key, outcome, answer, created_at) VALUES(?,?,?,?,?,?)`,
		e.ID, e.City, e.Key, e.Outcome, e.Answer, e.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		return Entry{}, fmt.Errorf("history: record: %w", err)
	}
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := j.db.QueryContext(ctx,
		`SELECT id, city, city_key, outcome, answer, created_at FROM predictions ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts string
		if err := rows.Scan(&e.ID, &e.City, &e.Key, &e.Outcome, &e.Answer, &ts); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		t, err := time.Parse(timeLayout, ts)
		if err != nil {
			return nil, fmt.Errorf("history: entry %s: bad created_at %q: %w", e.ID, ts, err)
		}
		e.CreatedAt = t
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
