package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS calls (
	id          TEXT PRIMARY KEY,
	command     TEXT NOT NULL,
	policy_id   TEXT NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	attempts    INTEGER NOT NULL,
	ok          INTEGER NOT NULL,
	category    TEXT NOT NULL DEFAULT '',
	error_type  TEXT NOT NULL DEFAULT '',
	code        TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL DEFAULT '',
	attributes  TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_calls_started_at ON calls(started_at);
CREATE INDEX IF NOT EXISTS idx_calls_command ON calls(command);
`

// SQLiteSink stores entries in a sqlite database.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
// ":memory:" gives a private in-memory database.
func OpenSQLite(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // sqlite
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// sqliteDSN escapes path so '?' and '#' in a file name stay part of it.
func sqliteDSN(path string) string {
	u := url.URL{
		Scheme:   "file",
		Opaque:   url.PathEscape(path),
		RawQuery: "_busy_timeout=5000",
	}
	return u.String()
}

func (s *SQLiteSink) Write(ctx context.Context, e Entry) error {
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return fmt.Errorf("journal: encode attributes: %w", err)
	}
	if e.Attributes == nil {
		attrs = []byte("{}")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO calls (id, command, policy_id, started_at, duration_ms, attempts, ok,
			category, error_type, code, message, attributes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Command, e.PolicyID, e.Start.UnixNano(), e.DurationMs, e.Attempts, e.OK,
		e.Category, e.ErrorType, e.Code, e.Message, string(attrs),
	)
	if err != nil {
		return fmt.Errorf("journal: insert %s: %w", e.ID, err)
	}
	return nil
}

func (s *SQLiteSink) Recent(ctx context.Context, n int) ([]Entry, error) {
	limit := n
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, command, policy_id, started_at, duration_ms, attempts, ok,
			category, error_type, code, message, attributes
		FROM calls
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: query: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e       Entry
			started int64
			attrs   string
		)
		if err := rows.Scan(&e.ID, &e.Command, &e.PolicyID, &started, &e.DurationMs, &e.Attempts, &e.OK,
			&e.Category, &e.ErrorType, &e.Code, &e.Message, &attrs); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		e.Start = time.Unix(0, started).UTC()
		if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
			return nil, fmt.Errorf("journal: decode attributes of %s: %w", e.ID, err)
		}
		if len(e.Attributes) == 0 {
			e.Attributes = nil
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteSink) Close() error { return s.db.Close() }
