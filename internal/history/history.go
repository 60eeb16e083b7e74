// Package history keeps an append-only audit log of snippet mutations in
// a local sqlite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE IF NOT EXISTS mutations (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	ts      INTEGER NOT NULL,
	op      TEXT    NOT NULL,
	trig    TEXT    NOT NULL,
	file    TEXT    NOT NULL,
	detail  TEXT    NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS mutations_ts ON mutations (ts DESC);
`

// Entry is one recorded mutation.
type Entry struct {
	ID      int64
	Time    time.Time
	Op      string
	Trigger string
	File    string
	Detail  string
}

// Log is an open history database. Safe for concurrent use.
type Log struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the history database at path. now defaults to
// time.Now.
func Open(path string, now func() time.Time) (*Log, error) {
	if now == nil {
		now = time.Now
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("initializing history schema: %w", err)
	}

	return &Log{db: db, now: now}, nil
}

// Close releases the database handle.
func (l *Log) Close() error { return l.db.Close() }

// Record appends one mutation row.
func (l *Log) Record(ctx context.Context, op, trigger, file, detail string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO mutations (ts, op, trig, file, detail) VALUES (?, ?, ?, ?, ?)`,
		l.now().UTC().UnixNano(), op, trigger, file, detail,
	)
	if err != nil {
		return fmt.Errorf("recording mutation: %w", err)
	}

	return nil
}

// List returns the newest mutations first, at most limit rows. A limit of
// zero or less means no cap.
func (l *Log) List(ctx context.Context, limit int) ([]Entry, error) {
	query := `SELECT id, ts, op, trig, file, detail FROM mutations ORDER BY ts DESC, id DESC`

	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing mutations: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			e  Entry
			ts int64
		)

		if err := rows.Scan(&e.ID, &ts, &e.Op, &e.Trigger, &e.File, &e.Detail); err != nil {
			return nil, fmt.Errorf("scanning mutation row: %w", err)
		}

		e.Time = time.Unix(0, ts).UTC()
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing mutations: %w", err)
	}

	return entries, nil
}

// Prune deletes all but the newest keep rows.
func (l *Log) Prune(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	res, err := l.db.ExecContext(ctx,
		`DELETE FROM mutations WHERE id NOT IN (SELECT id FROM mutations ORDER BY ts DESC, id DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("pruning mutations: %w", err)
	}

	return res.RowsAffected()
}
