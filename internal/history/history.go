// Package history records zone activations to a small SQLite
// database for later inspection (spec §12's supplemental activation log).
// The connection setup (WAL mode, busy timeout, pure-Go driver) is grounded
// on the host project's internal/database package, trimmed from its
// multi-profile, multi-database design down to the single append-mostly
// table this log needs.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS activations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	started_at INTEGER NOT NULL,
	zone_name TEXT NOT NULL,
	context TEXT NOT NULL,
	seconds INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_activations_started_at ON activations(started_at);
`

// Entry is one recorded zone activation.
type Entry struct {
	StartedAt int64
	ZoneName  string
	Context   string
	Seconds   int
}

// Log wraps a SQLite connection dedicated to the activation history table.
type Log struct {
	conn *sql.DB
}

// Open creates or opens the database file at path and ensures the schema
// exists.
func Open(path string) (*Log, error) {
	connStr := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging history database: %w", err)
	}

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("applying history schema: %w", err)
	}

	return &Log{conn: conn}, nil
}

// Close closes the underlying connection.
func (l *Log) Close() error { return l.conn.Close() }

// Record inserts a single activation entry.
func (l *Log) Record(ctx context.Context, e Entry) error {
	_, err := l.conn.ExecContext(ctx,
		`INSERT INTO activations (started_at, zone_name, context, seconds) VALUES (?, ?, ?, ?)`,
		e.StartedAt, e.ZoneName, e.Context, e.Seconds)
	if err != nil {
		return fmt.Errorf("recording activation: %w", err)
	}
	return nil
}

// Recent returns the most recent entries, newest first, capped at limit.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.conn.QueryContext(ctx,
		`SELECT started_at, zone_name, context, seconds FROM activations ORDER BY started_at DESC, id DESC LIMIT ?`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("querying recent activations: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.StartedAt, &e.ZoneName, &e.Context, &e.Seconds); err != nil {
			return nil, fmt.Errorf("scanning activation row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activation rows: %w", err)
	}
	return out, nil
}

// ForZone returns the most recent entries for a single zone, newest first.
func (l *Log) ForZone(ctx context.Context, zoneName string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.conn.QueryContext(ctx,
		`SELECT started_at, zone_name, context, seconds FROM activations WHERE zone_name = ? ORDER BY started_at DESC, id DESC LIMIT ?`,
		zoneName, limit)
	if err != nil {
		return nil, fmt.Errorf("querying zone activations: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.StartedAt, &e.ZoneName, &e.Context, &e.Seconds); err != nil {
			return nil, fmt.Errorf("scanning activation row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating activation rows: %w", err)
	}
	return out, nil
}
