package archive

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQLiteStore persists dead-letter records to SQLite.
// It is suitable for single-process production use.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a SQLite-backed archive.
// The path should be a file path (e.g., "./dead_letters.db") or ":memory:" for testing.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS dead_letters (
			message_id TEXT NOT NULL,
			queue TEXT NOT NULL,
			origin_queue TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			payload BLOB,
			error TEXT NOT NULL DEFAULT '',
			attempts INTEGER NOT NULL,
			dead_lettered_at TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_dead_letters_queue
		ON dead_letters(queue, dead_lettered_at)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create index: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Append implements Store.
func (s *SQLiteStore) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO dead_letters
			(message_id, queue, origin_queue, type, payload, error, attempts, dead_lettered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.MessageID, rec.Queue, rec.OriginQueue, rec.Type, rec.Payload, rec.Error,
		rec.Attempts, rec.DeadLetteredAt.UTC().Format(time.RFC3339Nano))

	if err != nil {
		return fmt.Errorf("append record: %w", err)
	}
	return nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	query, args := buildQuery(`
		SELECT message_id, queue, origin_queue, type, payload, error, attempts, dead_lettered_at
		FROM dead_letters
	`, filter)
	query += " ORDER BY dead_lettered_at"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var at string
		if err := rows.Scan(&rec.MessageID, &rec.Queue, &rec.OriginQueue, &rec.Type,
			&rec.Payload, &rec.Error, &rec.Attempts, &at); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.DeadLetteredAt, _ = time.Parse(time.RFC3339Nano, at)
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// Count implements Store.
func (s *SQLiteStore) Count(ctx context.Context, filter Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}

	query, args := buildQuery(`SELECT COUNT(*) FROM dead_letters`, filter)

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	return s.db.Close()
}

// buildQuery appends filter conditions to a base query.
func buildQuery(base string, filter Filter) (string, []any) {
	var conds []string
	var args []any
	if filter.Queue != "" {
		conds = append(conds, "queue = ?")
		args = append(args, filter.Queue)
	}
	if filter.Type != "" {
		conds = append(conds, "type = ?")
		args = append(args, filter.Type)
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "dead_lettered_at >= ?")
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}
	if len(conds) > 0 {
		base += " WHERE " + strings.Join(conds, " AND ")
	}
	return base, args
}
