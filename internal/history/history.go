// Package history persists hit and fault records to a local SQLite
// database for later inspection. The store is optional; the service
// runs without it when no path is configured.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/piotrkotrych/tarczownix/internal/types"
)

const (
	defaultLimit = 50
	maxLimit     = 200

	busyTimeoutMs = 5000
)

const schema = `
CREATE TABLE IF NOT EXISTS hits (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	pair       INTEGER NOT NULL,
	side       TEXT    NOT NULL,
	dwell_ms   INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_hits_created_at ON hits(created_at);

CREATE TABLE IF NOT EXISTS faults (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	pair       INTEGER NOT NULL,
	side       TEXT    NOT NULL,
	message    TEXT    NOT NULL,
	created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_faults_created_at ON faults(created_at);
`

// HitEntry is one recorded sensor trigger.
type HitEntry struct {
	ID        int64
	Pair      int
	Side      types.Side
	DwellMs   int64
	CreatedAt time.Time
}

// FaultEntry is one recorded timeout abort.
type FaultEntry struct {
	ID        int64
	Pair      int
	Side      types.Side
	Message   string
	CreatedAt time.Time
}

// Store wraps the SQLite connection. SQLite supports a single writer,
// so the pool is capped to one connection.
type Store struct {
	db *sql.DB
}

// Open creates or opens the history database at path and ensures the
// schema exists.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		path, busyTimeoutMs)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("verifying history database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history schema: %w", err)
	}

	return &Store{db: db}, nil
}

// RecordHit inserts one hit.
func (s *Store) RecordHit(ctx context.Context, pair int, side types.Side, dwell time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO hits (pair, side, dwell_ms) VALUES (?, ?, ?)",
		pair, string(side), dwell.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("inserting hit: %w", err)
	}
	return nil
}

// RecordFault inserts one fault record.
func (s *Store) RecordFault(ctx context.Context, rec types.FaultRecord) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO faults (pair, side, message) VALUES (?, ?, ?)",
		rec.PairIndex, string(rec.Side), rec.Message,
	)
	if err != nil {
		return fmt.Errorf("inserting fault: %w", err)
	}
	return nil
}

// RecentHits returns the newest hits first, bounded by limit.
func (s *Store) RecentHits(ctx context.Context, limit int) ([]HitEntry, error) {
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pair, side, dwell_ms, created_at
		 FROM hits ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying hits: %w", err)
	}
	defer rows.Close()

	entries := make([]HitEntry, 0, limit)
	for rows.Next() {
		var e HitEntry
		var side string
		if err := rows.Scan(&e.ID, &e.Pair, &side, &e.DwellMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		e.Side = types.Side(side)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating hits: %w", err)
	}
	return entries, nil
}

// RecentFaults returns the newest faults first, bounded by limit.
func (s *Store) RecentFaults(ctx context.Context, limit int) ([]FaultEntry, error) {
	limit = clampLimit(limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, pair, side, message, created_at
		 FROM faults ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying faults: %w", err)
	}
	defer rows.Close()

	entries := make([]FaultEntry, 0, limit)
	for rows.Next() {
		var e FaultEntry
		var side string
		if err := rows.Scan(&e.ID, &e.Pair, &side, &e.Message, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning fault: %w", err)
		}
		e.Side = types.Side(side)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating faults: %w", err)
	}
	return entries, nil
}

// Prune deletes hits and faults older than the retention window and
// returns the number of rows removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}
	cutoff := time.Now().Add(-olderThan).UTC()

	var total int64
	for _, table := range []string{"hits", "faults"} {
		res, err := s.db.ExecContext(ctx,
			fmt.Sprintf("DELETE FROM %s WHERE created_at < ?", table), cutoff)
		if err != nil {
			return total, fmt.Errorf("pruning %s: %w", table, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("pruning %s: %w", table, err)
		}
		total += n
	}
	return total, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
