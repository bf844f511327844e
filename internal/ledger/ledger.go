// Package ledger records which proposals have already been carried out.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Record is one successful execution
type Record struct {
	ProposalID string
	RoomID     string
	Kind       string
	ExternalID string
	Summary    string
	ApprovedBy string
	ExecutedAt time.Time
}

// DB is the execution ledger
type DB struct {
	db *sql.DB
}

// Open opens or creates the ledger. ":memory:" keeps it in memory.
func Open(path string) (*DB, error) {
	dsn := ":memory:"
	if path != "" && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// an in-memory database exists per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	l := &DB{db: db}
	if err := l.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return l, nil
}

func (l *DB) migrate() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS executions (
			proposal_id TEXT PRIMARY KEY,
			room_id     TEXT NOT NULL,
			kind        TEXT NOT NULL,
			external_id TEXT NOT NULL,
			summary     TEXT NOT NULL DEFAULT '',
			approved_by TEXT NOT NULL DEFAULT '',
			executed_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_executions_room ON executions(room_id);
	`)
	return err
}

// Close closes the database
func (l *DB) Close() error {
	return l.db.Close()
}

// Lookup returns the record for a proposal, if it was executed
func (l *DB) Lookup(ctx context.Context, proposalID string) (Record, bool, error) {
	var (
		r  Record
		ts int64
	)
	err := l.db.QueryRowContext(ctx, `
		SELECT proposal_id, room_id, kind, external_id, summary, approved_by, executed_at
		FROM executions WHERE proposal_id = ?`, proposalID).
		Scan(&r.ProposalID, &r.RoomID, &r.Kind, &r.ExternalID, &r.Summary, &r.ApprovedBy, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("lookup %s: %w", proposalID, err)
	}
	r.ExecutedAt = time.UnixMilli(ts)
	return r, true, nil
}

// Put stores a record. A proposal is recorded at most once.
func (l *DB) Put(ctx context.Context, r Record) error {
	if r.ExecutedAt.IsZero() {
		r.ExecutedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO executions
			(proposal_id, room_id, kind, external_id, summary, approved_by, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ProposalID, r.RoomID, r.Kind, r.ExternalID, r.Summary, r.ApprovedBy, r.ExecutedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("record %s: %w", r.ProposalID, err)
	}
	return nil
}

// CountByRoom returns executions per room
func (l *DB) CountByRoom(ctx context.Context) (map[string]int, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT room_id, COUNT(*) FROM executions GROUP BY room_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			room string
			n    int
		)
		if err := rows.Scan(&room, &n); err != nil {
			return nil, err
		}
		counts[room] = n
	}
	return counts, rows.Err()
}
