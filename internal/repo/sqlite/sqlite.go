package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/hamed0406/certwatch/internal/domain"
	"github.com/hamed0406/certwatch/internal/repo"
)

const schema = `
CREATE TABLE IF NOT EXISTS alert_history (
	target          TEXT PRIMARY KEY,
	last_alert_date TEXT NOT NULL
);`

// Store keeps the alert history in a local SQLite file.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Load(ctx context.Context) (repo.History, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT target, last_alert_date FROM alert_history`)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	h := make(repo.History)
	for rows.Next() {
		var target, date string
		if err := rows.Scan(&target, &date); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		h[domain.Target(target)] = date
	}
	return h, rows.Err()
}

// Save replaces every row inside one transaction.
func (s *Store) Save(ctx context.Context, h repo.History) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO alert_history (target, last_alert_date) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()
	for target, date := range h {
		if _, err := stmt.ExecContext(ctx, string(target), date); err != nil {
			return fmt.Errorf("insert %s: %w", target, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}
	return nil
}

var _ repo.AlertHistory = (*Store)(nil)
