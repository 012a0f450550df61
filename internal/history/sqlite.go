package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS search_history (
	seq   INTEGER PRIMARY KEY,
	query TEXT NOT NULL,
	title TEXT NOT NULL,
	url   TEXT NOT NULL,
	ts    TEXT NOT NULL
)`

// SQLitePersister keeps the history in a single SQLite table, one row per record.
type SQLitePersister struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the history database at path.
func OpenSQLite(path string) (*SQLitePersister, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("history sqlite: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history sqlite: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history sqlite: init schema: %w", err)
	}
	return &SQLitePersister{db: db}, nil
}

func (p *SQLitePersister) Load(ctx context.Context) ([]Record, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT query, title, url, ts FROM search_history ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("history sqlite: query: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Query, &r.Title, &r.URL, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("history sqlite: scan: %w", err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Save replaces every row with records in one transaction.
func (p *SQLitePersister) Save(ctx context.Context, records []Record) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history sqlite: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM search_history`); err != nil {
		return fmt.Errorf("history sqlite: clear: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO search_history (seq, query, title, url, ts) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("history sqlite: prepare: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		if _, err := stmt.ExecContext(ctx, i, r.Query, r.Title, r.URL, r.Timestamp); err != nil {
			return fmt.Errorf("history sqlite: insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history sqlite: commit: %w", err)
	}
	return nil
}

func (p *SQLitePersister) Close() error { return p.db.Close() }
