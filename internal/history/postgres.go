package history

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `CREATE TABLE IF NOT EXISTS search_history (
	seq   INTEGER PRIMARY KEY,
	query TEXT NOT NULL,
	title TEXT NOT NULL,
	url   TEXT NOT NULL,
	ts    TEXT NOT NULL
)`

// PostgresPersister keeps the history in a PostgreSQL table.
type PostgresPersister struct {
	pool *pgxpool.Pool
}

// ConnectPostgres creates a pgx pool and ensures the history table exists.
func ConnectPostgres(ctx context.Context, databaseURL string) (*PostgresPersister, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	config.MaxConns = 4
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history postgres: init schema: %w", err)
	}

	slog.Info("history postgres connected", slog.String("addr", config.ConnConfig.Host))
	return &PostgresPersister{pool: pool}, nil
}

func (p *PostgresPersister) Load(ctx context.Context) ([]Record, error) {
	rows, err := p.pool.Query(ctx, `SELECT query, title, url, ts FROM search_history ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("history postgres: query: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Record, error) {
		var r Record
		err := row.Scan(&r.Query, &r.Title, &r.URL, &r.Timestamp)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("history postgres: scan: %w", err)
	}
	return recs, nil
}

// Save replaces every row with records in one transaction.
func (p *PostgresPersister) Save(ctx context.Context, records []Record) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("history postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `DELETE FROM search_history`); err != nil {
		return fmt.Errorf("history postgres: clear: %w", err)
	}
	for i, r := range records {
		if _, err := tx.Exec(ctx,
			`INSERT INTO search_history (seq, query, title, url, ts) VALUES ($1, $2, $3, $4, $5)`,
			i, r.Query, r.Title, r.URL, r.Timestamp,
		); err != nil {
			return fmt.Errorf("history postgres: insert: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("history postgres: commit: %w", err)
	}
	return nil
}

func (p *PostgresPersister) Close() error {
	p.pool.Close()
	return nil
}
