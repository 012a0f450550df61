package history

import (
	"context"
	"fmt"
	"strings"
)

// Backend names accepted by OpenPersister.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// BackendConfig selects and locates the durable history backend.
type BackendConfig struct {
	Backend     string
	File        string
	SQLitePath  string
	DatabaseURL string
}

// OpenPersister opens the configured backend. An empty backend name means file.
func OpenPersister(ctx context.Context, cfg BackendConfig) (Persister, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendFile:
		return NewFilePersister(cfg.File), nil
	case BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = "search_history.db"
		}
		return OpenSQLite(path)
	case BackendPostgres:
		return ConnectPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, fmt.Errorf("history: unknown backend %q (valid: file, sqlite, postgres)", cfg.Backend)
	}
}
