// Package connections opens the configured catalog store backend. It is the
// one place that knows both concrete store implementations; everything else
// works against storage.Store.
package connections

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/carverlabs/scribe/internal/storage"
	"github.com/carverlabs/scribe/internal/storage/postgres"
	"github.com/carverlabs/scribe/internal/storage/sqlite"
)

// DatabaseConfig selects and parameterizes the catalog store backend.
type DatabaseConfig struct {
	Engine string `json:"engine"` // sqlite, postgresql

	// SQLite
	Path string `json:"path,omitempty"`

	// PostgreSQL, either a full DSN or discrete parts
	DSN      string `json:"dsn,omitempty"`
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Database string `json:"database,omitempty"`
	SSLMode  string `json:"sslmode,omitempty"`
}

// postgresDSN returns the DSN to connect with, assembling one from discrete
// parts when no full DSN was given.
func (c DatabaseConfig) postgresDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	host := c.Host
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Username, c.Password, host, port, c.Database, sslmode)
}

// Describe returns a log-safe description of the configured backend.
func Describe(cfg DatabaseConfig) string {
	switch cfg.Engine {
	case storage.BackendPostgres, "postgres":
		return fmt.Sprintf("postgresql (%s)", storage.SanitizeDSN(cfg.postgresDSN()))
	default:
		return fmt.Sprintf("sqlite (%s)", cfg.Path)
	}
}

// Open creates the configured store backend. SQLite paths get their parent
// directory created on demand; PostgreSQL failures log a redacted DSN.
func Open(cfg DatabaseConfig) (storage.Store, error) {
	switch cfg.Engine {
	case "", storage.BackendSQLite:
		if cfg.Path == "" {
			return nil, fmt.Errorf("%w: sqlite path is required", storage.ErrInvalidInput)
		}
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
			}
		}
		store, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store at %s: %w", cfg.Path, err)
		}
		return store, nil

	case storage.BackendPostgres, "postgres":
		dsn := cfg.postgresDSN()
		store, err := postgres.New(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open postgresql store (DSN: %s): %w",
				storage.SanitizeDSN(dsn), err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("%w: unknown database engine %q", storage.ErrInvalidInput, cfg.Engine)
	}
}

// MustOpen opens the configured backend or exits. Intended for binary
// startup where there is nothing useful to do without a store.
func MustOpen(cfg DatabaseConfig) storage.Store {
	store, err := Open(cfg)
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	return store
}
