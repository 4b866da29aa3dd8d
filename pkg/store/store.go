// Package store persists feed records keyed by natural identifiers and serves paginated queries over them.
// SQLite is the default backend, PostgreSQL is used when the DSN is a postgres URL.
package store

import (
	"context"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"
	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver, registered as "pgx"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // pure Go SQLite driver
)

//go:embed schema_sqlite.sql schema_postgres.sql
var schemaFS embed.FS

// DefaultDSN is used when no DSN is configured
const DefaultDSN = "file:spacefeed.db?cache=shared&mode=rwc&_txlock=immediate"

// Config represents database configuration
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is the persistent store adapter over sqlite or postgres
type Store struct {
	db      *sqlx.DB
	dialect dialect
}

type dialect string

const (
	dialectSQLite   dialect = "sqlite"
	dialectPostgres dialect = "postgres"
)

// New opens the database, applies connection settings and initializes the schema
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		cfg.DSN = DefaultDSN
	}

	d, driver := dialectSQLite, "sqlite"
	if strings.HasPrefix(cfg.DSN, "postgres://") || strings.HasPrefix(cfg.DSN, "postgresql://") {
		d, driver = dialectPostgres, "pgx"
	}

	db, err := sqlx.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if d == dialectSQLite && strings.Contains(cfg.DSN, ":memory:") {
		db.SetMaxOpenConns(1) // every connection to :memory: is a separate database
	}

	s := &Store{db: db, dialect: d}
	if d == dialectSQLite {
		if err := s.setPragmas(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	lgr.Printf("[DEBUG] store initialized, dialect %s", d)
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *Store) setPragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -64000", // 64MB cache
		"PRAGMA temp_store = MEMORY",
		"PRAGMA busy_timeout = 5000", // 5 second timeout for locks
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}
	return nil
}

// initSchema creates tables if they don't exist
func (s *Store) initSchema(ctx context.Context) error {
	schema, err := schemaFS.ReadFile("schema_" + string(s.dialect) + ".sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}

	for _, stmt := range strings.Split(string(schema), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema: %w", err)
		}
	}
	return nil
}
