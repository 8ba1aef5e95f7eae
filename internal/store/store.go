// Package store is the persistence layer (§4.1 of the specification): items,
// append-only check history, users and the notification ledger, over a
// hand-rolled database/sql schema rather than a generated ORM so the store
// can be read end-to-end without a code generation step.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"stockwatch/internal/clock"
	"stockwatch/internal/store/migrations"
)

// Store wraps a *sql.DB along with the driver name, since a handful of
// queries (upsert, boolean literals) differ between sqlite3 and postgres.
type Store struct {
	db     *sql.DB
	driver string
	clock  clock.Clock
	log    *zap.Logger
}

// Open parses dbURL (sqlite://path or postgres(ql)://dsn, mirroring the
// scheme convention used throughout the rest of the configuration surface),
// opens the connection and runs pending migrations.
func Open(ctx context.Context, dbURL string, clk clock.Clock, log *zap.Logger) (*Store, error) {
	driver, dsn, err := parseDatabaseURL(dbURL)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		// A single writer connection avoids SQLITE_BUSY under the
		// scheduler's concurrent worker pool; reads and writes serialize
		// at the database/sql level instead.
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, driver: driver, clock: clk, log: log}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// parseDatabaseURL splits dbURL into a database/sql driver name and DSN,
// mirroring the scheme-prefixed convention (sqlite://, postgres(ql)://)
// used by the teacher's connection setup.
func parseDatabaseURL(dbURL string) (driver, dsn string, err error) {
	switch {
	case strings.HasPrefix(dbURL, "sqlite://"):
		driver = "sqlite3"
		dsn = strings.TrimPrefix(dbURL, "sqlite://")
		if dir := filepath.Dir(dsn); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", "", fmt.Errorf("store: create database directory: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_fk=1&_journal=WAL"
		}
	case strings.HasPrefix(dbURL, "postgres://"), strings.HasPrefix(dbURL, "postgresql://"):
		driver = "postgres"
		dsn = dbURL
	default:
		return "", "", fmt.Errorf("store: unsupported database url scheme: %q", dbURL)
	}
	return driver, dsn, nil
}

// migrate runs every embedded *.sql file in lexical order, tracking applied
// filenames in a schema_migrations table so re-running Open is idempotent.
func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (filename TEXT PRIMARY KEY, applied_at TEXT NOT NULL)`); err != nil {
		return fmt.Errorf("store: create schema_migrations: %w", err)
	}

	applied := map[string]bool{}
	rows, err := s.db.QueryContext(ctx, `SELECT filename FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("store: read schema_migrations: %w", err)
	}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return fmt.Errorf("store: scan schema_migrations: %w", err)
		}
		applied[name] = true
	}
	rows.Close()

	entries, err := fs.ReadDir(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("store: read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") || applied[entry.Name()] {
			continue
		}
		content, err := fs.ReadFile(migrations.FS, entry.Name())
		if err != nil {
			return fmt.Errorf("store: read migration %s: %w", entry.Name(), err)
		}
		s.log.Info("applying migration", zap.String("file", entry.Name()))
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("store: apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (filename, applied_at) VALUES ($1, $2)`, entry.Name(), s.clock.Now().UTC().Format(timeLayout)); err != nil {
			return fmt.Errorf("store: record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// timeLayout is the RFC3339 string layout, with a fixed nine-digit
// fraction, used for every timestamp column, chosen so lexical and
// chronological ordering coincide in sqlite (which has no native time type).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// rebind rewrites $-style placeholders to sqlite's ? placeholders when the
// driver is sqlite3; postgres (lib/pq) uses $N natively.
func (s *Store) rebind(query string) string {
	if s.driver != "sqlite3" {
		return query
	}
	var b strings.Builder
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			j := i + 1
			for j < len(query) && query[j] >= '0' && query[j] <= '9' {
				j++
			}
			b.WriteByte('?')
			i = j - 1
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
