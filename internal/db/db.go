// Package db provides the device-local SQLite store: connection management,
// embedded schema migrations and the entity repository.
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	apperrors "github.com/kimhsiao/taskin/backend/internal/errors"
)

// FileName is the database file created inside the data directory.
const FileName = "taskin.db"

// DB wraps the sql.DB with Taskin-specific configuration.
type DB struct {
	*sql.DB
}

// Open opens (creating if needed) the database in dataDir and applies all
// pending migrations.
// The database is opened with:
// - a single connection, which serializes every read and write
// - WAL mode for crash safety
// - a busy timeout so a second process waits instead of failing
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return open(filepath.Join(dataDir, FileName), true)
}

// OpenMemory opens a private in-memory database with the schema applied.
// Used by tests and by dry runs.
func OpenMemory() (*DB, error) {
	return open(":memory:", false)
}

func open(dsn string, wal bool) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to open database", err)
	}

	// SQLite doesn't support multiple writers; one connection also keeps an
	// in-memory database alive for the lifetime of the handle.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	pragmas := []string{"PRAGMA busy_timeout=5000;"}
	if wal {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL;", "PRAGMA synchronous=NORMAL;")
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, apperrors.Wrap(apperrors.ErrDatabase, "failed to configure database", err)
		}
	}

	db := &DB{sqlDB}
	if err := db.Migrate(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return db, nil
}

// Migrate applies all embedded migrations that have not run yet.
func (db *DB) Migrate() error {
	m := NewMigrator(db.DB, Migrations, "migrations")
	if err := m.Initialize(); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to initialize schema_migrations", err)
	}
	if err := m.Up(); err != nil {
		return apperrors.Wrap(apperrors.ErrMigration, "failed to apply migrations", err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
