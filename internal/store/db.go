package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// busyTimeoutMillis bounds how long a hook-triggered write waits on the
// server's writer before failing with SQLITE_BUSY.
const busyTimeoutMillis = 5000

// DB is the pearl store: active pearls, known player names and the
// release history, in one SQLite file.
type DB struct {
	*sql.DB
	Path string
}

// DefaultDBPath returns the default database path: ~/.exilepearl/exilepearl.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".exilepearl", "exilepearl.db"), nil
}

// dsn builds a modernc DSN whose pragmas are applied on every pooled
// connection, not just the first. Writes take the lock at BEGIN so a
// commit and a decay tick never deadlock upgrading read locks.
func dsn(path string, memory bool) string {
	pragmas := []string{
		fmt.Sprintf("busy_timeout(%d)", busyTimeoutMillis),
		"foreign_keys(1)",
	}
	if !memory {
		pragmas = append(pragmas, "journal_mode(WAL)", "synchronous(NORMAL)")
	}
	q := url.Values{
		"_pragma": pragmas,
		"_txlock": {"immediate"},
	}
	return path + "?" + q.Encode()
}

// Open opens (or creates) the pearl database at path and runs migrations.
func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", dsn(path, false))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return finishOpen(sqlDB, path)
}

// OpenMemory opens an in-memory pearl database for tests.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn(":memory:", true))
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	return finishOpen(sqlDB, ":memory:")
}

func finishOpen(sqlDB *sql.DB, path string) (*DB, error) {
	db := &DB{DB: sqlDB, Path: path}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("connect %s: %w", path, err)
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}
