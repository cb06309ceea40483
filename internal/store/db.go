package store

import (
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection to the memoir SQLite database.
type DB struct {
	*sql.DB
	Path string

	idMu    sync.Mutex
	entropy *rand.Rand
}

// DefaultDBPath returns the default database path: ~/.memoir/memoir.db
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".memoir", "memoir.db"), nil
}

// Open opens (or creates) the SQLite database at the given path,
// configures pragmas, and runs migrations.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	return setup(sqlDB, path)
}

// OpenMemory opens an in-memory SQLite database for testing.
func OpenMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	return setup(sqlDB, ":memory:")
}

func setup(sqlDB *sql.DB, path string) (*DB, error) {
	// SQLite handles one writer at a time; a single pooled connection keeps
	// pragmas consistent and makes :memory: databases shareable.
	sqlDB.SetMaxOpenConns(1)

	db := &DB{
		DB:      sqlDB,
		Path:    path,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}

// NewID returns a fresh ULID for memory and entry records.
func (db *DB) NewID() string {
	db.idMu.Lock()
	defer db.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), db.entropy).String()
}
