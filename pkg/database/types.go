// Package database wraps a SQLite connection with the pragmas and helpers the stores share.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/lepinkainen/feed-alerts/pkg/filesystem"
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DefaultBusyTimeout is how long a writer waits on a locked database.
const DefaultBusyTimeout = 5 * time.Second

var (
	// openDBs holds connections by path so two stores on one file share a writer
	openDBs = make(map[string]*Database)
	openMu  sync.Mutex
)

// Database is a single-writer SQLite connection.
type Database struct {
	db     *sql.DB
	mu     sync.Mutex
	dbPath string
}

// Config holds database configuration
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// NewDatabase opens the SQLite file at config.Path, creating parent directories, and
// switches it to WAL mode. Opening the same path twice returns the same Database.
func NewDatabase(config Config) (*Database, error) {
	openMu.Lock()
	defer openMu.Unlock()

	if db, ok := openDBs[config.Path]; ok {
		return db, nil
	}

	if config.BusyTimeout <= 0 {
		config.BusyTimeout = DefaultBusyTimeout
	}

	if err := filesystem.EnsureDirectoryExists(config.Path); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", config.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", config.Path, err)
	}

	closeOnErr := func(err error) (*Database, error) {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("Failed to close database", "error", closeErr)
		}
		return nil, fmt.Errorf("configure %s: %w", config.Path, err)
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", config.BusyTimeout.Milliseconds())); err != nil {
		return closeOnErr(err)
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return closeOnErr(err)
	}
	if !strings.EqualFold(journalMode, "wal") {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			return closeOnErr(err)
		}
	}

	if _, err := db.Exec("PRAGMA synchronous=NORMAL"); err != nil {
		return closeOnErr(err)
	}

	// A batch job needs a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return closeOnErr(err)
	}

	database := &Database{db: db, dbPath: config.Path}
	openDBs[config.Path] = database

	return database, nil
}

// Close closes the connection and forgets it.
func (db *Database) Close() error {
	openMu.Lock()
	defer openMu.Unlock()

	delete(openDBs, db.dbPath)

	db.mu.Lock()
	defer db.mu.Unlock()

	if db.db == nil {
		return nil
	}
	err := db.db.Close()
	db.db = nil
	return err
}

// DB returns the underlying sql.DB instance
func (db *Database) DB() *sql.DB {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.db
}

// Path returns the database file path
func (db *Database) Path() string {
	return db.dbPath
}

// ExecuteSchema executes a schema statement
func (db *Database) ExecuteSchema(ctx context.Context, schema string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.db.ExecContext(ctx, schema)
	return err
}

// Transaction runs fn inside a transaction, committing when fn returns nil.
func (db *Database) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			if rollbackErr := tx.Rollback(); rollbackErr != nil {
				slog.Error("Failed to rollback transaction", "error", rollbackErr)
			}
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			slog.Error("Failed to rollback transaction", "error", rollbackErr)
		}
		return err
	}

	return tx.Commit()
}
