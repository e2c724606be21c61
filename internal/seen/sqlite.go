package seen

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lepinkainen/feed-alerts/pkg/database"
)

const seenSchema = `
CREATE TABLE IF NOT EXISTS seen_items (
	id TEXT PRIMARY KEY,
	first_seen_at TIMESTAMP NOT NULL
)`

// SQLiteStore keeps seen ids in a SQLite table.
type SQLiteStore struct {
	db  *database.Database
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := database.NewDatabase(database.Config{Path: path})
	if err != nil {
		return nil, fmt.Errorf("failed to open seen database: %w", err)
	}

	if err := db.ExecuteSchema(context.Background(), seenSchema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to create seen_items table: %w (close: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to create seen_items table: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

// Load reads every stored id.
func (s *SQLiteStore) Load(ctx context.Context) (*Set, error) {
	rows, err := s.db.DB().QueryContext(ctx, "SELECT id FROM seen_items")
	if err != nil {
		return nil, fmt.Errorf("failed to query seen ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	set := NewSet()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan seen id: %w", err)
		}
		set.Add(id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read seen ids: %w", err)
	}

	return set, nil
}

// Persist inserts ids not yet stored. Existing rows keep their first_seen_at.
func (s *SQLiteStore) Persist(ctx context.Context, set *Set) error {
	now := s.now().UTC()

	return s.db.Transaction(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, "INSERT OR IGNORE INTO seen_items (id, first_seen_at) VALUES (?, ?)")
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, id := range set.IDs() {
			if _, err := stmt.ExecContext(ctx, id, now); err != nil {
				return fmt.Errorf("failed to insert seen id %q: %w", id, err)
			}
		}
		return nil
	})
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
