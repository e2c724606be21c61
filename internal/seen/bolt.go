package seen

import (
	"context"
	"fmt"
	"time"

	"github.com/lepinkainen/feed-alerts/pkg/filesystem"
	"go.etcd.io/bbolt"
)

var seenBucket = []byte("seen")

// BoltStore keeps seen ids as keys of a bbolt bucket, valued with the time first seen.
type BoltStore struct {
	db  *bbolt.DB
	now func() time.Time
}

// NewBoltStore opens (or creates) the bolt file at path.
func NewBoltStore(path string) (*BoltStore, error) {
	if err := filesystem.EnsureDirectoryExists(path); err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt store: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(seenBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create seen bucket: %w", err)
	}

	return &BoltStore{db: db, now: time.Now}, nil
}

// Load reads every key of the seen bucket.
func (s *BoltStore) Load(_ context.Context) (*Set, error) {
	set := NewSet()
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(seenBucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			set.Add(string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read bolt store: %w", err)
	}
	return set, nil
}

// Persist adds ids missing from the bucket.
func (s *BoltStore) Persist(_ context.Context, set *Set) error {
	stamp := []byte(s.now().UTC().Format(time.RFC3339))

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(seenBucket)
		if err != nil {
			return err
		}
		for _, id := range set.IDs() {
			key := []byte(id)
			if b.Get(key) != nil {
				continue
			}
			if err := b.Put(key, stamp); err != nil {
				return fmt.Errorf("put %q: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write bolt store: %w", err)
	}
	return nil
}

// Close closes the bolt file.
func (s *BoltStore) Close() error {
	return s.db.Close()
}
