// Package seen persists the set of item ids that have already been notified.
package seen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
	BackendBolt   = "bolt"
)

// ErrUnknownBackend is returned by Open for an unsupported backend name.
var ErrUnknownBackend = errors.New("unknown seen store backend")

// Set is an in-memory set of notified item ids.
type Set struct {
	ids map[string]struct{}
}

// NewSet creates a set holding the given ids.
func NewSet(ids ...string) *Set {
	s := &Set{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

// Contains reports whether id has been notified.
func (s *Set) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Add marks id as notified. Empty ids are ignored.
func (s *Set) Add(id string) {
	if id == "" {
		return
	}
	s.ids[id] = struct{}{}
}

// Len returns the number of ids.
func (s *Set) Len() int {
	return len(s.ids)
}

// IDs returns the ids in sorted order.
func (s *Set) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Store loads and persists a Set.
type Store interface {
	Load(ctx context.Context) (*Set, error)
	Persist(ctx context.Context, set *Set) error
	Close() error
}

// Open returns the store for the named backend at path.
func Open(backend, path string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendJSON:
		return NewJSONStore(path), nil
	case BackendSQLite:
		return NewSQLiteStore(path)
	case BackendBolt:
		return NewBoltStore(path)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

// LoadOrEmpty loads the set from store and degrades to an empty set on any error.
// Re-sending an old item is preferred over silently never sending anything.
func LoadOrEmpty(ctx context.Context, store Store) *Set {
	set, err := store.Load(ctx)
	if err != nil {
		slog.Warn("Failed to load seen ids, starting with an empty set", "error", err)
		return NewSet()
	}
	if set == nil {
		return NewSet()
	}
	return set
}

// ReadOnly wraps store so that Persist is a no-op. Used for dry runs.
func ReadOnly(store Store) Store {
	return readOnly{Store: store}
}

type readOnly struct {
	Store
}

func (readOnly) Persist(context.Context, *Set) error {
	return nil
}
