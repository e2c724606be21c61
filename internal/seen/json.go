package seen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/lepinkainen/feed-alerts/pkg/filesystem"
)

// JSONStore keeps the set as a pretty-printed JSON array of strings.
type JSONStore struct {
	path string
}

// NewJSONStore creates a store backed by the file at path.
func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// Path returns the backing file path.
func (s *JSONStore) Path() string {
	return s.path
}

// Load reads the file. A missing file is an empty set; unreadable or corrupt content is
// an error.
func (s *JSONStore) Load(_ context.Context) (*Set, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewSet(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read seen file: %w", err)
	}

	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("failed to decode seen file %s: %w", s.path, err)
	}

	return NewSet(ids...), nil
}

// Persist writes the whole set, replacing the previous file atomically.
func (s *JSONStore) Persist(_ context.Context, set *Set) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // ids are often URLs with & in the query
	enc.SetIndent("", "  ")
	if err := enc.Encode(set.IDs()); err != nil {
		return fmt.Errorf("failed to encode seen ids: %w", err)
	}

	if err := filesystem.WriteFileAtomic(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write seen file: %w", err)
	}
	return nil
}

// Close is a no-op for the file store.
func (s *JSONStore) Close() error {
	return nil
}
