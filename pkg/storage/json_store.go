package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONFileStore keeps each key and each collection in its own JSON document under a base directory.
// All access is serialised by one mutex and writes go through a temp file plus rename.
type JSONFileStore struct {
	mu      sync.Mutex
	baseDir string
}

// NewJSONFileStore ensures the directory layout exists and returns a handle.
func NewJSONFileStore(baseDir string) (*JSONFileStore, error) {
	if baseDir == "" {
		baseDir = "./data"
	}
	for _, dir := range []string{filepath.Join(baseDir, "kv"), filepath.Join(baseDir, "lists")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}
	return &JSONFileStore{baseDir: baseDir}, nil
}

// Get decodes the value stored under key into dest.
func (s *JSONFileStore) Get(_ context.Context, key string, dest interface{}) error {
	if err := validateName(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.kvPath(key))
	if errors.Is(err, os.ErrNotExist) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Set replaces the value stored under key.
func (s *JSONFileStore) Set(_ context.Context, key string, value interface{}) error {
	if err := validateName(key); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeAtomic(s.kvPath(key), raw)
}

// Append adds item to the end of collection.
func (s *JSONFileStore) Append(_ context.Context, collection string, item interface{}) error {
	if err := validateName(collection); err != nil {
		return err
	}
	encoded, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode %s item: %w", collection, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.readList(collection)
	if err != nil {
		return err
	}
	items = append(items, encoded)
	return s.writeList(collection, items)
}

// List decodes every item of collection, in insertion order, into dest.
func (s *JSONFileStore) List(_ context.Context, collection string, dest interface{}) error {
	if err := validateName(collection); err != nil {
		return err
	}
	s.mu.Lock()
	items, err := s.readList(collection)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return decodeList(collection, items, dest)
}

// Replace overwrites collection with items, which must encode to a JSON array.
func (s *JSONFileStore) Replace(_ context.Context, collection string, items interface{}) error {
	if err := validateName(collection); err != nil {
		return err
	}
	encoded, err := encodeList(collection, items)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeList(collection, encoded)
}

func (s *JSONFileStore) readList(collection string) ([]json.RawMessage, error) {
	raw, err := os.ReadFile(s.listPath(collection))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", collection, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", collection, err)
	}
	return items, nil
}

func (s *JSONFileStore) writeList(collection string, items []json.RawMessage) error {
	if items == nil {
		items = []json.RawMessage{}
	}
	raw, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", collection, err)
	}
	return writeAtomic(s.listPath(collection), raw)
}

func (s *JSONFileStore) kvPath(key string) string {
	return filepath.Join(s.baseDir, "kv", key+".json")
}

func (s *JSONFileStore) listPath(collection string) string {
	return filepath.Join(s.baseDir, "lists", collection+".json")
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}

func encodeList(collection string, items interface{}) ([]json.RawMessage, error) {
	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", collection, err)
	}
	if bytes.Equal(raw, []byte("null")) {
		return []json.RawMessage{}, nil
	}
	var encoded []json.RawMessage
	if err := json.Unmarshal(raw, &encoded); err != nil {
		return nil, fmt.Errorf("%s items must be a list: %w", collection, err)
	}
	return encoded, nil
}

func decodeList(collection string, items []json.RawMessage, dest interface{}) error {
	if items == nil {
		items = []json.RawMessage{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", collection, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return fmt.Errorf("decode %s: %w", collection, err)
	}
	return nil
}
