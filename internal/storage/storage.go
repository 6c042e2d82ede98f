package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// SessionStore is a string key-value store. When created with a path every
// mutation is written through to a YAML file.
type SessionStore struct {
	path   string
	values map[string]string
	mu     sync.RWMutex
}

// New creates an in-memory store
func New() *SessionStore {
	return &SessionStore{
		values: make(map[string]string),
	}
}

// Open loads the store persisted at path. A missing file is an empty store.
func Open(path string) (*SessionStore, error) {
	s := New()
	s.path = path

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	if err := yaml.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("failed to parse session file %s: %w", path, err)
	}
	if s.values == nil {
		s.values = make(map[string]string)
	}
	return s, nil
}

func (s *SessionStore) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, exists := s.values[key]
	return value, exists
}

func (s *SessionStore) Set(key, value string) error {
	return s.Update(map[string]string{key: value}, nil)
}

func (s *SessionStore) Delete(keys ...string) error {
	return s.Update(nil, keys)
}

// Update applies sets then deletes and persists once
func (s *SessionStore) Update(set map[string]string, remove []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make(map[string]string, len(s.values)+len(set))
	for k, v := range s.values {
		next[k] = v
	}
	for k, v := range set {
		next[k] = v
	}
	for _, k := range remove {
		delete(next, k)
	}
	if err := s.flush(next); err != nil {
		return err
	}
	s.values = next
	return nil
}

func (s *SessionStore) GetAll() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make(map[string]string, len(s.values))
	for k, v := range s.values {
		result[k] = v
	}
	return result
}

// flush writes values to the session file, it must be called with mu held
func (s *SessionStore) flush(values map[string]string) error {
	if s.path == "" {
		return nil
	}
	if len(values) == 0 {
		if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove session file: %w", err)
		}
		return nil
	}

	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace session file: %w", err)
	}
	return nil
}
