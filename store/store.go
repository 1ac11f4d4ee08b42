// Package store implements the nested key-path document used for both the static
// bot configuration (config.yaml) and the mutable runtime settings (db.yaml).
//
// Paths are dot separated ("twitch.bot.name"). Reads of a missing path return the
// caller's default; writes create intermediate maps as needed. Every accessor names
// its expected type explicitly and falls back to the default on a type mismatch.
package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrInvalidDocument is returned when the file does not contain a YAML mapping at its root.
var ErrInvalidDocument = errors.New("document root is not a mapping")

// Store is a YAML-backed tree of values guarded for concurrent use.
type Store struct {
	path string

	mu   sync.RWMutex
	data map[string]any
}

// Open loads path and returns a Store bound to it. A missing file is an error.
func Open(path string) (*Store, error) {
	s := &Store{path: path}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// New returns an in-memory Store seeded with data. Save fails unless a path is set.
func New(data map[string]any) *Store {
	if data == nil {
		data = map[string]any{}
	}
	return &Store{data: data}
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Reload replaces the in-memory tree with the file contents.
func (s *Store) Reload() error {
	if s.path == "" {
		return errors.New("store has no backing file")
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read %s: %w", s.path, err)
	}
	data, err := decode(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
	return nil
}

// Save writes the tree back to the backing file. The document goes to a temporary
// file in the same directory first and is renamed over the original, so a crash
// mid-write leaves the previous contents in place.
func (s *Store) Save() error {
	if s.path == "" {
		return errors.New("store has no backing file")
	}
	s.mu.RLock()
	out, err := yaml.Marshal(s.data)
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode %s: %w", s.path, err)
	}
	if err := writeFileAtomic(s.path, out); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	committed = true
	return nil
}

func decode(raw []byte) (map[string]any, error) {
	var root any
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, err
	}
	if root == nil {
		return map[string]any{}, nil
	}
	m, ok := root.(map[string]any)
	if !ok {
		return nil, ErrInvalidDocument
	}
	return m, nil
}

// Lookup returns the raw value at path.
func (s *Store) Lookup(path string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lookup(s.data, path)
}

func lookup(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Set stores value at path, replacing any non-map intermediate node.
func (s *Store) Set(path string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(path, value)
}

func (s *Store) setLocked(path string, value any) {
	keys := strings.Split(path, ".")
	cur := s.data
	for _, key := range keys[:len(keys)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	cur[keys[len(keys)-1]] = value
}

// Get returns the value at path when it has exactly type T, otherwise def.
func Get[T any](s *Store, path string, def T) T {
	v, ok := s.Lookup(path)
	if !ok {
		return def
	}
	t, ok := v.(T)
	if !ok {
		return def
	}
	return t
}

// String returns the string at path, or def.
func (s *Store) String(path, def string) string {
	return Get(s, path, def)
}

// Int returns the integer at path, or def. Integral floats and numeric strings are accepted.
func (s *Store) Int(path string, def int) int {
	v, ok := s.Lookup(path)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		if n == float64(int(n)) {
			return int(n)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(n)); err == nil {
			return i
		}
	}
	return def
}

// Snowflake returns an identifier at path. Discord ids are often written unquoted in
// YAML, so integers are formatted back to their decimal string.
func (s *Store) Snowflake(path, def string) string {
	v, ok := s.Lookup(path)
	if !ok {
		return def
	}
	switch n := v.(type) {
	case string:
		return n
	case int:
		return strconv.Itoa(n)
	case int64:
		return strconv.FormatInt(n, 10)
	case uint64:
		return strconv.FormatUint(n, 10)
	}
	return def
}

// StringList returns the list at path. A scalar string is treated as a one-item list.
func (s *Store) StringList(path string) []string {
	v, ok := s.Lookup(path)
	if !ok {
		return nil
	}
	return toStrings(v)
}

func toStrings(v any) []string {
	switch l := v.(type) {
	case string:
		return []string{l}
	case []string:
		return append([]string(nil), l...)
	case []any:
		out := make([]string, 0, len(l))
		for _, item := range l {
			if item == nil {
				out = append(out, "")
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}

// AddToList appends value to the list at path, creating it when absent.
func (s *Store) AddToList(path, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, _ := lookup(s.data, path)
	list := append(toStrings(cur), value)
	s.setLocked(path, list)
}

// RemoveFromList removes the first occurrence of value from the list at path and
// reports whether anything was removed.
func (s *Store) RemoveFromList(path, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := lookup(s.data, path)
	if !ok {
		return false
	}
	list := toStrings(cur)
	for i, item := range list {
		if item == value {
			s.setLocked(path, append(list[:i], list[i+1:]...))
			return true
		}
	}
	return false
}

// Contains reports whether the list at path holds value.
func (s *Store) Contains(path, value string) bool {
	for _, item := range s.StringList(path) {
		if item == value {
			return true
		}
	}
	return false
}
