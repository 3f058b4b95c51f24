package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore persists the key/value map to disk as JSON.
type FileStore struct {
	path   string
	mu     sync.RWMutex
	values map[string]string
}

// NewFileStore opens the store at path. A missing file is an empty store.
// An unreadable one is reset, since its only contents are a session the
// user can recreate by logging in again.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("store path is empty")
	}
	fs := &FileStore{path: path, values: make(map[string]string)}
	if err := fs.load(); err != nil {
		if !errors.Is(err, errCorruptStore) {
			return nil, err
		}
		fs.values = make(map[string]string)
		if err := fs.save(); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

// Path returns the file backing the store.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) Get(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *FileStore) Set(key, value string) error {
	if key == "" {
		return errEmptyKey
	}
	f.mu.Lock()
	f.values[key] = value
	f.mu.Unlock()
	return f.save()
}

func (f *FileStore) Delete(keys ...string) error {
	f.mu.Lock()
	for _, key := range keys {
		delete(f.values, key)
	}
	f.mu.Unlock()
	return f.save()
}

var errCorruptStore = errors.New("store file is corrupt")

func (f *FileStore) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read store: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %v", errCorruptStore, err)
	}
	for k, v := range raw {
		f.values[k] = v
	}
	return nil
}

// save writes the map to a temp file beside the store and renames it into
// place, so an interrupted write never leaves a truncated store.
func (f *FileStore) save() error {
	f.mu.RLock()
	data, err := json.MarshalIndent(f.values, "", "  ")
	f.mu.RUnlock()
	if err != nil {
		return err
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp store: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write store: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace store: %w", err)
	}
	return nil
}
