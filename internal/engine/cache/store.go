package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const cacheFileExtension = ".json"

// Common cache errors.
var (
	ErrCacheNotFound   = errors.New("cache entry not found")
	ErrCacheExpired    = errors.New("cache entry expired")
	ErrInvalidCacheKey = errors.New("cache key cannot be empty")
	ErrCacheDisabled   = errors.New("cache is disabled")
)

// StoreOption configures a FileStore.
type StoreOption func(*FileStore)

// WithClock replaces the clock used for expiry.
func WithClock(now func() time.Time) StoreOption {
	return func(s *FileStore) { s.now = now }
}

// FileStore keeps entries as JSON files in one directory. It is safe for concurrent use.
type FileStore struct {
	directory  string
	enabled    bool
	ttlSeconds int
	now        func() time.Time

	mu sync.RWMutex
}

// NewFileStore creates a store in directory, creating it if needed.
// A disabled store is returned without touching the filesystem and rejects every call with ErrCacheDisabled.
func NewFileStore(directory string, enabled bool, ttlSeconds int, opts ...StoreOption) (*FileStore, error) {
	s := &FileStore{enabled: enabled, ttlSeconds: ttlSeconds, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if !enabled {
		return s, nil
	}

	if directory == "" {
		return nil, errors.New("cache directory cannot be empty")
	}
	if err := ValidateTTL(ttlSeconds); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(directory, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	s.directory = directory
	return s, nil
}

// Get returns the entry for key. Expired entries are removed and reported as ErrCacheExpired.
func (s *FileStore) Get(key string) (*Entry, error) {
	if err := s.check(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	entry, err := s.read(s.path(key))
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	if entry.ExpiredAt(s.now()) {
		s.mu.Lock()
		_ = os.Remove(s.path(key))
		s.mu.Unlock()
		return nil, ErrCacheExpired
	}
	return entry, nil
}

// Load decodes the entry for key into v.
func (s *FileStore) Load(key string, v any) (*Entry, error) {
	entry, err := s.Get(key)
	if err != nil {
		return nil, err
	}
	if err = entry.Decode(v); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return entry, nil
}

// Set stores data under key, replacing any previous entry.
func (s *FileStore) Set(key string, data json.RawMessage) error {
	if err := s.check(key); err != nil {
		return err
	}

	entry := NewEntry(key, data, s.ttlSeconds, s.now())
	encoded, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := s.path(key)
	tmp := target + ".tmp"
	if err = os.WriteFile(tmp, encoded, 0o600); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err = os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to rename cache file: %w", err)
	}
	return nil
}

// Store encodes v as JSON and stores it under key.
func (s *FileStore) Store(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	return s.Set(key, data)
}

// Delete removes the entry for key. Deleting a missing entry is not an error.
func (s *FileStore) Delete(key string) error {
	if err := s.check(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete cache file: %w", err)
	}
	return nil
}

// Clear removes every entry.
func (s *FileStore) Clear() error {
	if !s.enabled {
		return ErrCacheDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.files()
	if err != nil {
		return err
	}
	for _, f := range files {
		if err = os.Remove(f); err != nil {
			return fmt.Errorf("failed to remove cache file %s: %w", filepath.Base(f), err)
		}
	}
	return nil
}

// CleanupExpired removes expired and unreadable entries and returns how many were removed.
func (s *FileStore) CleanupExpired() (int, error) {
	if !s.enabled {
		return 0, ErrCacheDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	files, err := s.files()
	if err != nil {
		return 0, err
	}

	removed := 0
	now := s.now()
	for _, f := range files {
		entry, readErr := s.read(f)
		if readErr == nil && !entry.ExpiredAt(now) {
			continue
		}
		if os.Remove(f) == nil {
			removed++
		}
	}
	return removed, nil
}

// Count returns the number of entries on disk, expired ones included.
func (s *FileStore) Count() (int, error) {
	if !s.enabled {
		return 0, ErrCacheDisabled
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	files, err := s.files()
	return len(files), err
}

// Size returns the total size of all entries in bytes.
func (s *FileStore) Size() (int64, error) {
	if !s.enabled {
		return 0, ErrCacheDisabled
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	files, err := s.files()
	if err != nil {
		return 0, err
	}
	var total int64
	for _, f := range files {
		if info, statErr := os.Stat(f); statErr == nil {
			total += info.Size()
		}
	}
	return total, nil
}

// IsEnabled reports whether caching is active.
func (s *FileStore) IsEnabled() bool { return s.enabled }

// Directory returns the cache directory.
func (s *FileStore) Directory() string { return s.directory }

// TTL returns the entry lifetime in seconds.
func (s *FileStore) TTL() int { return s.ttlSeconds }

func (s *FileStore) check(key string) error {
	if !s.enabled {
		return ErrCacheDisabled
	}
	if key == "" {
		return ErrInvalidCacheKey
	}
	return nil
}

func (s *FileStore) read(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrCacheNotFound
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	var entry Entry
	if err = json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache entry: %w", err)
	}
	return &entry, nil
}

func (s *FileStore) files() ([]string, error) {
	entries, err := os.ReadDir(s.directory)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == cacheFileExtension {
			out = append(out, filepath.Join(s.directory, e.Name()))
		}
	}
	return out, nil
}

// path maps a key to a file name, replacing separators so any key is filesystem safe.
func (s *FileStore) path(key string) string {
	safe := strings.NewReplacer("/", "_", `\`, "_", ":", "_").Replace(key)
	return filepath.Join(s.directory, safe+cacheFileExtension)
}
