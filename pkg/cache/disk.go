package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	// DefaultDiskDir is the cache directory used when none is configured
	DefaultDiskDir = ".newcache"

	backendDisk = "disk"

	lockRetryDelay = 10 * time.Millisecond
)

// DiskStore keeps one JSON file per key below a cache directory.
// Writes go to a temp file and are renamed into place, so readers never
// observe a partial file. A per-key file lock serializes writers across
// processes sharing the directory.
type DiskStore struct {
	dir string // Absolute path to cache directory
}

// NewDiskStore creates the cache directory if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if dir == "" {
		dir = DefaultDiskDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve cache directory: %w", err)
	}

	return &DiskStore{dir: absDir}, nil
}

// Dir returns the absolute cache directory.
func (s *DiskStore) Dir() string {
	return s.dir
}

// Path returns the file a key is stored in. Does not check if it exists.
func (s *DiskStore) Path(key Key) string {
	return filepath.Join(s.dir, filepath.FromSlash(key.String()))
}

// Get reads a cache entry. A missing file is a cache miss; an unreadable
// or undecodable file is reported as an error so callers can log it.
func (s *DiskStore) Get(ctx context.Context, key Key) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.Path(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			CacheMisses.WithLabelValues(backendDisk).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues(backendDisk, "get").Inc()
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues(backendDisk, "get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = s.Delete(ctx, key)
		CacheMisses.WithLabelValues(backendDisk).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(backendDisk).Inc()
	return &entry, nil
}

// Set atomically writes a cache entry.
func (s *DiskStore) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}
	if entry.IsExpired() {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues(backendDisk, "set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	diskPath := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(diskPath), 0o755); err != nil {
		CacheErrors.WithLabelValues(backendDisk, "set").Inc()
		return fmt.Errorf("create cache subdirectory: %w", err)
	}

	unlock, err := s.lock(ctx, diskPath)
	if err != nil {
		CacheErrors.WithLabelValues(backendDisk, "set").Inc()
		return err
	}
	defer unlock()

	tmpPath := diskPath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		CacheErrors.WithLabelValues(backendDisk, "set").Inc()
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := os.Rename(tmpPath, diskPath); err != nil {
		os.Remove(tmpPath)
		CacheErrors.WithLabelValues(backendDisk, "set").Inc()
		return fmt.Errorf("rename cache file: %w", err)
	}

	CacheWrittenBytes.WithLabelValues(backendDisk).Add(float64(len(data)))
	return nil
}

// Delete removes a cache entry file.
func (s *DiskStore) Delete(ctx context.Context, key Key) error {
	diskPath := s.Path(key)
	if _, err := os.Stat(diskPath); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	unlock, err := s.lock(ctx, diskPath)
	if err != nil {
		CacheErrors.WithLabelValues(backendDisk, "delete").Inc()
		return err
	}
	defer unlock()

	if err := os.Remove(diskPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		CacheErrors.WithLabelValues(backendDisk, "delete").Inc()
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}

func (s *DiskStore) lock(ctx context.Context, diskPath string) (func(), error) {
	fl := flock.New(diskPath + ".lock")
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock cache file: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock cache file: %s is busy", diskPath)
	}
	return func() { _ = fl.Unlock() }, nil
}
