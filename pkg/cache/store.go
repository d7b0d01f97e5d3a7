package cache

import (
	"context"
	"errors"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Store persists projected pages by key. Implementations are safe for
// concurrent use.
type Store interface {
	// Get returns the entry stored under key, or ErrCacheMiss.
	Get(ctx context.Context, key Key) (*Entry, error)

	// Set stores entry under key, replacing any previous value.
	Set(ctx context.Context, key Key, entry *Entry) error

	// Delete removes the entry stored under key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key Key) error
}
