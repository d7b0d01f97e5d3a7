package cache

import (
	"time"

	"github.com/Sternrassler/milkspot-proxy/pkg/records"
)

// Entry is a cached page of projected records.
type Entry struct {
	// Records is the projected page exactly as it was served
	Records records.ResultSet `json:"records"`

	// CachedAt is when the page was fetched from Airtable
	CachedAt time.Time `json:"cached_at"`

	// Expires is when the entry becomes stale. Zero means never.
	Expires time.Time `json:"expires,omitempty"`
}

// NewEntry wraps a result set. A ttl <= 0 produces an entry that never expires.
func NewEntry(rs records.ResultSet, ttl time.Duration) *Entry {
	now := time.Now()
	entry := &Entry{
		Records:  rs,
		CachedAt: now,
	}
	if ttl > 0 {
		entry.Expires = now.Add(ttl)
	}
	return entry
}

// IsExpired returns true if the entry has an expiry that has passed.
func (e *Entry) IsExpired() bool {
	return !e.Expires.IsZero() && time.Now().After(e.Expires)
}

// TTL returns the time until expiration.
// Returns 0 for entries that never expire and for entries already expired;
// use IsExpired to tell them apart.
func (e *Entry) TTL() time.Duration {
	if e.Expires.IsZero() {
		return 0
	}
	ttl := time.Until(e.Expires)
	if ttl < 0 {
		return 0
	}
	return ttl
}
