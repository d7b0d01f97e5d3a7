package ratelimit

import (
	"time"
)

// Redis keys for penalty state storage.
const (
	RedisKeyBlockedUntil = "airtable:rate_limit:blocked_until"
)

// DefaultPenalty is how long Airtable suspends a base after a 429.
const DefaultPenalty = 30 * time.Second

// PenaltyState is the current Airtable lockout state.
// It is shared across all proxy instances via Redis when one is configured.
type PenaltyState struct {
	// BlockedUntil is when Airtable will accept requests again.
	// Zero when no penalty has been observed.
	BlockedUntil time.Time `json:"blocked_until"`

	// LastUpdate is when the penalty was last recorded.
	LastUpdate time.Time `json:"last_update"`
}

// IsBlocked returns true while the penalty window is open.
func (s *PenaltyState) IsBlocked() bool {
	return time.Now().Before(s.BlockedUntil)
}

// TimeUntilReset returns the duration until the penalty window closes.
// Returns 0 if it has already closed.
func (s *PenaltyState) TimeUntilReset() time.Duration {
	duration := time.Until(s.BlockedUntil)
	if duration < 0 {
		return 0
	}
	return duration
}
