package ratelimit

import (
	"testing"
	"time"
)

func TestPenaltyState_IsBlocked(t *testing.T) {
	tests := []struct {
		name     string
		state    *PenaltyState
		expected bool
	}{
		{name: "never penalized", state: &PenaltyState{}, expected: false},
		{name: "open window", state: &PenaltyState{BlockedUntil: time.Now().Add(10 * time.Second)}, expected: true},
		{name: "closed window", state: &PenaltyState{BlockedUntil: time.Now().Add(-1 * time.Second)}, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsBlocked(); got != tt.expected {
				t.Errorf("IsBlocked() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestPenaltyState_TimeUntilReset(t *testing.T) {
	tests := []struct {
		name    string
		state   *PenaltyState
		wantMin time.Duration
		wantMax time.Duration
	}{
		{
			name:    "thirty seconds left",
			state:   &PenaltyState{BlockedUntil: time.Now().Add(30 * time.Second)},
			wantMin: 29 * time.Second,
			wantMax: 30 * time.Second,
		},
		{
			name:  "already reset",
			state: &PenaltyState{BlockedUntil: time.Now().Add(-5 * time.Second)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.state.TimeUntilReset()
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("TimeUntilReset() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}
