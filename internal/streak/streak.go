package streak

import (
	"time"

	"github.com/google/uuid"
)

// Streak counts consecutive activity per user. FreezeUsed is a one-shot
// consumable armed through the shop: it forgives exactly one missed window.
type Streak struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	UserID         uuid.UUID  `json:"user_id" db:"user_id"`
	CurrentStreak  int        `json:"current_streak" db:"current_streak"`
	LongestStreak  int        `json:"longest_streak" db:"longest_streak"`
	LastActivityAt *time.Time `json:"last_activity_at" db:"last_activity_at"`
	FreezeUsed     bool       `json:"freeze_used" db:"freeze_used"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}

// GapWindow is the longest allowed silence before a streak breaks.
const GapWindow = 24 * time.Hour

// State is the mutable part of a streak, separated so the transition rule
// stays a pure function the service applies inside its transaction.
type State struct {
	CurrentStreak  int
	LongestStreak  int
	LastActivityAt *time.Time
	FreezeUsed     bool
}

// Apply advances the state for one qualifying activity at now.
//
//	gap < 24h                  -> streak grows
//	gap >= 24h, freeze unarmed -> streak lost, counter back to zero
//	gap >= 24h, freeze armed   -> gap forgiven once, freeze consumed
//
// The freeze is never auto-applied here; arming it is an explicit call.
func Apply(s State, now time.Time) State {
	next := s

	switch {
	case s.LastActivityAt == nil:
		next.CurrentStreak = 1
	case now.Sub(*s.LastActivityAt) < GapWindow:
		next.CurrentStreak = s.CurrentStreak + 1
	case s.FreezeUsed:
		next.FreezeUsed = false
	default:
		next.CurrentStreak = 0
	}

	if next.CurrentStreak > next.LongestStreak {
		next.LongestStreak = next.CurrentStreak
	}
	next.LastActivityAt = &now
	return next
}
