package duel

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// Duel is a 1v1 staked wager. The stake is escrowed as a negative ledger
// entry from the creator at creation and from the opponent at acceptance;
// the two debits are independent writes, never a single transfer.
type Duel struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	CreatorID  uuid.UUID  `json:"creator_id" db:"creator_id"`
	OpponentID uuid.UUID  `json:"opponent_id" db:"opponent_id"`
	Stake      int        `json:"stake" db:"stake"`
	Duration   int        `json:"duration_hours" db:"duration_hours"`
	Status     Status     `json:"status" db:"status"`
	StartedAt  *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndsAt     *time.Time `json:"ends_at,omitempty" db:"ends_at"`
	WinnerID   *uuid.UUID `json:"winner_id,omitempty" db:"winner_id"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

type Participant struct {
	ID      uuid.UUID `json:"id" db:"id"`
	DuelID  uuid.UUID `json:"duel_id" db:"duel_id"`
	UserID  uuid.UUID `json:"user_id" db:"user_id"`
	Score   int       `json:"score" db:"score"`
	IsReady bool      `json:"is_ready" db:"is_ready"`
}

type CreateRequest struct {
	OpponentID    string `json:"opponent_id" validate:"required,uuid"`
	Stake         int    `json:"stake" validate:"required,gt=0"`
	DurationHours int    `json:"duration_hours" validate:"required,gt=0,lte=168"`
}

type ResolveRequest struct {
	WinnerID string `json:"winner_id" validate:"required,uuid"`
}
