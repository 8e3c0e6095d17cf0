package parliament

import (
	"time"

	"github.com/google/uuid"
)

// Membership exists only for users with organizational duties; XP is
// meaningless without one. XPLevel/XPRank are a denormalized cache refreshed
// alongside every XP award; the ledger stays the source of truth.
type Membership struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Ministry  string    `json:"ministry" db:"ministry"`
	XPLevel   int       `json:"xp_level" db:"xp_level"`
	XPRank    string    `json:"xp_rank" db:"xp_rank"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CreateRequest struct {
	UserID   string `json:"user_id" validate:"required,uuid"`
	Ministry string `json:"ministry" validate:"required,max=80"`
}
