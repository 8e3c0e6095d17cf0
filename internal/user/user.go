package user

import (
	"time"

	"github.com/google/uuid"
)

// Roles are opaque strings supplied by the auth collaborator. The engine only
// compares them; it never derives them.
const (
	RoleStudent  = "STUDENT"
	RoleMember   = "MEMBER"
	RoleMinister = "MINISTER"
	RoleAdmin    = "ADMIN"
)

type User struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Email     string    `json:"email" db:"email"`
	Username  string    `json:"username" db:"username"`
	FirstName string    `json:"first_name" db:"first_name"`
	LastName  string    `json:"last_name" db:"last_name"`
	ImageURL  *string   `json:"image_url,omitempty" db:"image_url"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Profile is the read shape for the authenticated user: both balances with
// their derived tiers, always computed from the ledger on demand.
type Profile struct {
	User          *User  `json:"user"`
	EPBalance     int    `json:"ep_balance"`
	XPBalance     int    `json:"xp_balance"`
	SchoolRank    string `json:"school_rank"`
	NextRank      string `json:"next_rank,omitempty"`
	NextRankDelta int    `json:"next_rank_delta,omitempty"`
	CurrentStreak int    `json:"current_streak"`

	EngagementScore float64 `json:"engagement_score"`
}
