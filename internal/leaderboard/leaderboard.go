package leaderboard

import "github.com/google/uuid"

type LeaderboardEntry struct {
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	Username      string    `json:"username" db:"username"`
	ImageURL      *string   `json:"image_url" db:"image_url"`
	Balance       int       `json:"balance" db:"balance"`
	Rank          int       `json:"rank" db:"rank"`
	TierName      string    `json:"tier_name"`
	CurrentStreak int       `json:"current_streak" db:"current_streak"`
}

type Leaderboard struct {
	Entries      []*LeaderboardEntry `json:"entries"`
	UserPosition *LeaderboardEntry   `json:"user_position"`
	TotalUsers   int                 `json:"total_users"`
}
