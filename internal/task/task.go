package task

import (
	"time"

	"github.com/google/uuid"
)

type InstanceStatus string

const (
	StatusNew       InstanceStatus = "NEW"
	StatusInReview  InstanceStatus = "IN_REVIEW"
	StatusCompleted InstanceStatus = "COMPLETED"
	StatusRejected  InstanceStatus = "REJECTED"
)

// Task is a template. XPReward feeds the parliament approval path, EPReward
// feeds the public top-N path; a task usually carries one or the other.
type Task struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	Title      string     `json:"title" db:"title"`
	XPReward   int        `json:"xp_reward" db:"xp_reward"`
	EPReward   int        `json:"ep_reward" db:"ep_reward"`
	TopRanking int        `json:"top_ranking" db:"top_ranking"` // 0 = not ranked
	Deadline   *time.Time `json:"deadline,omitempty" db:"deadline"`
	TopAwarded bool       `json:"top_awarded" db:"top_awarded"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// Instance is a per-user claim of a task. Exactly one per (task_id, user_id).
type Instance struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	TaskID      uuid.UUID      `json:"task_id" db:"task_id"`
	UserID      uuid.UUID      `json:"user_id" db:"user_id"`
	Status      InstanceStatus `json:"status" db:"status"`
	TopPosition *int           `json:"top_position,omitempty" db:"top_position"`
	TopAwarded  bool           `json:"top_awarded" db:"top_awarded"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// Percentage curves for top-N payouts, keyed by ranking size.
var topPayoutCurves = map[int][]int{
	3:  {100, 50, 25},
	5:  {100, 85, 55, 35, 25},
	10: {100, 90, 75, 60, 50, 40, 30, 20, 15, 10},
}

// TopPayoutPercent returns the reward percentage for a 1-based position in a
// ranking of the given size. Unknown sizes and out-of-range positions pay 0.
func TopPayoutPercent(rankingSize, position int) int {
	curve, ok := topPayoutCurves[rankingSize]
	if !ok || position < 1 || position > len(curve) {
		return 0
	}
	return curve[position-1]
}

// TopPayoutAmount converts a position into EP, flooring on integer division.
func TopPayoutAmount(rankingSize, position, baseReward int) int {
	return baseReward * TopPayoutPercent(rankingSize, position) / 100
}

// ValidRankingSize reports whether a task may be configured with this top-N.
func ValidRankingSize(n int) bool {
	_, ok := topPayoutCurves[n]
	return ok
}

type ApproveRequest struct {
	InstanceID string `json:"instance_id" validate:"required,uuid"`
	BonusXP    int    `json:"bonus_xp" validate:"gte=0"`
}

type ClaimRequest struct {
	TaskID string `json:"task_id" validate:"required,uuid"`
}

type AwardTopRequest struct {
	TaskID string `json:"task_id" validate:"required,uuid"`
}
