package quest

import (
	"time"

	"github.com/google/uuid"
)

type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

func (p Period) Valid() bool {
	return p == PeriodDaily || p == PeriodWeekly || p == PeriodMonthly
}

// QuestType mirrors the catalog side of Period.
func (p Period) QuestType() string {
	switch p {
	case PeriodWeekly:
		return "WEEKLY"
	case PeriodMonthly:
		return "MONTHLY"
	default:
		return "DAILY"
	}
}

// Quota caps how many quests one window may hold.
func (p Period) Quota() int {
	switch p {
	case PeriodWeekly:
		return 2
	case PeriodMonthly:
		return 1
	default:
		return 3
	}
}

// WindowStart normalizes now to the start of the current window: midnight for
// daily, Monday midnight for weekly, first of the month for monthly. All UTC
// so a window key is the same regardless of which replica computed it.
func (p Period) WindowStart(now time.Time) time.Time {
	now = now.UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch p {
	case PeriodWeekly:
		offset := (int(midnight.Weekday()) + 6) % 7 // Monday = 0
		return midnight.AddDate(0, 0, -offset)
	case PeriodMonthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return midnight
	}
}

// Quest is a catalog entity, not user-owned.
type Quest struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Type      string    `json:"type" db:"type"`
	Title     string    `json:"title" db:"title"`
	EPReward  int       `json:"ep_reward" db:"ep_reward"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Assignment pins a quest to a user for one window. Unique per
// (user_id, period, period_date, quest_id).
type Assignment struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	QuestID     uuid.UUID  `json:"quest_id" db:"quest_id"`
	UserID      uuid.UUID  `json:"user_id" db:"user_id"`
	Period      Period     `json:"period" db:"period"`
	PeriodDate  time.Time  `json:"period_date" db:"period_date"`
	Completed   bool       `json:"completed" db:"completed"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// AssignedQuest is the join shape handed to clients.
type AssignedQuest struct {
	Assignment
	Title    string `json:"title" db:"title"`
	EPReward int    `json:"ep_reward" db:"ep_reward"`
}

type CompleteRequest struct {
	QuestID string `json:"quest_id" validate:"required,uuid"`
	Proof   string `json:"proof" validate:"required"`
}

// MinProofLength is a stub gate for a future automated verifier.
const MinProofLength = 10
