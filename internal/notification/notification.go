package notification

import (
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	TypeRewardGranted      NotificationType = "reward_granted"
	TypeTaskDecision       NotificationType = "task_decision"
	TypeRankUp             NotificationType = "rank_up"
	TypeDuelInvite         NotificationType = "duel_invite"
	TypeDuelSettled        NotificationType = "duel_settled"
	TypeChallengeCompleted NotificationType = "challenge_completed"
	TypeStreakRisk         NotificationType = "streak_risk"
)

type Notification struct {
	ID        uuid.UUID        `json:"id" db:"id"`
	UserID    uuid.UUID        `json:"user_id" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Message   string           `json:"message" db:"message"`
	IsRead    bool             `json:"is_read" db:"is_read"`
	Data      map[string]any   `json:"data" db:"data"`
	CreatedAt time.Time        `json:"created_at" db:"created_at"`
}

type CreateNotificationRequest struct {
	UserID  uuid.UUID        `json:"user_id" validate:"required"`
	Type    NotificationType `json:"type" validate:"required"`
	Title   string           `json:"title" validate:"required"`
	Message string           `json:"message" validate:"required"`
	Data    map[string]any   `json:"data"`
}

type NotificationListResponse struct {
	Notifications []*Notification `json:"notifications"`
	UnreadCount   int             `json:"unread_count"`
}
