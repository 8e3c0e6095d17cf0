package utils

import (
	"context"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusQuestAPI/internal/notification"
)

// Notifier is the slice of NotificationService this helper needs.
type Notifier interface {
	Notify(userID uuid.UUID, ntype notification.NotificationType, title, message string, data map[string]any)
}

// NotifyStreaksAtRisk pings users whose streak lapses within the next four
// hours: last activity between 20h and 24h ago, no freeze armed. Run it
// periodically from main.
func NotifyStreaksAtRisk(db *pgxpool.Pool, notifier Notifier) {
	ctx := context.Background()

	query := `
		SELECT user_id, current_streak FROM streaks
		WHERE current_streak > 0
		  AND freeze_used = false
		  AND last_activity_at BETWEEN NOW() - INTERVAL '24 hours' AND NOW() - INTERVAL '20 hours'
	`

	rows, err := db.Query(ctx, query)
	if err != nil {
		log.Printf("Failed to query streaks at risk: %v", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var userID uuid.UUID
		var currentStreak int
		if err := rows.Scan(&userID, &currentStreak); err != nil {
			continue
		}

		notifier.Notify(userID, notification.TypeStreakRisk,
			"Streak at risk",
			"Complete a quest in the next few hours to keep your streak",
			map[string]any{"current_streak": currentStreak})
	}
}
