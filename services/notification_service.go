package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusQuestAPI/internal/apperr"
	"campusQuestAPI/internal/notification"
)

// NotificationService persists in-app notifications and hands push delivery
// to the dispatcher. Delivery is best effort; the ledger and state machines
// never wait on it.
type NotificationService struct {
	db         *pgxpool.Pool
	dispatcher *NotificationDispatcher
}

func NewNotificationService(db *pgxpool.Pool) *NotificationService {
	service := &NotificationService{db: db}
	service.dispatcher = NewNotificationDispatcher(service)
	return service
}

// SetPushProvider injects the push channel from main.go.
func (s *NotificationService) SetPushProvider(provider PushProvider) {
	s.dispatcher.SetPushProvider(provider)
}

// Stop drains the dispatcher during shutdown.
func (s *NotificationService) Stop() {
	s.dispatcher.Stop()
}

// Notify is the fire-and-forget entry point the engine services call after
// commit. It never blocks the caller and never returns an error; failures
// end up in the log only.
func (s *NotificationService) Notify(userID uuid.UUID, ntype notification.NotificationType, title, message string, data map[string]any) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		notif, err := s.Create(ctx, &notification.CreateNotificationRequest{
			UserID:  userID,
			Type:    ntype,
			Title:   title,
			Message: message,
			Data:    data,
		})
		if err != nil {
			log.Printf("Notify: failed to create %s notification for %s: %v", ntype, userID, err)
			return
		}
		s.dispatcher.Dispatch(notif)
	}()
}

// Create persists one notification row.
func (s *NotificationService) Create(ctx context.Context, req *notification.CreateNotificationRequest) (*notification.Notification, error) {
	dataJSON, err := json.Marshal(req.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode notification data: %w", err)
	}

	notif := &notification.Notification{
		ID:      uuid.New(),
		UserID:  req.UserID,
		Type:    req.Type,
		Title:   req.Title,
		Message: req.Message,
		Data:    req.Data,
	}

	query := `
	INSERT INTO notifications (id, user_id, type, title, message, is_read, data, created_at)
	VALUES ($1, $2, $3, $4, $5, false, $6, NOW())
	RETURNING created_at
	`
	err = s.db.QueryRow(ctx, query, notif.ID, notif.UserID, notif.Type, notif.Title, notif.Message, dataJSON).Scan(&notif.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}
	return notif, nil
}

// List returns the user's notifications, newest first, with the unread count.
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, limit int, unreadOnly bool) (*notification.NotificationListResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	query := `
	SELECT id, user_id, type, title, message, is_read, data, created_at
	FROM notifications
	WHERE user_id = $1
	`
	if unreadOnly {
		query += " AND is_read = false"
	}
	query += " ORDER BY created_at DESC LIMIT $2"

	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*notification.Notification
	for rows.Next() {
		notif := &notification.Notification{}
		var dataJSON []byte
		err := rows.Scan(&notif.ID, &notif.UserID, &notif.Type, &notif.Title,
			&notif.Message, &notif.IsRead, &dataJSON, &notif.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		if len(dataJSON) > 0 {
			if err := json.Unmarshal(dataJSON, &notif.Data); err != nil {
				log.Printf("List: bad data payload on notification %s: %v", notif.ID, err)
			}
		}
		notifications = append(notifications, notif)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating notifications: %w", err)
	}

	if notifications == nil {
		notifications = []*notification.Notification{}
	}

	unread, err := s.UnreadCount(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &notification.NotificationListResponse{
		Notifications: notifications,
		UnreadCount:   unread,
	}, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND is_read = false`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count unread notifications: %w", err)
	}
	return count, nil
}

func (s *NotificationService) MarkAsRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE notifications SET is_read = true
		WHERE id = $1 AND user_id = $2 AND is_read = false
	`, notificationID, userID)
	if err != nil {
		return fmt.Errorf("failed to mark as read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("notification not found or already read: %w", apperr.ErrNotFound)
	}
	return nil
}

func (s *NotificationService) MarkAllAsRead(ctx context.Context, userID uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE notifications SET is_read = true
		WHERE user_id = $1 AND is_read = false
	`, userID)
	if err != nil {
		return fmt.Errorf("failed to mark all as read: %w", err)
	}
	return nil
}

// RegisterChat binds a Telegram chat id to a user so pushes reach them.
func (s *NotificationService) RegisterChat(ctx context.Context, userID uuid.UUID, chatID string) error {
	if chatID == "" {
		return fmt.Errorf("chat id is required: %w", apperr.ErrValidation)
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO telegram_chats (id, user_id, chat_id, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, chat_id) DO NOTHING
	`, uuid.New(), userID, chatID)
	if err != nil {
		return fmt.Errorf("failed to register chat: %w", err)
	}
	return nil
}

// chatIDs returns the user's registered Telegram chats.
func (s *NotificationService) chatIDs(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT chat_id FROM telegram_chats WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch chats: %w", err)
	}
	defer rows.Close()

	var chats []string
	for rows.Next() {
		var chatID string
		if err := rows.Scan(&chatID); err != nil {
			return nil, fmt.Errorf("failed to scan chat id: %w", err)
		}
		chats = append(chats, chatID)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chats: %w", err)
	}
	return chats, nil
}
