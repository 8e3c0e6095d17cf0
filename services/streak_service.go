package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusQuestAPI/internal/apperr"
	"campusQuestAPI/internal/store"
	"campusQuestAPI/internal/streak"
)

// StreakService tracks consecutive activity per user. The transition rule
// itself lives in internal/streak; this service owns the row locking and the
// freeze consumable bought in the shop.
type StreakService struct {
	db *pgxpool.Pool
}

func NewStreakService(db *pgxpool.Pool) *StreakService {
	return &StreakService{db: db}
}

// Get returns the streak row, creating an empty one on first sight.
func (s *StreakService) Get(ctx context.Context, userID uuid.UUID) (*streak.Streak, error) {
	st := &streak.Streak{}
	query := `
	INSERT INTO streaks (id, user_id, current_streak, longest_streak, freeze_used)
	VALUES ($1, $2, 0, 0, false)
	ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
	RETURNING id, user_id, current_streak, longest_streak, last_activity_at, freeze_used, created_at, updated_at
	`
	err := s.db.QueryRow(ctx, query, uuid.New(), userID).Scan(
		&st.ID, &st.UserID, &st.CurrentStreak, &st.LongestStreak,
		&st.LastActivityAt, &st.FreezeUsed, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load streak: %w", err)
	}
	return st, nil
}

// RecordActivity applies one qualifying activity event at now.
func (s *StreakService) RecordActivity(ctx context.Context, userID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	state, err := s.lockState(ctx, tx, userID)
	if err != nil {
		return err
	}

	next := streak.Apply(*state, time.Now().UTC())

	_, err = tx.Exec(ctx, `
		UPDATE streaks
		SET current_streak = $1, longest_streak = $2, last_activity_at = $3,
		    freeze_used = $4, updated_at = NOW()
		WHERE user_id = $5
	`, next.CurrentStreak, next.LongestStreak, next.LastActivityAt, next.FreezeUsed, userID)
	if err != nil {
		return fmt.Errorf("failed to update streak: %w", err)
	}

	return tx.Commit(ctx)
}

// UseFreeze arms the one-shot freeze for the current gap. It needs an
// unexpired streak-freeze item in the inventory, a gap actually past 24h
// (no pre-emptive arming while the streak is alive), and the freeze not
// already armed. One inventory unit is consumed on success.
func (s *StreakService) UseFreeze(ctx context.Context, userID uuid.UUID) (*streak.Streak, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	state, err := s.lockState(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	if state.FreezeUsed {
		return nil, fmt.Errorf("freeze already armed for this gap: %w", apperr.ErrAlreadyProcessed)
	}
	if state.LastActivityAt == nil || time.Since(*state.LastActivityAt) <= streak.GapWindow {
		return nil, fmt.Errorf("streak is still alive, freeze cannot be applied pre-emptively: %w", apperr.ErrInvalidState)
	}

	var inventoryID uuid.UUID
	var quantity int
	err = tx.QueryRow(ctx, `
		SELECT id, quantity
		FROM user_inventory
		WHERE user_id = $1
		  AND item_type = $2
		  AND quantity > 0
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY acquired_at ASC
		LIMIT 1
		FOR UPDATE
	`, userID, store.ItemTypeStreakFreeze).Scan(&inventoryID, &quantity)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no streak freeze in inventory: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to check inventory: %w", err)
	}

	_, err = tx.Exec(ctx, `UPDATE user_inventory SET quantity = quantity - 1 WHERE id = $1`, inventoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to consume freeze item: %w", err)
	}

	now := time.Now().UTC()
	st := &streak.Streak{}
	err = tx.QueryRow(ctx, `
		UPDATE streaks
		SET freeze_used = true, last_activity_at = $1, updated_at = NOW()
		WHERE user_id = $2
		RETURNING id, user_id, current_streak, longest_streak, last_activity_at, freeze_used, created_at, updated_at
	`, now, userID).Scan(
		&st.ID, &st.UserID, &st.CurrentStreak, &st.LongestStreak,
		&st.LastActivityAt, &st.FreezeUsed, &st.CreatedAt, &st.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to arm freeze: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit freeze: %w", err)
	}
	return st, nil
}

// lockState loads the streak FOR UPDATE, inserting the row if missing.
func (s *StreakService) lockState(ctx context.Context, tx pgx.Tx, userID uuid.UUID) (*streak.State, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO streaks (id, user_id, current_streak, longest_streak, freeze_used)
		VALUES ($1, $2, 0, 0, false)
		ON CONFLICT (user_id) DO NOTHING
	`, uuid.New(), userID)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure streak row: %w", err)
	}

	state := &streak.State{}
	err = tx.QueryRow(ctx, `
		SELECT current_streak, longest_streak, last_activity_at, freeze_used
		FROM streaks
		WHERE user_id = $1
		FOR UPDATE
	`, userID).Scan(&state.CurrentStreak, &state.LongestStreak, &state.LastActivityAt, &state.FreezeUsed)
	if err != nil {
		return nil, fmt.Errorf("failed to lock streak: %w", err)
	}
	return state, nil
}
