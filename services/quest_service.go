package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusQuestAPI/internal/apperr"
	"campusQuestAPI/internal/ledger"
	"campusQuestAPI/internal/notification"
	"campusQuestAPI/internal/quest"
)

// QuestService rotates time-boxed quests. Each (user, period) window gets at
// most quota assignments, drawn uniformly at random from the active catalog,
// and a window keeps its draw for its whole lifetime.
type QuestService struct {
	db           *pgxpool.Pool
	rewardSvc    *RewardService
	streakSvc    *StreakService
	notifService *NotificationService
}

func NewQuestService(db *pgxpool.Pool, rewardSvc *RewardService, streakSvc *StreakService, notifService *NotificationService) *QuestService {
	return &QuestService{
		db:           db,
		rewardSvc:    rewardSvc,
		streakSvc:    streakSvc,
		notifService: notifService,
	}
}

// GetOrAssign returns the user's quests for the current window, topping the
// window up to quota on first call. Re-invocation within the same window is
// idempotent: the same set comes back. A catalog too small to fill the quota
// yields a short set, not an error.
func (s *QuestService) GetOrAssign(ctx context.Context, userID uuid.UUID, period quest.Period) ([]*quest.AssignedQuest, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("unknown period %q: %w", period, apperr.ErrValidation)
	}

	windowStart := period.WindowStart(time.Now())
	quota := period.Quota()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Serialize concurrent top-ups of the same window. The unique index on
	// (user_id, period, period_date, quest_id) stops duplicates, but only the
	// lock stops two racing calls from together exceeding the quota.
	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		fmt.Sprintf("quests:%s:%s:%s", userID, period, windowStart.Format("2006-01-02")))
	if err != nil {
		return nil, fmt.Errorf("failed to lock quest window: %w", err)
	}

	existing, err := s.windowAssignments(ctx, tx, userID, period, windowStart)
	if err != nil {
		return nil, err
	}
	if len(existing) >= quota {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("failed to commit: %w", err)
		}
		return existing, nil
	}

	candidates, err := s.unassignedQuests(ctx, tx, userID, period, windowStart)
	if err != nil {
		return nil, err
	}

	// Uniform draw: every unassigned quest has equal selection probability.
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	need := quota - len(existing)
	if need > len(candidates) {
		need = len(candidates)
	}

	for _, q := range candidates[:need] {
		_, err := tx.Exec(ctx, `
			INSERT INTO assigned_quests (id, quest_id, user_id, period, period_date, completed)
			VALUES ($1, $2, $3, $4, $5, false)
			ON CONFLICT (user_id, period, period_date, quest_id) DO NOTHING
		`, uuid.New(), q.ID, userID, period, windowStart)
		if err != nil {
			return nil, fmt.Errorf("failed to assign quest %s: %w", q.ID, err)
		}
	}

	assigned, err := s.windowAssignments(ctx, tx, userID, period, windowStart)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit quest assignment: %w", err)
	}
	return assigned, nil
}

func (s *QuestService) windowAssignments(ctx context.Context, q Querier, userID uuid.UUID, period quest.Period, windowStart time.Time) ([]*quest.AssignedQuest, error) {
	query := `
	SELECT a.id, a.quest_id, a.user_id, a.period, a.period_date, a.completed, a.completed_at,
	       q.title, q.ep_reward
	FROM assigned_quests a
	JOIN quests q ON q.id = a.quest_id
	WHERE a.user_id = $1 AND a.period = $2 AND a.period_date = $3
	ORDER BY a.id
	`

	rows, err := q.Query(ctx, query, userID, period, windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assignments: %w", err)
	}
	defer rows.Close()

	var assignments []*quest.AssignedQuest
	for rows.Next() {
		a := &quest.AssignedQuest{}
		err := rows.Scan(&a.ID, &a.QuestID, &a.UserID, &a.Period, &a.PeriodDate,
			&a.Completed, &a.CompletedAt, &a.Title, &a.EPReward)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		assignments = append(assignments, a)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}

	if assignments == nil {
		assignments = []*quest.AssignedQuest{}
	}
	return assignments, nil
}

func (s *QuestService) unassignedQuests(ctx context.Context, q Querier, userID uuid.UUID, period quest.Period, windowStart time.Time) ([]*quest.Quest, error) {
	query := `
	SELECT id, type, title, ep_reward, is_active, created_at
	FROM quests
	WHERE type = $1
	  AND is_active = true
	  AND id NOT IN (
		SELECT quest_id FROM assigned_quests
		WHERE user_id = $2 AND period = $3 AND period_date = $4
	  )
	`

	rows, err := q.Query(ctx, query, period.QuestType(), userID, period, windowStart)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch quest catalog: %w", err)
	}
	defer rows.Close()

	var quests []*quest.Quest
	for rows.Next() {
		item := &quest.Quest{}
		err := rows.Scan(&item.ID, &item.Type, &item.Title, &item.EPReward, &item.IsActive, &item.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan quest: %w", err)
		}
		quests = append(quests, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quests: %w", err)
	}
	return quests, nil
}

// Complete marks an uncompleted assignment done and credits its EP reward
// through the idempotent award path, keyed by the assignment id. The proof
// length check stands in for a future automated verifier.
func (s *QuestService) Complete(ctx context.Context, userID, questID uuid.UUID, proof string) (*quest.AssignedQuest, error) {
	if len(proof) < quest.MinProofLength {
		return nil, fmt.Errorf("proof too short (min %d chars): %w", quest.MinProofLength, apperr.ErrValidation)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	a := &quest.AssignedQuest{}
	var isActive bool
	query := `
	SELECT a.id, a.quest_id, a.user_id, a.period, a.period_date, a.completed, a.completed_at,
	       q.title, q.ep_reward, q.is_active
	FROM assigned_quests a
	JOIN quests q ON q.id = a.quest_id
	WHERE a.quest_id = $1 AND a.user_id = $2 AND a.completed = false
	ORDER BY a.period_date DESC
	LIMIT 1
	FOR UPDATE OF a
	`
	err = tx.QueryRow(ctx, query, questID, userID).Scan(
		&a.ID, &a.QuestID, &a.UserID, &a.Period, &a.PeriodDate,
		&a.Completed, &a.CompletedAt, &a.Title, &a.EPReward, &isActive,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no unclaimed assignment for quest %s: %w", questID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load assignment: %w", err)
	}

	if !isActive {
		return nil, fmt.Errorf("quest %s has been deactivated: %w", questID, apperr.ErrNotFound)
	}

	now := time.Now().UTC()
	_, err = tx.Exec(ctx, `
		UPDATE assigned_quests SET completed = true, completed_at = $1 WHERE id = $2
	`, now, a.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to complete assignment: %w", err)
	}
	a.Completed = true
	a.CompletedAt = &now

	sourceRef := fmt.Sprintf("quest_assignment:%s", a.ID)
	if _, err := s.rewardSvc.awardOnceTx(ctx, tx, userID, ledger.KindEP, a.EPReward, fmt.Sprintf("quest completed: %s", a.Title), sourceRef); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit quest completion: %w", err)
	}

	// Quest completion is qualifying activity for the streak.
	if err := s.streakSvc.RecordActivity(ctx, userID); err != nil {
		log.Printf("Complete: failed to record streak activity for %s: %v", userID, err)
	}

	s.notifService.Notify(userID, notification.TypeRewardGranted,
		"Quest completed",
		fmt.Sprintf("%s: +%d EP", a.Title, a.EPReward),
		map[string]any{"quest_id": a.QuestID.String(), "ep": a.EPReward})

	return a, nil
}
