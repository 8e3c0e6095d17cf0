package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusQuestAPI/internal/apperr"
	"campusQuestAPI/internal/notification"
	"campusQuestAPI/internal/task"
	"campusQuestAPI/internal/user"
)

// TaskService owns the task instance lifecycle up to the reward decision:
// claim, submit, reject, ranking placement. Approval and top-N payout live in
// RewardService because they touch the ledger.
type TaskService struct {
	db           *pgxpool.Pool
	notifService *NotificationService
}

func NewTaskService(db *pgxpool.Pool, notifService *NotificationService) *TaskService {
	return &TaskService{db: db, notifService: notifService}
}

// ListActive returns claimable tasks, nearest deadline first.
func (s *TaskService) ListActive(ctx context.Context) ([]*task.Task, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, title, xp_reward, ep_reward, top_ranking, deadline, top_awarded, is_active, created_at
		FROM tasks
		WHERE is_active = true
		ORDER BY deadline ASC NULLS LAST, created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*task.Task
	for rows.Next() {
		t := &task.Task{}
		err := rows.Scan(&t.ID, &t.Title, &t.XPReward, &t.EPReward, &t.TopRanking,
			&t.Deadline, &t.TopAwarded, &t.IsActive, &t.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tasks: %w", err)
	}

	if tasks == nil {
		tasks = []*task.Task{}
	}
	return tasks, nil
}

// Claim opens an instance for the caller. One instance per (task, user); the
// unique index reports a second claim as AlreadyProcessed.
func (s *TaskService) Claim(ctx context.Context, userID, taskID uuid.UUID) (*task.Instance, error) {
	var isActive bool
	var deadline *time.Time
	err := s.db.QueryRow(ctx, `
		SELECT is_active, deadline FROM tasks WHERE id = $1
	`, taskID).Scan(&isActive, &deadline)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task %s: %w", taskID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	if !isActive {
		return nil, fmt.Errorf("task is inactive: %w", apperr.ErrInvalidState)
	}
	if deadline != nil && deadline.Before(time.Now()) {
		return nil, fmt.Errorf("task deadline has passed: %w", apperr.ErrInvalidState)
	}

	inst := &task.Instance{
		ID:     uuid.New(),
		TaskID: taskID,
		UserID: userID,
		Status: task.StatusNew,
	}

	err = s.db.QueryRow(ctx, `
		INSERT INTO task_instances (id, task_id, user_id, status, top_awarded, created_at, updated_at)
		VALUES ($1, $2, $3, $4, false, NOW(), NOW())
		RETURNING created_at, updated_at
	`, inst.ID, inst.TaskID, inst.UserID, inst.Status).Scan(&inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, fmt.Errorf("task already claimed: %w", apperr.ErrAlreadyProcessed)
		}
		return nil, fmt.Errorf("failed to claim task: %w", err)
	}
	return inst, nil
}

// SubmitForReview moves the caller's NEW instance to IN_REVIEW.
func (s *TaskService) SubmitForReview(ctx context.Context, userID, instanceID uuid.UUID) (*task.Instance, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inst, err := s.lockInstance(ctx, tx, instanceID)
	if err != nil {
		return nil, err
	}

	if inst.UserID != userID {
		return nil, fmt.Errorf("not your task instance: %w", apperr.ErrForbidden)
	}
	if inst.Status != task.StatusNew {
		return nil, fmt.Errorf("instance is %s, not NEW: %w", inst.Status, apperr.ErrInvalidState)
	}

	_, err = tx.Exec(ctx, `
		UPDATE task_instances SET status = $1, updated_at = NOW() WHERE id = $2
	`, task.StatusInReview, inst.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to submit instance: %w", err)
	}
	inst.Status = task.StatusInReview

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit submission: %w", err)
	}
	return inst, nil
}

// Reject turns an instance down without any ledger write. Admin only.
func (s *TaskService) Reject(ctx context.Context, actorRole string, instanceID uuid.UUID) (*task.Instance, error) {
	if actorRole != user.RoleAdmin {
		return nil, fmt.Errorf("only admins reject tasks: %w", apperr.ErrForbidden)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inst, err := s.lockInstance(ctx, tx, instanceID)
	if err != nil {
		return nil, err
	}

	switch inst.Status {
	case task.StatusRejected:
		return nil, fmt.Errorf("instance already rejected: %w", apperr.ErrAlreadyProcessed)
	case task.StatusCompleted:
		return nil, fmt.Errorf("cannot reject an approved instance: %w", apperr.ErrInvalidState)
	}

	_, err = tx.Exec(ctx, `
		UPDATE task_instances SET status = $1, updated_at = NOW() WHERE id = $2
	`, task.StatusRejected, inst.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to reject instance: %w", err)
	}
	inst.Status = task.StatusRejected

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit rejection: %w", err)
	}

	s.notifService.Notify(inst.UserID, notification.TypeTaskDecision,
		"Task rejected", "Your submission was not approved",
		map[string]any{"instance_id": inst.ID.String()})

	return inst, nil
}

// SetTopPosition places an instance in the task's ranking. Admin only; the
// position must fit the configured ranking size and be unique within the task.
func (s *TaskService) SetTopPosition(ctx context.Context, actorRole string, instanceID uuid.UUID, position int) (*task.Instance, error) {
	if actorRole != user.RoleAdmin {
		return nil, fmt.Errorf("only admins rank submissions: %w", apperr.ErrForbidden)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inst, err := s.lockInstance(ctx, tx, instanceID)
	if err != nil {
		return nil, err
	}

	var topRanking int
	var topAwarded bool
	err = tx.QueryRow(ctx, `
		SELECT top_ranking, top_awarded FROM tasks WHERE id = $1
	`, inst.TaskID).Scan(&topRanking, &topAwarded)
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}

	if !task.ValidRankingSize(topRanking) {
		return nil, fmt.Errorf("task has no ranking configured: %w", apperr.ErrInvalidState)
	}
	if topAwarded {
		return nil, fmt.Errorf("ranking already paid out: %w", apperr.ErrInvalidState)
	}
	if position < 1 || position > topRanking {
		return nil, fmt.Errorf("position %d outside top-%d: %w", position, topRanking, apperr.ErrValidation)
	}

	var taken bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM task_instances
			WHERE task_id = $1 AND top_position = $2 AND id <> $3
		)
	`, inst.TaskID, position, inst.ID).Scan(&taken)
	if err != nil {
		return nil, fmt.Errorf("failed to check position: %w", err)
	}
	if taken {
		return nil, fmt.Errorf("position %d is already taken: %w", position, apperr.ErrInvalidState)
	}

	err = tx.QueryRow(ctx, `
		UPDATE task_instances SET top_position = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING top_position, updated_at
	`, position, inst.ID).Scan(&inst.TopPosition, &inst.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to set position: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit ranking: %w", err)
	}
	return inst, nil
}

// ListForUser returns the caller's instances, newest first.
func (s *TaskService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*task.Instance, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, task_id, user_id, status, top_position, top_awarded, created_at, updated_at
		FROM task_instances
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT 50
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task instances: %w", err)
	}
	defer rows.Close()

	var instances []*task.Instance
	for rows.Next() {
		inst := &task.Instance{}
		err := rows.Scan(&inst.ID, &inst.TaskID, &inst.UserID, &inst.Status,
			&inst.TopPosition, &inst.TopAwarded, &inst.CreatedAt, &inst.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}
		instances = append(instances, inst)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	if instances == nil {
		instances = []*task.Instance{}
	}
	return instances, nil
}

func (s *TaskService) lockInstance(ctx context.Context, tx pgx.Tx, instanceID uuid.UUID) (*task.Instance, error) {
	inst := &task.Instance{}
	err := tx.QueryRow(ctx, `
		SELECT id, task_id, user_id, status, top_position, top_awarded, created_at, updated_at
		FROM task_instances WHERE id = $1
		FOR UPDATE
	`, instanceID).Scan(&inst.ID, &inst.TaskID, &inst.UserID, &inst.Status,
		&inst.TopPosition, &inst.TopAwarded, &inst.CreatedAt, &inst.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task instance %s: %w", instanceID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock instance: %w", err)
	}
	return inst, nil
}
