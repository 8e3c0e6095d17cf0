package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusQuestAPI/internal/anticheat"
	"campusQuestAPI/internal/apperr"
	"campusQuestAPI/internal/ledger"
	"campusQuestAPI/internal/notification"
	"campusQuestAPI/internal/rank"
	"campusQuestAPI/internal/report"
	"campusQuestAPI/internal/task"
	"campusQuestAPI/internal/user"
)

const pgUniqueViolation = "23505"

// RewardService owns every currency-crediting path: idempotent awards, task
// approval, grade reports, top-N payouts. Notification delivery is fire and
// forget; a failed send never rolls a reward back.
type RewardService struct {
	db           *pgxpool.Pool
	ledgerSvc    *LedgerService
	notifService *NotificationService
	verifier     anticheat.Verifier
}

func NewRewardService(db *pgxpool.Pool, ledgerSvc *LedgerService, notifService *NotificationService, verifier anticheat.Verifier) *RewardService {
	if verifier == nil {
		verifier = anticheat.AllowAll{}
	}
	return &RewardService{
		db:           db,
		ledgerSvc:    ledgerSvc,
		notifService: notifService,
		verifier:     verifier,
	}
}

// AwardOnce credits (userID, kind, amount) exactly once per sourceRef.
// A repeat call (retried approval, redundant webhook delivery) returns
// apperr.ErrAlreadyProcessed and changes no balance. The check-then-insert
// is raced-proofed by the unique index on (user_id, kind, source_ref):
// a concurrent duplicate surfaces as a unique violation and is reported the
// same way.
func (s *RewardService) AwardOnce(ctx context.Context, userID uuid.UUID, kind ledger.Kind, amount int, reason string, sourceRef string) (*ledger.Entry, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	entry, err := s.awardOnceTx(ctx, tx, userID, kind, amount, reason, sourceRef)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit award: %w", err)
	}
	return entry, nil
}

func (s *RewardService) awardOnceTx(ctx context.Context, tx pgx.Tx, userID uuid.UUID, kind ledger.Kind, amount int, reason string, sourceRef string) (*ledger.Entry, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("award amount must be positive: %w", apperr.ErrValidation)
	}
	if sourceRef == "" {
		return nil, fmt.Errorf("award requires a source ref: %w", apperr.ErrValidation)
	}

	exists, err := s.ledgerSvc.HasSourceRef(ctx, tx, userID, kind, sourceRef)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("award %s: %w", sourceRef, apperr.ErrAlreadyProcessed)
	}

	entry, err := s.ledgerSvc.Credit(ctx, tx, userID, kind, amount, reason, &sourceRef)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, fmt.Errorf("award %s: %w", sourceRef, apperr.ErrAlreadyProcessed)
		}
		return nil, err
	}
	return entry, nil
}

// ApproveTask settles a parliament task instance: marks it COMPLETED, credits
// xpReward + bonusXP once, and refreshes the cached xp_level/xp_rank on the
// membership inside the same transaction. Only ADMIN may approve.
func (s *RewardService) ApproveTask(ctx context.Context, actorRole string, instanceID uuid.UUID, bonusXP int) (*task.Instance, error) {
	if actorRole != user.RoleAdmin {
		return nil, fmt.Errorf("only admins approve tasks: %w", apperr.ErrForbidden)
	}
	if bonusXP < 0 {
		return nil, fmt.Errorf("bonus may not be negative: %w", apperr.ErrValidation)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	inst := &task.Instance{}
	var xpReward int
	var taskTitle string
	query := `
	SELECT ti.id, ti.task_id, ti.user_id, ti.status, ti.top_position, ti.top_awarded,
	       ti.created_at, ti.updated_at, t.xp_reward, t.title
	FROM task_instances ti
	JOIN tasks t ON t.id = ti.task_id
	WHERE ti.id = $1
	FOR UPDATE OF ti
	`
	err = tx.QueryRow(ctx, query, instanceID).Scan(
		&inst.ID, &inst.TaskID, &inst.UserID, &inst.Status, &inst.TopPosition,
		&inst.TopAwarded, &inst.CreatedAt, &inst.UpdatedAt, &xpReward, &taskTitle,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("task instance %s: %w", instanceID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load task instance: %w", err)
	}

	switch inst.Status {
	case task.StatusCompleted:
		return nil, fmt.Errorf("instance already approved: %w", apperr.ErrAlreadyProcessed)
	case task.StatusRejected:
		return nil, fmt.Errorf("cannot approve a rejected instance: %w", apperr.ErrInvalidState)
	}

	_, err = tx.Exec(ctx, `
		UPDATE task_instances SET status = $1, updated_at = NOW() WHERE id = $2
	`, task.StatusCompleted, inst.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to mark instance completed: %w", err)
	}
	inst.Status = task.StatusCompleted

	amount := xpReward + bonusXP
	sourceRef := fmt.Sprintf("task_instance:%s", inst.ID)
	if _, err := s.awardOnceTx(ctx, tx, inst.UserID, ledger.KindXP, amount, fmt.Sprintf("task approved: %s", taskTitle), sourceRef); err != nil {
		return nil, err
	}

	if err := s.refreshMembershipRank(ctx, tx, inst.UserID); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit approval: %w", err)
	}

	s.notifService.Notify(inst.UserID, notification.TypeTaskDecision,
		"Task approved",
		fmt.Sprintf("%s approved, +%d XP", taskTitle, amount),
		map[string]any{"instance_id": inst.ID.String(), "xp": amount})

	return inst, nil
}

// refreshMembershipRank recomputes the denormalized xp_level/xp_rank cache
// from the live ledger sum. The ledger stays authoritative; this cache only
// exists so leaderboard reads skip a sum per row.
func (s *RewardService) refreshMembershipRank(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	balance, err := s.ledgerSvc.Balance(ctx, tx, userID, ledger.KindXP)
	if err != nil {
		return err
	}
	tier := rank.For(ledger.KindXP, balance)

	tag, err := tx.Exec(ctx, `
		UPDATE parliament_memberships
		SET xp_level = $1, xp_rank = $2, updated_at = NOW()
		WHERE user_id = $3 AND is_active = true
	`, tier.Index, tier.Name, userID)
	if err != nil {
		return fmt.Errorf("failed to refresh membership rank: %w", err)
	}
	if tag.RowsAffected() == 0 {
		log.Printf("refreshMembershipRank: no active membership for user %s", userID)
	}
	return nil
}

// SubmitReport converts a grade into EP (grade - 1). Reports that would earn
// nothing are refused. Photo-backed reports pass through the anti-cheat
// verifier before any ledger write.
func (s *RewardService) SubmitReport(ctx context.Context, userID uuid.UUID, req *report.SubmitRequest) (*report.Report, error) {
	epAmount, err := report.EPForGrade(req.Grade)
	if err != nil {
		return nil, fmt.Errorf("grade %d earns no EP: %w", req.Grade, err)
	}

	if req.PhotoURL != nil {
		claimedAt := time.Now().UTC()
		if req.ClaimedAt != nil {
			if parsed, perr := time.Parse(time.RFC3339, *req.ClaimedAt); perr == nil {
				claimedAt = parsed
			}
		}
		result, err := s.verifier.Verify(ctx, *req.PhotoURL, claimedAt)
		if err != nil {
			return nil, fmt.Errorf("anti-cheat check unavailable: %w", err)
		}
		if !result.Passed {
			return nil, fmt.Errorf("anti-cheat rejected photo (%v): %w", result.Errors, apperr.ErrValidation)
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	rep := &report.Report{
		ID:        uuid.New(),
		UserID:    userID,
		Grade:     req.Grade,
		EPAmount:  epAmount,
		Subject:   req.Subject,
		PhotoURL:  req.PhotoURL,
		CreatedAt: time.Now().UTC(),
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO reports (id, user_id, grade, ep_amount, subject, photo_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rep.ID, rep.UserID, rep.Grade, rep.EPAmount, rep.Subject, rep.PhotoURL, rep.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert report: %w", err)
	}

	sourceRef := fmt.Sprintf("report:%s", rep.ID)
	if _, err := s.awardOnceTx(ctx, tx, userID, ledger.KindEP, epAmount, fmt.Sprintf("grade report: %s", rep.Subject), sourceRef); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit report: %w", err)
	}

	s.notifService.Notify(userID, notification.TypeRewardGranted,
		"Grade rewarded",
		fmt.Sprintf("+%d EP for %s", epAmount, rep.Subject),
		map[string]any{"report_id": rep.ID.String(), "ep": epAmount})

	return rep, nil
}

// AwardTop distributes the percentage-curve payout to the ranked instances of
// a task. One-shot: the task and each instance carry a top_awarded flag, and
// every per-position credit is additionally keyed by source ref, so a retry
// after commit is a no-op reported as AlreadyProcessed.
func (s *RewardService) AwardTop(ctx context.Context, actorRole string, taskID uuid.UUID) (int, error) {
	if actorRole != user.RoleAdmin {
		return 0, fmt.Errorf("only admins award rankings: %w", apperr.ErrForbidden)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var t task.Task
	err = tx.QueryRow(ctx, `
		SELECT id, title, ep_reward, top_ranking, deadline, top_awarded
		FROM tasks
		WHERE id = $1
		FOR UPDATE
	`, taskID).Scan(&t.ID, &t.Title, &t.EPReward, &t.TopRanking, &t.Deadline, &t.TopAwarded)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("task %s: %w", taskID, apperr.ErrNotFound)
		}
		return 0, fmt.Errorf("failed to load task: %w", err)
	}

	if t.TopAwarded {
		return 0, fmt.Errorf("top ranking already paid: %w", apperr.ErrAlreadyProcessed)
	}
	if !task.ValidRankingSize(t.TopRanking) {
		return 0, fmt.Errorf("task has no top ranking configured: %w", apperr.ErrInvalidState)
	}
	if t.Deadline == nil || t.Deadline.After(time.Now()) {
		return 0, fmt.Errorf("task deadline has not passed: %w", apperr.ErrInvalidState)
	}

	rows, err := tx.Query(ctx, `
		SELECT id, user_id, top_position
		FROM task_instances
		WHERE task_id = $1
		  AND top_position IS NOT NULL
		  AND top_awarded = false
		ORDER BY top_position ASC
		FOR UPDATE
	`, taskID)
	if err != nil {
		return 0, fmt.Errorf("failed to load ranked instances: %w", err)
	}

	type ranked struct {
		instanceID uuid.UUID
		userID     uuid.UUID
		position   int
	}
	var winners []ranked
	for rows.Next() {
		var r ranked
		if err := rows.Scan(&r.instanceID, &r.userID, &r.position); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan ranked instance: %w", err)
		}
		winners = append(winners, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating ranked instances: %w", err)
	}

	type payout struct {
		userID   uuid.UUID
		position int
		amount   int
	}
	var paidOut []payout

	for _, w := range winners {
		amount := task.TopPayoutAmount(t.TopRanking, w.position, t.EPReward)
		if amount <= 0 {
			continue
		}

		sourceRef := fmt.Sprintf("task:%s:top:%s", t.ID, w.instanceID)
		reason := fmt.Sprintf("top-%d payout, place %d: %s", t.TopRanking, w.position, t.Title)
		credited := true
		if _, err := s.awardOnceTx(ctx, tx, w.userID, ledger.KindEP, amount, reason, sourceRef); err != nil {
			if !apperr.IsAlreadyProcessed(err) {
				return 0, err
			}
			// The ledger already holds this payout; still flag the instance
			// so the two stay consistent.
			credited = false
		}

		_, err = tx.Exec(ctx, `UPDATE task_instances SET top_awarded = true, updated_at = NOW() WHERE id = $1`, w.instanceID)
		if err != nil {
			return 0, fmt.Errorf("failed to flag instance as awarded: %w", err)
		}
		if credited {
			paidOut = append(paidOut, payout{w.userID, w.position, amount})
		}
	}

	_, err = tx.Exec(ctx, `UPDATE tasks SET top_awarded = true WHERE id = $1`, t.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to flag task as awarded: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit top payout: %w", err)
	}

	for _, p := range paidOut {
		s.notifService.Notify(p.userID, notification.TypeRewardGranted,
			"Ranking reward",
			fmt.Sprintf("Place %d in %s: +%d EP", p.position, t.Title, p.amount),
			map[string]any{"task_id": t.ID.String(), "position": p.position, "ep": p.amount})
	}

	return len(paidOut), nil
}
