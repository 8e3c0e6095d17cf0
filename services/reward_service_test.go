package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusQuestAPI/internal/apperr"
	"campusQuestAPI/internal/ledger"
	"campusQuestAPI/internal/task"
	"campusQuestAPI/internal/user"
)

func TestAwardOnceIsIdempotent(t *testing.T) {
	pool := setupTestDB(t)
	defer cleanupTestDB(t, pool)

	ledgerSvc := NewLedgerService(pool)
	notifSvc := NewNotificationService(pool)
	defer notifSvc.Stop()
	rewardSvc := NewRewardService(pool, ledgerSvc, notifSvc, nil)

	ctx := testContext(t)
	userID := createTestUser(t, pool)
	sourceRef := "test:award:" + userID.String()

	entry, err := rewardSvc.AwardOnce(ctx, userID, ledger.KindEP, 100, "first delivery", sourceRef)
	require.NoError(t, err)
	assert.Equal(t, 100, entry.Amount)

	// A replay with the same source ref must not double-pay.
	_, err = rewardSvc.AwardOnce(ctx, userID, ledger.KindEP, 100, "redelivered", sourceRef)
	require.Error(t, err)
	assert.True(t, apperr.IsAlreadyProcessed(err), "replay should report AlreadyProcessed, got %v", err)

	balance, err := ledgerSvc.Balance(ctx, pool, userID, ledger.KindEP)
	require.NoError(t, err)
	assert.Equal(t, 100, balance, "replay must leave the balance untouched")
}

func TestAwardOnceSameRefDifferentKinds(t *testing.T) {
	pool := setupTestDB(t)
	defer cleanupTestDB(t, pool)

	ledgerSvc := NewLedgerService(pool)
	notifSvc := NewNotificationService(pool)
	defer notifSvc.Stop()
	rewardSvc := NewRewardService(pool, ledgerSvc, notifSvc, nil)

	ctx := testContext(t)
	userID := createTestUser(t, pool)
	sourceRef := "test:dualkind:" + userID.String()

	// Idempotency is scoped per (user, kind, ref), so the same ref may pay
	// once in each currency.
	_, err := rewardSvc.AwardOnce(ctx, userID, ledger.KindEP, 50, "ep side", sourceRef)
	require.NoError(t, err)
	_, err = rewardSvc.AwardOnce(ctx, userID, ledger.KindXP, 50, "xp side", sourceRef)
	require.NoError(t, err)
}

func newRewardFixture(t *testing.T) (*RewardService, *LedgerService, *pgxpool.Pool, func()) {
	t.Helper()

	pool := setupTestDB(t)
	ledgerSvc := NewLedgerService(pool)
	notifSvc := NewNotificationService(pool)
	rewardSvc := NewRewardService(pool, ledgerSvc, notifSvc, nil)

	teardown := func() {
		notifSvc.Stop()
		ctx := testContext(t)
		if _, err := pool.Exec(ctx, "DELETE FROM tasks WHERE title LIKE 'test task%'"); err != nil {
			t.Logf("Warning: failed to cleanup test tasks: %v", err)
		}
		cleanupTestDB(t, pool)
	}
	return rewardSvc, ledgerSvc, pool, teardown
}

func seedTask(t *testing.T, pool *pgxpool.Pool, xpReward, epReward, topRanking int, deadline *time.Time) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := pool.Exec(testContext(t), `
		INSERT INTO tasks (id, title, xp_reward, ep_reward, top_ranking, deadline, top_awarded, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, false, true, NOW())
	`, id, "test task "+id.String()[:8], xpReward, epReward, topRanking, deadline)
	require.NoError(t, err, "failed to seed task")
	return id
}

func seedInstance(t *testing.T, pool *pgxpool.Pool, taskID, userID uuid.UUID, status task.InstanceStatus, topPosition *int) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := pool.Exec(testContext(t), `
		INSERT INTO task_instances (id, task_id, user_id, status, top_position, top_awarded, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, false, NOW(), NOW())
	`, id, taskID, userID, status, topPosition)
	require.NoError(t, err, "failed to seed task instance")
	return id
}

func intPtr(v int) *int { return &v }

func TestAwardTopPaysCurveOnce(t *testing.T) {
	rewardSvc, ledgerSvc, pool, teardown := newRewardFixture(t)
	defer teardown()

	ctx := testContext(t)
	first := createTestUser(t, pool)
	second := createTestUser(t, pool)
	third := createTestUser(t, pool)

	// ep_reward 50 exposes the floor: place 3 gets 50*25/100 = 12, not 12.5.
	pastDeadline := time.Now().UTC().Add(-time.Hour)
	taskID := seedTask(t, pool, 0, 50, 3, &pastDeadline)
	seedInstance(t, pool, taskID, first, task.StatusCompleted, intPtr(1))
	seedInstance(t, pool, taskID, second, task.StatusCompleted, intPtr(2))
	seedInstance(t, pool, taskID, third, task.StatusCompleted, intPtr(3))

	_, err := rewardSvc.AwardTop(ctx, user.RoleStudent, taskID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	paid, err := rewardSvc.AwardTop(ctx, user.RoleAdmin, taskID)
	require.NoError(t, err)
	assert.Equal(t, 3, paid)

	for _, tc := range []struct {
		userID uuid.UUID
		want   int
	}{
		{first, 50},
		{second, 25},
		{third, 12},
	} {
		balance, err := ledgerSvc.Balance(ctx, pool, tc.userID, ledger.KindEP)
		require.NoError(t, err)
		assert.Equal(t, tc.want, balance)
	}

	// Re-invocation is a distinguishable no-op: AlreadyProcessed, not
	// InvalidState, and no balance moves.
	_, err = rewardSvc.AwardTop(ctx, user.RoleAdmin, taskID)
	require.Error(t, err)
	assert.True(t, apperr.IsAlreadyProcessed(err), "rerun should report AlreadyProcessed, got %v", err)
	assert.NotErrorIs(t, err, apperr.ErrInvalidState)

	total := 0
	for _, id := range []uuid.UUID{first, second, third} {
		balance, err := ledgerSvc.Balance(ctx, pool, id, ledger.KindEP)
		require.NoError(t, err)
		total += balance
	}
	assert.Equal(t, 87, total, "rerun must leave every balance untouched")
}

func TestAwardTopFlagsPrepaidInstance(t *testing.T) {
	rewardSvc, ledgerSvc, pool, teardown := newRewardFixture(t)
	defer teardown()

	ctx := testContext(t)
	first := createTestUser(t, pool)
	second := createTestUser(t, pool)

	pastDeadline := time.Now().UTC().Add(-time.Hour)
	taskID := seedTask(t, pool, 0, 100, 3, &pastDeadline)
	firstInstance := seedInstance(t, pool, taskID, first, task.StatusCompleted, intPtr(1))
	seedInstance(t, pool, taskID, second, task.StatusCompleted, intPtr(2))

	// Place 1 was already paid by an earlier partial run.
	prepaidRef := fmt.Sprintf("task:%s:top:%s", taskID, firstInstance)
	_, err := ledgerSvc.Credit(ctx, pool, first, ledger.KindEP, 100, "earlier partial run", &prepaidRef)
	require.NoError(t, err)

	paid, err := rewardSvc.AwardTop(ctx, user.RoleAdmin, taskID)
	require.NoError(t, err)
	assert.Equal(t, 1, paid, "only the unpaid place counts")

	balance, err := ledgerSvc.Balance(ctx, pool, first, ledger.KindEP)
	require.NoError(t, err)
	assert.Equal(t, 100, balance, "prepaid place must not be paid again")

	// The skipped instance is still flagged so flag and ledger agree.
	var flagged bool
	err = pool.QueryRow(ctx, `SELECT top_awarded FROM task_instances WHERE id = $1`, firstInstance).Scan(&flagged)
	require.NoError(t, err)
	assert.True(t, flagged)
}

func TestApproveTaskReplay(t *testing.T) {
	rewardSvc, ledgerSvc, pool, teardown := newRewardFixture(t)
	defer teardown()

	ctx := testContext(t)
	userID := createTestUser(t, pool)
	taskID := seedTask(t, pool, 40, 0, 0, nil)
	instanceID := seedInstance(t, pool, taskID, userID, task.StatusInReview, nil)

	inst, err := rewardSvc.ApproveTask(ctx, user.RoleAdmin, instanceID, 10)
	require.NoError(t, err)
	assert.Equal(t, task.StatusCompleted, inst.Status)

	balance, err := ledgerSvc.Balance(ctx, pool, userID, ledger.KindXP)
	require.NoError(t, err)
	assert.Equal(t, 50, balance, "reward plus bonus credited once")

	// Approving again is AlreadyProcessed, not InvalidState, with no credit.
	_, err = rewardSvc.ApproveTask(ctx, user.RoleAdmin, instanceID, 10)
	require.Error(t, err)
	assert.True(t, apperr.IsAlreadyProcessed(err), "replay should report AlreadyProcessed, got %v", err)
	assert.NotErrorIs(t, err, apperr.ErrInvalidState)

	balance, err = ledgerSvc.Balance(ctx, pool, userID, ledger.KindXP)
	require.NoError(t, err)
	assert.Equal(t, 50, balance)
}

func TestAwardOnceValidation(t *testing.T) {
	pool := setupTestDB(t)
	defer cleanupTestDB(t, pool)

	ledgerSvc := NewLedgerService(pool)
	notifSvc := NewNotificationService(pool)
	defer notifSvc.Stop()
	rewardSvc := NewRewardService(pool, ledgerSvc, notifSvc, nil)

	ctx := testContext(t)
	userID := createTestUser(t, pool)

	_, err := rewardSvc.AwardOnce(ctx, userID, ledger.KindEP, 0, "zero", "test:zero")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = rewardSvc.AwardOnce(ctx, userID, ledger.KindEP, -10, "negative", "test:neg")
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = rewardSvc.AwardOnce(ctx, userID, ledger.KindEP, 10, "no ref", "")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
