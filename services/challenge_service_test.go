package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusQuestAPI/internal/apperr"
	"campusQuestAPI/internal/challenge"
	"campusQuestAPI/internal/ledger"
)

func newChallengeFixture(t *testing.T) (*ChallengeService, *LedgerService, *pgxpool.Pool, func()) {
	t.Helper()

	pool := setupTestDB(t)
	ledgerSvc := NewLedgerService(pool)
	notifSvc := NewNotificationService(pool)
	rewardSvc := NewRewardService(pool, ledgerSvc, notifSvc, nil)
	challengeSvc := NewChallengeService(pool, rewardSvc, notifSvc)

	teardown := func() {
		notifSvc.Stop()
		ctx := testContext(t)
		if _, err := pool.Exec(ctx, "DELETE FROM challenges WHERE title LIKE 'test challenge%'"); err != nil {
			t.Logf("Warning: failed to cleanup test challenges: %v", err)
		}
		cleanupTestDB(t, pool)
	}
	return challengeSvc, ledgerSvc, pool, teardown
}

func TestContributeAdvancesPoolAndCreditsUser(t *testing.T) {
	challengeSvc, ledgerSvc, pool, teardown := newChallengeFixture(t)
	defer teardown()

	ctx := testContext(t)
	creator := createTestUser(t, pool)

	ch, err := challengeSvc.Create(ctx, creator, &challenge.CreateRequest{
		Title:       "test challenge pool",
		TargetEP:    100,
		DurationHrs: 48,
	})
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusActive, ch.Status)

	progress, err := challengeSvc.Contribute(ctx, creator, ch.ID, uuid.New(), 40)
	require.NoError(t, err)
	assert.Equal(t, 40, progress.TotalEP)
	assert.Equal(t, 40, progress.Percent)
	assert.Equal(t, challenge.StatusActive, progress.Challenge.Status)

	// Contribution pays the contributor personally as well as the pool.
	balance, err := ledgerSvc.Balance(ctx, pool, creator, ledger.KindEP)
	require.NoError(t, err)
	assert.Equal(t, 40, balance)
}

func TestContributeCompletesAtTarget(t *testing.T) {
	challengeSvc, _, pool, teardown := newChallengeFixture(t)
	defer teardown()

	ctx := testContext(t)
	creator := createTestUser(t, pool)
	friend := createTestUser(t, pool)

	ch, err := challengeSvc.Create(ctx, creator, &challenge.CreateRequest{
		Title:       "test challenge finish",
		TargetEP:    100,
		DurationHrs: 48,
	})
	require.NoError(t, err)

	_, err = challengeSvc.Join(ctx, friend, ch.InviteToken)
	require.NoError(t, err)

	_, err = challengeSvc.Contribute(ctx, creator, ch.ID, uuid.New(), 60)
	require.NoError(t, err)

	// The overshooting contribution still counts in full; the display
	// percent is what gets clamped.
	progress, err := challengeSvc.Contribute(ctx, friend, ch.ID, uuid.New(), 70)
	require.NoError(t, err)
	assert.Equal(t, challenge.StatusCompleted, progress.Challenge.Status)
	assert.Equal(t, 130, progress.TotalEP)
	assert.Equal(t, 100, progress.Percent)

	// A completed challenge accepts no further contributions.
	_, err = challengeSvc.Contribute(ctx, creator, ch.ID, uuid.New(), 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestContributeReplayIsNoOp(t *testing.T) {
	challengeSvc, ledgerSvc, pool, teardown := newChallengeFixture(t)
	defer teardown()

	ctx := testContext(t)
	creator := createTestUser(t, pool)

	ch, err := challengeSvc.Create(ctx, creator, &challenge.CreateRequest{
		Title:       "test challenge retry",
		TargetEP:    200,
		DurationHrs: 48,
	})
	require.NoError(t, err)

	contributionID := uuid.New()
	progress, err := challengeSvc.Contribute(ctx, creator, ch.ID, contributionID, 30)
	require.NoError(t, err)
	assert.Equal(t, 30, progress.TotalEP)

	// A retried request reuses its contribution id and must change nothing:
	// neither the personal balance nor the pool.
	_, err = challengeSvc.Contribute(ctx, creator, ch.ID, contributionID, 30)
	require.Error(t, err)
	assert.True(t, apperr.IsAlreadyProcessed(err), "replay should report AlreadyProcessed, got %v", err)

	balance, err := ledgerSvc.Balance(ctx, pool, creator, ledger.KindEP)
	require.NoError(t, err)
	assert.Equal(t, 30, balance)

	progress, err = challengeSvc.GetProgress(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, progress.TotalEP, "the rolled-back increment must not stick")
}

func TestContributeRequiresMembership(t *testing.T) {
	challengeSvc, _, pool, teardown := newChallengeFixture(t)
	defer teardown()

	ctx := testContext(t)
	creator := createTestUser(t, pool)
	outsider := createTestUser(t, pool)

	ch, err := challengeSvc.Create(ctx, creator, &challenge.CreateRequest{
		Title:       "test challenge members",
		TargetEP:    500,
		DurationHrs: 48,
	})
	require.NoError(t, err)

	_, err = challengeSvc.Contribute(ctx, outsider, ch.ID, uuid.New(), 20)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestJoinWithBadToken(t *testing.T) {
	challengeSvc, _, pool, teardown := newChallengeFixture(t)
	defer teardown()

	ctx := testContext(t)
	userID := createTestUser(t, pool)

	_, err := challengeSvc.Join(ctx, userID, "no-such-token")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
