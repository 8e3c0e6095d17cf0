package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusQuestAPI/internal/apperr"
	"campusQuestAPI/internal/duel"
	"campusQuestAPI/internal/ledger"
)

func newDuelFixture(t *testing.T) (*DuelService, *LedgerService, func()) {
	t.Helper()

	pool := setupTestDB(t)
	ledgerSvc := NewLedgerService(pool)
	notifSvc := NewNotificationService(pool)
	rewardSvc := NewRewardService(pool, ledgerSvc, notifSvc, nil)
	duelSvc := NewDuelService(pool, ledgerSvc, rewardSvc, notifSvc)

	teardown := func() {
		notifSvc.Stop()
		cleanupTestDB(t, pool)
	}
	return duelSvc, ledgerSvc, teardown
}

func TestCreateDuelInsufficientFunds(t *testing.T) {
	duelSvc, ledgerSvc, teardown := newDuelFixture(t)
	defer teardown()

	pool := ledgerSvc.Pool()
	ctx := testContext(t)
	creator := createTestUser(t, pool)
	opponent := createTestUser(t, pool)
	grantEP(t, pool, ledgerSvc, creator, 30)

	_, err := duelSvc.Create(ctx, creator, &duel.CreateRequest{
		OpponentID:    opponent.String(),
		Stake:         50,
		DurationHours: 24,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)

	// The rejection must write nothing: no duel row, no escrow entry.
	var duelCount int
	err = pool.QueryRow(ctx, `SELECT COUNT(*) FROM duels WHERE creator_id = $1`, creator).Scan(&duelCount)
	require.NoError(t, err)
	assert.Zero(t, duelCount)

	balance, err := ledgerSvc.Balance(ctx, pool, creator, ledger.KindEP)
	require.NoError(t, err)
	assert.Equal(t, 30, balance)
}

func TestDuelLifecycleConservesStakes(t *testing.T) {
	duelSvc, ledgerSvc, teardown := newDuelFixture(t)
	defer teardown()

	pool := ledgerSvc.Pool()
	ctx := testContext(t)
	creator := createTestUser(t, pool)
	opponent := createTestUser(t, pool)
	grantEP(t, pool, ledgerSvc, creator, 200)
	grantEP(t, pool, ledgerSvc, opponent, 200)

	d, err := duelSvc.Create(ctx, creator, &duel.CreateRequest{
		OpponentID:    opponent.String(),
		Stake:         50,
		DurationHours: 24,
	})
	require.NoError(t, err)
	assert.Equal(t, duel.StatusPending, d.Status)

	balance, err := ledgerSvc.Balance(ctx, pool, creator, ledger.KindEP)
	require.NoError(t, err)
	assert.Equal(t, 150, balance, "creator stake should be escrowed at creation")

	d, err = duelSvc.Accept(ctx, opponent, d.ID)
	require.NoError(t, err)
	assert.Equal(t, duel.StatusActive, d.Status)
	require.NotNil(t, d.EndsAt)

	d, err = duelSvc.Resolve(ctx, creator, d.ID, creator)
	require.NoError(t, err)
	assert.Equal(t, duel.StatusCompleted, d.Status)
	require.NotNil(t, d.WinnerID)
	assert.Equal(t, creator, *d.WinnerID)

	winnerBalance, err := ledgerSvc.Balance(ctx, pool, creator, ledger.KindEP)
	require.NoError(t, err)
	loserBalance, err := ledgerSvc.Balance(ctx, pool, opponent, ledger.KindEP)
	require.NoError(t, err)

	assert.Equal(t, 250, winnerBalance, "winner takes the full pot")
	assert.Equal(t, 150, loserBalance, "loser is down exactly one stake")
	assert.Equal(t, 400, winnerBalance+loserBalance, "a duel mints no EP")

	// Settling twice must not pay the pot again.
	_, err = duelSvc.Resolve(ctx, creator, d.ID, creator)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestAcceptDuelOnlyOpponent(t *testing.T) {
	duelSvc, ledgerSvc, teardown := newDuelFixture(t)
	defer teardown()

	pool := ledgerSvc.Pool()
	ctx := testContext(t)
	creator := createTestUser(t, pool)
	opponent := createTestUser(t, pool)
	outsider := createTestUser(t, pool)
	grantEP(t, pool, ledgerSvc, creator, 100)
	grantEP(t, pool, ledgerSvc, outsider, 100)

	d, err := duelSvc.Create(ctx, creator, &duel.CreateRequest{
		OpponentID:    opponent.String(),
		Stake:         20,
		DurationHours: 12,
	})
	require.NoError(t, err)

	_, err = duelSvc.Accept(ctx, outsider, d.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestCancelDuelRefundsCreator(t *testing.T) {
	duelSvc, ledgerSvc, teardown := newDuelFixture(t)
	defer teardown()

	pool := ledgerSvc.Pool()
	ctx := testContext(t)
	creator := createTestUser(t, pool)
	opponent := createTestUser(t, pool)
	grantEP(t, pool, ledgerSvc, creator, 100)

	d, err := duelSvc.Create(ctx, creator, &duel.CreateRequest{
		OpponentID:    opponent.String(),
		Stake:         40,
		DurationHours: 12,
	})
	require.NoError(t, err)

	d, err = duelSvc.Cancel(ctx, creator, d.ID)
	require.NoError(t, err)
	assert.Equal(t, duel.StatusCancelled, d.Status)

	balance, err := ledgerSvc.Balance(ctx, pool, creator, ledger.KindEP)
	require.NoError(t, err)
	assert.Equal(t, 100, balance, "cancellation should return the escrowed stake")
}
