package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusQuestAPI/internal/apperr"
	"campusQuestAPI/internal/ledger"
	"campusQuestAPI/internal/store"
)

func seedStoreItem(t *testing.T, pool *pgxpool.Pool, itemType string, priceEP int) uuid.UUID {
	t.Helper()

	id := uuid.New()
	_, err := pool.Exec(testContext(t), `
		INSERT INTO store_items (id, name, description, item_type, price_ep, is_active, created_at)
		VALUES ($1, $2, '', $3, $4, true, NOW())
	`, id, "test item "+id.String()[:8], itemType, priceEP)
	require.NoError(t, err, "failed to seed store item")
	return id
}

func newStoreFixture(t *testing.T) (*StoreService, *LedgerService, *pgxpool.Pool, func()) {
	t.Helper()

	pool := setupTestDB(t)
	ledgerSvc := NewLedgerService(pool)
	storeSvc := NewStoreService(pool, ledgerSvc)

	teardown := func() {
		ctx := testContext(t)
		if _, err := pool.Exec(ctx, "DELETE FROM store_items WHERE name LIKE 'test item%'"); err != nil {
			t.Logf("Warning: failed to cleanup test items: %v", err)
		}
		cleanupTestDB(t, pool)
	}
	return storeSvc, ledgerSvc, pool, teardown
}

func TestPurchaseDebitsAndStocksInventory(t *testing.T) {
	storeSvc, ledgerSvc, pool, teardown := newStoreFixture(t)
	defer teardown()

	ctx := testContext(t)
	userID := createTestUser(t, pool)
	grantEP(t, pool, ledgerSvc, userID, 200)
	itemID := seedStoreItem(t, pool, store.ItemTypeStreakFreeze, 150)

	purchase, err := storeSvc.Purchase(ctx, userID, itemID)
	require.NoError(t, err)
	assert.Equal(t, 150, purchase.AmountPaid)

	balance, err := ledgerSvc.Balance(ctx, pool, userID, ledger.KindEP)
	require.NoError(t, err)
	assert.Equal(t, 50, balance)

	inventory, err := storeSvc.GetInventory(ctx, userID)
	require.NoError(t, err)
	require.Len(t, inventory, 1)
	assert.Equal(t, itemID, inventory[0].ItemID)
	assert.Equal(t, 1, inventory[0].Quantity)
	assert.NotNil(t, inventory[0].ExpiresAt, "a streak freeze carries a shelf life")
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	storeSvc, ledgerSvc, pool, teardown := newStoreFixture(t)
	defer teardown()

	ctx := testContext(t)
	userID := createTestUser(t, pool)
	grantEP(t, pool, ledgerSvc, userID, 100)
	itemID := seedStoreItem(t, pool, store.ItemTypeCosmetic, 150)

	_, err := storeSvc.Purchase(ctx, userID, itemID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInsufficientFunds)

	// The refusal writes nothing.
	balance, err := ledgerSvc.Balance(ctx, pool, userID, ledger.KindEP)
	require.NoError(t, err)
	assert.Equal(t, 100, balance)

	inventory, err := storeSvc.GetInventory(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, inventory)
}

func TestPurchaseUnknownItem(t *testing.T) {
	storeSvc, _, pool, teardown := newStoreFixture(t)
	defer teardown()

	ctx := testContext(t)
	userID := createTestUser(t, pool)

	_, err := storeSvc.Purchase(ctx, userID, uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
