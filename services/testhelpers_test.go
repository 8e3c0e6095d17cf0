package services

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"campusQuestAPI/internal/ledger"
)

// setupTestDB connects to the database named by TEST_DATABASE_URL (falling
// back to DATABASE_URL). Tests that need it are skipped when neither is set,
// so the suite stays runnable on a bare checkout.
func setupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL or DATABASE_URL not set, skipping database test")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	require.NoError(t, err, "failed to connect to test database")
	require.NoError(t, pool.Ping(ctx), "failed to ping test database")

	return pool
}

// cleanupTestDB removes the rows seeded by createTestUser. Ledger entries,
// duels and assignments cascade from the users delete.
func cleanupTestDB(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()

	ctx := context.Background()
	if _, err := pool.Exec(ctx, "DELETE FROM users WHERE email LIKE 'test%@example.com'"); err != nil {
		t.Logf("Warning: failed to cleanup test data: %v", err)
	}
	pool.Close()
}

// createTestUser inserts a throwaway student whose email matches the cleanup
// pattern.
func createTestUser(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()

	id := uuid.New()
	email := fmt.Sprintf("test%s@example.com", id.String()[:8])
	username := "testuser_" + id.String()[:8]

	_, err := pool.Exec(context.Background(), `
		INSERT INTO users (id, email, username, first_name, last_name, role, created_at, updated_at)
		VALUES ($1, $2, $3, 'Test', 'User', 'STUDENT', NOW(), NOW())
	`, id, email, username)
	require.NoError(t, err, "failed to insert test user")

	return id
}

// grantEP seeds a starting balance through a plain ledger credit.
func grantEP(t *testing.T, pool *pgxpool.Pool, ledgerSvc *LedgerService, userID uuid.UUID, amount int) {
	t.Helper()

	_, err := ledgerSvc.Credit(context.Background(), pool, userID, ledger.KindEP, amount, "test seed", nil)
	require.NoError(t, err, "failed to seed EP balance")
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}
