package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusQuestAPI/internal/apperr"
)

func TestRecordActivityGrowsWithinWindow(t *testing.T) {
	pool := setupTestDB(t)
	defer cleanupTestDB(t, pool)

	streakSvc := NewStreakService(pool)
	ctx := testContext(t)
	userID := createTestUser(t, pool)

	require.NoError(t, streakSvc.RecordActivity(ctx, userID))
	require.NoError(t, streakSvc.RecordActivity(ctx, userID))

	st, err := streakSvc.Get(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 2, st.CurrentStreak, "each qualifying activity inside the window extends the streak")
	assert.Equal(t, 2, st.LongestStreak)
	require.NotNil(t, st.LastActivityAt)
}

func TestUseFreezeWhileStreakAlive(t *testing.T) {
	pool := setupTestDB(t)
	defer cleanupTestDB(t, pool)

	streakSvc := NewStreakService(pool)
	ctx := testContext(t)
	userID := createTestUser(t, pool)

	require.NoError(t, streakSvc.RecordActivity(ctx, userID))

	// The gap has not opened yet, so arming the freeze is refused before the
	// inventory is even consulted.
	_, err := streakSvc.UseFreeze(ctx, userID)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrInvalidState)
}

func TestGetCreatesEmptyStreak(t *testing.T) {
	pool := setupTestDB(t)
	defer cleanupTestDB(t, pool)

	streakSvc := NewStreakService(pool)
	ctx := testContext(t)
	userID := createTestUser(t, pool)

	st, err := streakSvc.Get(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, st.CurrentStreak)
	assert.Zero(t, st.LongestStreak)
	assert.False(t, st.FreezeUsed)
	assert.Nil(t, st.LastActivityAt)
}
