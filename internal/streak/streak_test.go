package streak

import (
	"testing"
	"time"
)

func ago(now time.Time, d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func TestApplyFirstActivity(t *testing.T) {
	now := time.Now()
	next := Apply(State{}, now)
	if next.CurrentStreak != 1 || next.LongestStreak != 1 {
		t.Errorf("first activity: got current=%d longest=%d", next.CurrentStreak, next.LongestStreak)
	}
	if next.LastActivityAt == nil || !next.LastActivityAt.Equal(now) {
		t.Error("last activity not stamped")
	}
}

func TestApplyWithinWindow(t *testing.T) {
	now := time.Now()
	s := State{CurrentStreak: 4, LongestStreak: 9, LastActivityAt: ago(now, 5*time.Hour)}
	next := Apply(s, now)
	if next.CurrentStreak != 5 {
		t.Errorf("current = %d, want 5", next.CurrentStreak)
	}
	if next.LongestStreak != 9 {
		t.Errorf("longest = %d, want 9", next.LongestStreak)
	}
}

func TestApplyBumpsLongest(t *testing.T) {
	now := time.Now()
	s := State{CurrentStreak: 9, LongestStreak: 9, LastActivityAt: ago(now, time.Hour)}
	next := Apply(s, now)
	if next.CurrentStreak != 10 || next.LongestStreak != 10 {
		t.Errorf("got current=%d longest=%d, want 10/10", next.CurrentStreak, next.LongestStreak)
	}
}

func TestApplyGapWithoutFreeze(t *testing.T) {
	now := time.Now()
	s := State{CurrentStreak: 7, LongestStreak: 7, LastActivityAt: ago(now, 30*time.Hour)}
	next := Apply(s, now)
	if next.CurrentStreak != 0 {
		t.Errorf("30h gap without freeze: current = %d, want 0", next.CurrentStreak)
	}
	if next.LongestStreak != 7 {
		t.Errorf("longest must survive the reset, got %d", next.LongestStreak)
	}
}

func TestApplyGapWithFreeze(t *testing.T) {
	now := time.Now()
	s := State{CurrentStreak: 7, LongestStreak: 7, LastActivityAt: ago(now, 30*time.Hour), FreezeUsed: true}
	next := Apply(s, now)
	if next.CurrentStreak != 7 {
		t.Errorf("armed freeze must preserve the streak, got %d", next.CurrentStreak)
	}
	if next.FreezeUsed {
		t.Error("freeze must be consumed after absorbing the gap")
	}
}

func TestApplyFreezeAbsorbsOnlyOneGap(t *testing.T) {
	now := time.Now()
	s := State{CurrentStreak: 5, LongestStreak: 5, LastActivityAt: ago(now, 30*time.Hour), FreezeUsed: true}

	s = Apply(s, now)
	if s.CurrentStreak != 5 || s.FreezeUsed {
		t.Fatalf("first gap: got current=%d freeze=%v", s.CurrentStreak, s.FreezeUsed)
	}

	later := now.Add(40 * time.Hour)
	s = Apply(s, later)
	if s.CurrentStreak != 0 {
		t.Errorf("second gap must break the streak, got %d", s.CurrentStreak)
	}
}
