package quest

import (
	"testing"
	"time"
)

func TestQuota(t *testing.T) {
	if got := PeriodDaily.Quota(); got != 3 {
		t.Errorf("daily quota = %d, want 3", got)
	}
	if got := PeriodWeekly.Quota(); got != 2 {
		t.Errorf("weekly quota = %d, want 2", got)
	}
	if got := PeriodMonthly.Quota(); got != 1 {
		t.Errorf("monthly quota = %d, want 1", got)
	}
}

func TestWindowStartDaily(t *testing.T) {
	now := time.Date(2026, 3, 14, 17, 45, 12, 0, time.UTC)
	want := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	if got := PeriodDaily.WindowStart(now); !got.Equal(want) {
		t.Errorf("daily window = %v, want %v", got, want)
	}
}

func TestWindowStartWeekly(t *testing.T) {
	// 2026-03-14 is a Saturday; the window starts Monday 2026-03-09.
	now := time.Date(2026, 3, 14, 17, 45, 12, 0, time.UTC)
	want := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	if got := PeriodWeekly.WindowStart(now); !got.Equal(want) {
		t.Errorf("weekly window = %v, want %v", got, want)
	}

	// A Monday maps to itself.
	monday := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	if got := PeriodWeekly.WindowStart(monday); !got.Equal(want) {
		t.Errorf("weekly window on Monday = %v, want %v", got, want)
	}

	// Sunday still belongs to the preceding Monday.
	sunday := time.Date(2026, 3, 15, 23, 59, 0, 0, time.UTC)
	if got := PeriodWeekly.WindowStart(sunday); !got.Equal(want) {
		t.Errorf("weekly window on Sunday = %v, want %v", got, want)
	}
}

func TestWindowStartMonthly(t *testing.T) {
	now := time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC)
	want := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if got := PeriodMonthly.WindowStart(now); !got.Equal(want) {
		t.Errorf("monthly window = %v, want %v", got, want)
	}
}

func TestWindowStartStableWithinWindow(t *testing.T) {
	// Two calls inside the same window must key to the same start.
	morning := time.Date(2026, 5, 6, 0, 0, 1, 0, time.UTC)
	evening := time.Date(2026, 5, 6, 23, 59, 59, 0, time.UTC)
	for _, p := range []Period{PeriodDaily, PeriodWeekly, PeriodMonthly} {
		if !p.WindowStart(morning).Equal(p.WindowStart(evening)) {
			t.Errorf("%s window drifted within the same day", p)
		}
	}
}
