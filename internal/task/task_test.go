package task

import "testing"

func TestTopPayoutPercentCurves(t *testing.T) {
	cases := []struct {
		size     int
		position int
		want     int
	}{
		{3, 1, 100}, {3, 2, 50}, {3, 3, 25},
		{5, 1, 100}, {5, 2, 85}, {5, 3, 55}, {5, 4, 35}, {5, 5, 25},
		{10, 1, 100}, {10, 5, 50}, {10, 10, 10},
	}
	for _, c := range cases {
		if got := TopPayoutPercent(c.size, c.position); got != c.want {
			t.Errorf("TopPayoutPercent(%d, %d) = %d, want %d", c.size, c.position, got, c.want)
		}
	}
}

func TestTopPayoutPercentOutOfRange(t *testing.T) {
	if got := TopPayoutPercent(3, 4); got != 0 {
		t.Errorf("position past curve end should pay 0, got %d", got)
	}
	if got := TopPayoutPercent(3, 0); got != 0 {
		t.Errorf("position 0 should pay 0, got %d", got)
	}
	if got := TopPayoutPercent(7, 1); got != 0 {
		t.Errorf("unknown ranking size should pay 0, got %d", got)
	}
}

func TestTopPayoutAmountFloors(t *testing.T) {
	// 33 * 25 / 100 = 8.25 -> 8
	if got := TopPayoutAmount(3, 3, 33); got != 8 {
		t.Errorf("TopPayoutAmount(3, 3, 33) = %d, want 8", got)
	}
	if got := TopPayoutAmount(10, 9, 50); got != 7 { // 50 * 15%
		t.Errorf("TopPayoutAmount(10, 9, 50) = %d, want 7", got)
	}
}

func TestTopPayoutTotalNeverExceedsCurveSum(t *testing.T) {
	for _, size := range []int{3, 5, 10} {
		base := 137
		total := 0
		pctSum := 0
		for pos := 1; pos <= size; pos++ {
			total += TopPayoutAmount(size, pos, base)
			pctSum += TopPayoutPercent(size, pos)
		}
		if total > base*pctSum/100 {
			t.Errorf("size %d: total %d exceeds %d", size, total, base*pctSum/100)
		}
		// Position 1 alone never exceeds the full base reward.
		if TopPayoutAmount(size, 1, base) > base {
			t.Errorf("size %d: first place paid more than base", size)
		}
	}
}

func TestValidRankingSize(t *testing.T) {
	for _, n := range []int{3, 5, 10} {
		if !ValidRankingSize(n) {
			t.Errorf("ValidRankingSize(%d) = false", n)
		}
	}
	for _, n := range []int{0, 1, 2, 4, 7, 100} {
		if ValidRankingSize(n) {
			t.Errorf("ValidRankingSize(%d) = true", n)
		}
	}
}
