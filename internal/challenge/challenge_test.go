package challenge

import "testing"

func TestDisplayPercent(t *testing.T) {
	cases := []struct {
		total, target, want int
	}{
		{0, 1000, 0},
		{250, 1000, 25},
		{1000, 1000, 100},
		{1500, 1000, 100}, // overshoot clamps for display only
		{10, 0, 0},
	}
	for _, c := range cases {
		if got := DisplayPercent(c.total, c.target); got != c.want {
			t.Errorf("DisplayPercent(%d, %d) = %d, want %d", c.total, c.target, got, c.want)
		}
	}
}
