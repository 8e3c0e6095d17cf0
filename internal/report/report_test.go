package report

import (
	"errors"
	"testing"

	"campusQuestAPI/internal/apperr"
)

func TestEPForGrade(t *testing.T) {
	cases := []struct {
		grade int
		want  int
	}{
		{10, 9},
		{5, 4},
		{2, 1},
	}
	for _, c := range cases {
		got, err := EPForGrade(c.grade)
		if err != nil {
			t.Errorf("EPForGrade(%d) unexpected error: %v", c.grade, err)
		}
		if got != c.want {
			t.Errorf("EPForGrade(%d) = %d, want %d", c.grade, got, c.want)
		}
	}
}

func TestEPForGradeRefusesNonPositive(t *testing.T) {
	for _, grade := range []int{1, 0, -3} {
		_, err := EPForGrade(grade)
		if !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("EPForGrade(%d) = %v, want ErrValidation", grade, err)
		}
	}
}
