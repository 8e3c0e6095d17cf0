package rank

import (
	"testing"

	"campusQuestAPI/internal/ledger"
)

func TestForSchoolThresholds(t *testing.T) {
	cases := []struct {
		balance int
		want    string
	}{
		{0, "Newcomer"},
		{299, "Newcomer"},
		{300, "Participant"}, // exact threshold belongs to the higher tier
		{799, "Participant"},
		{800, "Activist"},
		{1500, "Organizer"},
		{2500, "Leader"},
		{4000, "Star"},
		{5999, "Star"},
		{6000, "Legend"},
		{99999, "Legend"},
	}

	for _, c := range cases {
		got := For(ledger.KindEP, c.balance)
		if got.Name != c.want {
			t.Errorf("For(EP, %d) = %s, want %s", c.balance, got.Name, c.want)
		}
	}
}

func TestForParliamentThresholds(t *testing.T) {
	cases := []struct {
		balance int
		want    string
	}{
		{0, "Intern"},
		{499, "Intern"},
		{500, "Assistant"},
		{1500, "Coordinator"},
		{3000, "Deputy"},
		{5000, "Minister"},
		{8000, "Vice Speaker"},
		{12000, "Speaker"},
	}

	for _, c := range cases {
		got := For(ledger.KindXP, c.balance)
		if got.Name != c.want {
			t.Errorf("For(XP, %d) = %s, want %s", c.balance, got.Name, c.want)
		}
	}
}

func TestForIsMonotone(t *testing.T) {
	for _, kind := range []ledger.Kind{ledger.KindEP, ledger.KindXP} {
		prev := -1
		for balance := 0; balance <= 13000; balance += 50 {
			tier := For(kind, balance)
			if tier.Index < prev {
				t.Fatalf("tier index decreased at balance %d for %s", balance, kind)
			}
			prev = tier.Index
		}
	}
}

func TestNext(t *testing.T) {
	next, ok := Next(ledger.KindEP, 0)
	if !ok || next.Threshold != 300 || next.Delta != 300 {
		t.Errorf("Next(EP, 0) = %+v, %v", next, ok)
	}

	next, ok = Next(ledger.KindEP, 300)
	if !ok || next.Threshold != 800 || next.Delta != 500 {
		t.Errorf("Next(EP, 300) = %+v, %v", next, ok)
	}

	if _, ok := Next(ledger.KindEP, 6000); ok {
		t.Error("expected no next tier at the top of the school table")
	}
	if _, ok := Next(ledger.KindXP, 50000); ok {
		t.Error("expected no next tier at the top of the parliament table")
	}
}
