package rank

import "campusQuestAPI/internal/ledger"

// Tier is one named step of a rank table.
type Tier struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Threshold int    `json:"threshold"`
}

// NextTier describes what a user still needs for the next step.
type NextTier struct {
	Name      string `json:"name"`
	Threshold int    `json:"threshold"`
	Delta     int    `json:"delta"`
}

// Rank tables are fixed and ascending. An exact threshold match belongs to
// the higher tier. Balances below the first threshold clamp to tier 0.
var schoolTiers = []Tier{
	{0, "Newcomer", 0},
	{1, "Participant", 300},
	{2, "Activist", 800},
	{3, "Organizer", 1500},
	{4, "Leader", 2500},
	{5, "Star", 4000},
	{6, "Legend", 6000},
}

var parliamentTiers = []Tier{
	{0, "Intern", 0},
	{1, "Assistant", 500},
	{2, "Coordinator", 1500},
	{3, "Deputy", 3000},
	{4, "Minister", 5000},
	{5, "Vice Speaker", 8000},
	{6, "Speaker", 12000},
}

func tableFor(kind ledger.Kind) []Tier {
	if kind == ledger.KindXP {
		return parliamentTiers
	}
	return schoolTiers
}

// For returns the tier whose threshold is the highest one not exceeding
// balance. Pure function of the balance; rank is never stored as truth.
func For(kind ledger.Kind, balance int) Tier {
	table := tableFor(kind)
	current := table[0]
	for _, t := range table {
		if balance >= t.Threshold {
			current = t
		}
	}
	return current
}

// Next returns the first tier strictly above balance and the missing delta.
// ok is false at the top of the table.
func Next(kind ledger.Kind, balance int) (NextTier, bool) {
	for _, t := range tableFor(kind) {
		if t.Threshold > balance {
			return NextTier{Name: t.Name, Threshold: t.Threshold, Delta: t.Threshold - balance}, true
		}
	}
	return NextTier{}, false
}

// Tiers exposes a copy of the table for read-only presentation.
func Tiers(kind ledger.Kind) []Tier {
	table := tableFor(kind)
	out := make([]Tier, len(table))
	copy(out, table)
	return out
}
