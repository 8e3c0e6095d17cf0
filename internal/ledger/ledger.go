package ledger

import (
	"time"

	"github.com/google/uuid"
)

// Kind selects one of the two parallel currencies.
type Kind string

const (
	// KindEP is the general student currency (tasks, quests, grades).
	KindEP Kind = "EP"
	// KindXP is the parliament currency (organizational task approvals).
	KindXP Kind = "XP"
)

func (k Kind) Valid() bool {
	return k == KindEP || k == KindXP
}

// Entry is one immutable currency delta. A user's balance is the literal sum
// of their entries per kind; negative amounts are stakes and purchases.
type Entry struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Kind      Kind      `json:"kind" db:"kind"`
	Amount    int       `json:"amount" db:"amount"`
	Reason    string    `json:"reason" db:"reason"`
	SourceRef *string   `json:"source_ref,omitempty" db:"source_ref"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type BalanceResponse struct {
	UserID  uuid.UUID `json:"user_id"`
	Kind    Kind      `json:"kind"`
	Balance int       `json:"balance"`
}
