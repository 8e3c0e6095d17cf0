package challenge

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusCompleted Status = "COMPLETED"
	StatusExpired   Status = "EXPIRED"
)

// Challenge is a group pooled target: participants contribute EP-earning
// activity, total progress is the live sum across participants.
type Challenge struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	TargetEP    int       `json:"target_ep" db:"target_ep"`
	Status      Status    `json:"status" db:"status"`
	InviteToken string    `json:"invite_token" db:"invite_token"`
	EndsAt      time.Time `json:"ends_at" db:"ends_at"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Participant struct {
	ID            uuid.UUID `json:"id" db:"id"`
	ChallengeID   uuid.UUID `json:"challenge_id" db:"challenge_id"`
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	EPContributed int       `json:"ep_contributed" db:"ep_contributed"`
	JoinedAt      time.Time `json:"joined_at" db:"joined_at"`
}

// Progress is the read shape: raw sum for completion handling, percent
// clamped to 100 for display only.
type Progress struct {
	Challenge    *Challenge     `json:"challenge"`
	Participants []*Participant `json:"participants"`
	TotalEP      int            `json:"total_ep"`
	Percent      int            `json:"percent"`
}

// DisplayPercent clamps to 100 for presentation. Completion checks use the
// raw total against the target, never this value.
func DisplayPercent(total, target int) int {
	if target <= 0 {
		return 0
	}
	pct := total * 100 / target
	if pct > 100 {
		return 100
	}
	return pct
}

type CreateRequest struct {
	Title       string `json:"title" validate:"required,max=140"`
	Description string `json:"description" validate:"max=2000"`
	TargetEP    int    `json:"target_ep" validate:"required,gt=0"`
	DurationHrs int    `json:"duration_hours" validate:"required,gt=0,lte=720"`
}

// ContributeRequest carries a client-minted contribution id so a retried
// request settles as AlreadyProcessed instead of double-crediting.
type ContributeRequest struct {
	ContributionID string `json:"contribution_id" validate:"required,uuid"`
	Amount         int    `json:"amount" validate:"required,gt=0"`
}

type JoinRequest struct {
	InviteToken string `json:"invite_token" validate:"required"`
}

// InviteResponse carries the QR payload for joining via scan.
type InviteResponse struct {
	ChallengeID  uuid.UUID `json:"challenge_id"`
	InviteToken  string    `json:"invite_token"`
	ShareLink    string    `json:"share_link"`
	QrCodeBase64 string    `json:"qr_code_base64"`
}
