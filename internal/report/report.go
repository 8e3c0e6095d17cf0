package report

import (
	"time"

	"github.com/google/uuid"

	"campusQuestAPI/internal/apperr"
)

// Report is a student grade report that converts into EP once the anti-cheat
// check on its photo (when present) has passed.
type Report struct {
	ID        uuid.UUID `json:"id" db:"id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Grade     int       `json:"grade" db:"grade"`
	EPAmount  int       `json:"ep_amount" db:"ep_amount"`
	Subject   string    `json:"subject" db:"subject"`
	PhotoURL  *string   `json:"photo_url,omitempty" db:"photo_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type SubmitRequest struct {
	Grade     int     `json:"grade" validate:"required,gte=0,lte=10"`
	Subject   string  `json:"subject" validate:"required,max=120"`
	PhotoURL  *string `json:"photo_url,omitempty" validate:"omitempty,url"`
	ClaimedAt *string `json:"claimed_at,omitempty"`
}

// EPForGrade converts a grade into EP: one point below the grade. Grades of
// 1 or 0 convert to nothing, and a report that would earn nothing is refused
// rather than recorded.
func EPForGrade(grade int) (int, error) {
	ep := grade - 1
	if ep <= 0 {
		return 0, apperr.ErrValidation
	}
	return ep, nil
}
