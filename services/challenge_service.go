package services

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skip2/go-qrcode"

	"campusQuestAPI/internal/apperr"
	"campusQuestAPI/internal/challenge"
	"campusQuestAPI/internal/ledger"
	"campusQuestAPI/internal/notification"
)

// ChallengeService runs pooled group targets. Contributions land twice in the
// same transaction: the participant's own EP ledger and the challenge pool.
// The two effects are independent on purpose, so overshooting the target still
// pays the contributor in full.
type ChallengeService struct {
	db           *pgxpool.Pool
	rewardSvc    *RewardService
	notifService *NotificationService
}

func NewChallengeService(db *pgxpool.Pool, rewardSvc *RewardService, notifService *NotificationService) *ChallengeService {
	return &ChallengeService{
		db:           db,
		rewardSvc:    rewardSvc,
		notifService: notifService,
	}
}

// Create opens an ACTIVE challenge and enrolls the creator as its first
// participant.
func (s *ChallengeService) Create(ctx context.Context, creatorID uuid.UUID, req *challenge.CreateRequest) (*challenge.Challenge, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now().UTC()
	c := &challenge.Challenge{
		ID:          uuid.New(),
		Title:       req.Title,
		Description: req.Description,
		TargetEP:    req.TargetEP,
		Status:      challenge.StatusActive,
		InviteToken: uuid.New().String(),
		EndsAt:      now.Add(time.Duration(req.DurationHrs) * time.Hour),
		CreatedAt:   now,
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO challenges (id, title, description, target_ep, status, invite_token, ends_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, c.ID, c.Title, c.Description, c.TargetEP, c.Status, c.InviteToken, c.EndsAt, c.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert challenge: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO challenge_participants (id, challenge_id, user_id, ep_contributed, joined_at)
		VALUES ($1, $2, $3, 0, $4)
	`, uuid.New(), c.ID, creatorID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to enroll creator: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit challenge: %w", err)
	}
	return c, nil
}

// Join enrolls the caller via an invite token. Re-joining is a no-op that
// returns the existing enrollment.
func (s *ChallengeService) Join(ctx context.Context, userID uuid.UUID, inviteToken string) (*challenge.Challenge, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	c := &challenge.Challenge{}
	err = tx.QueryRow(ctx, `
		SELECT id, title, description, target_ep, status, invite_token, ends_at, created_at
		FROM challenges WHERE invite_token = $1
		FOR UPDATE
	`, inviteToken).Scan(&c.ID, &c.Title, &c.Description, &c.TargetEP, &c.Status, &c.InviteToken, &c.EndsAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invite token not recognized: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	if c.Status != challenge.StatusActive || time.Now().UTC().After(c.EndsAt) {
		return nil, fmt.Errorf("challenge is no longer open: %w", apperr.ErrInvalidState)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO challenge_participants (id, challenge_id, user_id, ep_contributed, joined_at)
		VALUES ($1, $2, $3, 0, NOW())
		ON CONFLICT (challenge_id, user_id) DO NOTHING
	`, uuid.New(), c.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to enroll participant: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit join: %w", err)
	}
	return c, nil
}

// Contribute records an EP-earning contribution toward the pool. The amount
// is credited to the contributor's personal ledger and added to their pool
// share in one transaction. Crossing the target flips the challenge to
// COMPLETED exactly once (the row lock arbitrates racing contributors).
// contributionID is minted by the client; replaying it reports
// AlreadyProcessed and rolls the pool increment back with the transaction.
func (s *ChallengeService) Contribute(ctx context.Context, userID, challengeID, contributionID uuid.UUID, amount int) (*challenge.Progress, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("contribution must be positive: %w", apperr.ErrValidation)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	c := &challenge.Challenge{}
	err = tx.QueryRow(ctx, `
		SELECT id, title, description, target_ep, status, invite_token, ends_at, created_at
		FROM challenges WHERE id = $1
		FOR UPDATE
	`, challengeID).Scan(&c.ID, &c.Title, &c.Description, &c.TargetEP, &c.Status, &c.InviteToken, &c.EndsAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("challenge %s: %w", challengeID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	if c.Status != challenge.StatusActive {
		return nil, fmt.Errorf("challenge is %s, not ACTIVE: %w", c.Status, apperr.ErrInvalidState)
	}
	if time.Now().UTC().After(c.EndsAt) {
		return nil, fmt.Errorf("challenge window has closed: %w", apperr.ErrInvalidState)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE challenge_participants
		SET ep_contributed = ep_contributed + $1
		WHERE challenge_id = $2 AND user_id = $3
	`, amount, c.ID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to record contribution: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, fmt.Errorf("not a participant of this challenge: %w", apperr.ErrForbidden)
	}

	// The personal credit and the pool increment are independent effects.
	// An overshoot past the target still pays the contributor in full. The
	// idempotent award path refuses a replayed contribution id, which aborts
	// the transaction and undoes the increment above.
	contributionRef := fmt.Sprintf("challenge:%s:contribution:%s", c.ID, contributionID)
	_, err = s.rewardSvc.awardOnceTx(ctx, tx, userID, ledger.KindEP, amount,
		fmt.Sprintf("challenge contribution: %s", c.Title), contributionRef)
	if err != nil {
		return nil, err
	}

	var total int
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(ep_contributed), 0)
		FROM challenge_participants WHERE challenge_id = $1
	`, c.ID).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to sum pool: %w", err)
	}

	completed := false
	if total >= c.TargetEP {
		_, err = tx.Exec(ctx, `UPDATE challenges SET status = $1 WHERE id = $2`, challenge.StatusCompleted, c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to complete challenge: %w", err)
		}
		c.Status = challenge.StatusCompleted
		completed = true
	}

	participants, err := s.participants(ctx, tx, c.ID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit contribution: %w", err)
	}

	if completed {
		for _, p := range participants {
			s.notifService.Notify(p.UserID, notification.TypeChallengeCompleted,
				"Challenge completed",
				fmt.Sprintf("%s hit its %d EP target", c.Title, c.TargetEP),
				map[string]any{"challenge_id": c.ID.String()})
		}
	}

	return &challenge.Progress{
		Challenge:    c,
		Participants: participants,
		TotalEP:      total,
		Percent:      challenge.DisplayPercent(total, c.TargetEP),
	}, nil
}

// GetProgress returns the live pool state. An ACTIVE challenge past its
// ends_at is flipped to EXPIRED lazily on read.
func (s *ChallengeService) GetProgress(ctx context.Context, challengeID uuid.UUID) (*challenge.Progress, error) {
	c := &challenge.Challenge{}
	err := s.db.QueryRow(ctx, `
		SELECT id, title, description, target_ep, status, invite_token, ends_at, created_at
		FROM challenges WHERE id = $1
	`, challengeID).Scan(&c.ID, &c.Title, &c.Description, &c.TargetEP, &c.Status, &c.InviteToken, &c.EndsAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("challenge %s: %w", challengeID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load challenge: %w", err)
	}

	if c.Status == challenge.StatusActive && time.Now().UTC().After(c.EndsAt) {
		_, err = s.db.Exec(ctx, `
			UPDATE challenges SET status = $1 WHERE id = $2 AND status = $3
		`, challenge.StatusExpired, c.ID, challenge.StatusActive)
		if err != nil {
			return nil, fmt.Errorf("failed to expire challenge: %w", err)
		}
		c.Status = challenge.StatusExpired
	}

	participants, err := s.participants(ctx, s.db, c.ID)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, p := range participants {
		total += p.EPContributed
	}

	return &challenge.Progress{
		Challenge:    c,
		Participants: participants,
		TotalEP:      total,
		Percent:      challenge.DisplayPercent(total, c.TargetEP),
	}, nil
}

// ListForUser returns challenges the user participates in, newest first.
func (s *ChallengeService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*challenge.Challenge, error) {
	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.title, c.description, c.target_ep, c.status, c.invite_token, c.ends_at, c.created_at
		FROM challenges c
		JOIN challenge_participants cp ON cp.challenge_id = c.id
		WHERE cp.user_id = $1
		ORDER BY c.created_at DESC
		LIMIT 50
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	var challenges []*challenge.Challenge
	for rows.Next() {
		c := &challenge.Challenge{}
		err := rows.Scan(&c.ID, &c.Title, &c.Description, &c.TargetEP, &c.Status, &c.InviteToken, &c.EndsAt, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		challenges = append(challenges, c)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating challenges: %w", err)
	}

	if challenges == nil {
		challenges = []*challenge.Challenge{}
	}
	return challenges, nil
}

// GenerateInvite renders the invite token as a deep link plus a QR png for
// in-person sharing. Only participants may mint invites.
func (s *ChallengeService) GenerateInvite(ctx context.Context, userID, challengeID uuid.UUID) (*challenge.InviteResponse, error) {
	var inviteToken string
	var status challenge.Status
	err := s.db.QueryRow(ctx, `
		SELECT c.invite_token, c.status
		FROM challenges c
		JOIN challenge_participants cp ON cp.challenge_id = c.id
		WHERE c.id = $1 AND cp.user_id = $2
	`, challengeID, userID).Scan(&inviteToken, &status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("challenge not found or not a participant: %w", apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load invite token: %w", err)
	}

	if status != challenge.StatusActive {
		return nil, fmt.Errorf("challenge is %s, invites are closed: %w", status, apperr.ErrInvalidState)
	}

	shareLink := fmt.Sprintf("campusquest://challenge/join/%s", inviteToken)
	pngBytes, err := qrcode.Encode(shareLink, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to generate QR png: %w", err)
	}

	return &challenge.InviteResponse{
		ChallengeID:  challengeID,
		InviteToken:  inviteToken,
		ShareLink:    shareLink,
		QrCodeBase64: base64.StdEncoding.EncodeToString(pngBytes),
	}, nil
}

func (s *ChallengeService) participants(ctx context.Context, q Querier, challengeID uuid.UUID) ([]*challenge.Participant, error) {
	rows, err := q.Query(ctx, `
		SELECT id, challenge_id, user_id, ep_contributed, joined_at
		FROM challenge_participants
		WHERE challenge_id = $1
		ORDER BY ep_contributed DESC, joined_at ASC
	`, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch participants: %w", err)
	}
	defer rows.Close()

	var participants []*challenge.Participant
	for rows.Next() {
		p := &challenge.Participant{}
		if err := rows.Scan(&p.ID, &p.ChallengeID, &p.UserID, &p.EPContributed, &p.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan participant: %w", err)
		}
		participants = append(participants, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating participants: %w", err)
	}

	if participants == nil {
		participants = []*challenge.Participant{}
	}
	return participants, nil
}
