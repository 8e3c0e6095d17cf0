package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusQuestAPI/internal/apperr"
	"campusQuestAPI/internal/ledger"
	"campusQuestAPI/internal/parliament"
	"campusQuestAPI/internal/rank"
	"campusQuestAPI/internal/user"
)

// ParliamentService manages the membership roster for the student parliament.
// XP only means something for users with an active membership.
type ParliamentService struct {
	db        *pgxpool.Pool
	ledgerSvc *LedgerService
}

func NewParliamentService(db *pgxpool.Pool, ledgerSvc *LedgerService) *ParliamentService {
	return &ParliamentService{db: db, ledgerSvc: ledgerSvc}
}

// CreateMembership enrolls a user into a ministry. Admin only. A user holds at
// most one active membership; re-enrolling an active member is a conflict.
func (s *ParliamentService) CreateMembership(ctx context.Context, actorRole string, req *parliament.CreateRequest) (*parliament.Membership, error) {
	if actorRole != user.RoleAdmin {
		return nil, fmt.Errorf("only admins manage memberships: %w", apperr.ErrForbidden)
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return nil, fmt.Errorf("invalid user id: %w", apperr.ErrValidation)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var active bool
	err = tx.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM parliament_memberships WHERE user_id = $1 AND is_active = true)
	`, userID).Scan(&active)
	if err != nil {
		return nil, fmt.Errorf("failed to check membership: %w", err)
	}
	if active {
		return nil, fmt.Errorf("user already holds an active membership: %w", apperr.ErrAlreadyProcessed)
	}

	// Seed the denormalized rank cache from whatever XP the user already has.
	xpBalance, err := s.ledgerSvc.Balance(ctx, tx, userID, ledger.KindXP)
	if err != nil {
		return nil, err
	}
	tier := rank.For(ledger.KindXP, xpBalance)

	m := &parliament.Membership{
		ID:       uuid.New(),
		UserID:   userID,
		Ministry: req.Ministry,
		XPLevel:  tier.Index,
		XPRank:   tier.Name,
		IsActive: true,
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO parliament_memberships (id, user_id, ministry, xp_level, xp_rank, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, true, NOW(), NOW())
		RETURNING created_at, updated_at
	`, m.ID, m.UserID, m.Ministry, m.XPLevel, m.XPRank).Scan(&m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert membership: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit membership: %w", err)
	}
	return m, nil
}

// Deactivate retires a membership. The row survives with is_active=false so
// XP history stays attributable.
func (s *ParliamentService) Deactivate(ctx context.Context, actorRole string, membershipID uuid.UUID) error {
	if actorRole != user.RoleAdmin {
		return fmt.Errorf("only admins manage memberships: %w", apperr.ErrForbidden)
	}

	tag, err := s.db.Exec(ctx, `
		UPDATE parliament_memberships
		SET is_active = false, updated_at = NOW()
		WHERE id = $1 AND is_active = true
	`, membershipID)
	if err != nil {
		return fmt.Errorf("failed to deactivate membership: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no active membership %s: %w", membershipID, apperr.ErrNotFound)
	}
	return nil
}

// GetByUser returns the user's active membership.
func (s *ParliamentService) GetByUser(ctx context.Context, userID uuid.UUID) (*parliament.Membership, error) {
	m := &parliament.Membership{}
	err := s.db.QueryRow(ctx, `
		SELECT id, user_id, ministry, xp_level, xp_rank, is_active, created_at, updated_at
		FROM parliament_memberships
		WHERE user_id = $1 AND is_active = true
	`, userID).Scan(&m.ID, &m.UserID, &m.Ministry, &m.XPLevel, &m.XPRank, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("no active membership for user %s: %w", userID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load membership: %w", err)
	}
	return m, nil
}

// List returns active memberships grouped by ministry for the roster view.
func (s *ParliamentService) List(ctx context.Context) (map[string][]*parliament.Membership, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, ministry, xp_level, xp_rank, is_active, created_at, updated_at
		FROM parliament_memberships
		WHERE is_active = true
		ORDER BY ministry, xp_level DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list memberships: %w", err)
	}
	defer rows.Close()

	roster := make(map[string][]*parliament.Membership)
	for rows.Next() {
		m := &parliament.Membership{}
		err := rows.Scan(&m.ID, &m.UserID, &m.Ministry, &m.XPLevel, &m.XPRank, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan membership: %w", err)
		}
		roster[m.Ministry] = append(roster[m.Ministry], m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating memberships: %w", err)
	}
	return roster, nil
}
