package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusQuestAPI/internal/apperr"
	"campusQuestAPI/internal/duel"
	"campusQuestAPI/internal/ledger"
	"campusQuestAPI/internal/notification"
)

// DuelService runs 1v1 staked wagers. Stakes are escrowed as negative ledger
// entries, one per side rather than an atomic transfer, and the pot is paid out
// through the idempotent award path so settlement retries are safe.
type DuelService struct {
	db           *pgxpool.Pool
	ledgerSvc    *LedgerService
	rewardSvc    *RewardService
	notifService *NotificationService
}

func NewDuelService(db *pgxpool.Pool, ledgerSvc *LedgerService, rewardSvc *RewardService, notifService *NotificationService) *DuelService {
	return &DuelService{
		db:           db,
		ledgerSvc:    ledgerSvc,
		rewardSvc:    rewardSvc,
		notifService: notifService,
	}
}

// Create opens a PENDING duel and escrows the creator's stake. The balance
// check and the debit share one transaction under the balance lock, so a
// concurrent debit cannot slip between them. On InsufficientFunds nothing is
// written.
func (s *DuelService) Create(ctx context.Context, creatorID uuid.UUID, req *duel.CreateRequest) (*duel.Duel, error) {
	opponentID, err := uuid.Parse(req.OpponentID)
	if err != nil {
		return nil, fmt.Errorf("invalid opponent id: %w", apperr.ErrValidation)
	}
	if opponentID == creatorID {
		return nil, fmt.Errorf("cannot duel yourself: %w", apperr.ErrValidation)
	}
	if req.Stake <= 0 {
		return nil, fmt.Errorf("stake must be positive: %w", apperr.ErrValidation)
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var opponentExists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, opponentID).Scan(&opponentExists); err != nil {
		return nil, fmt.Errorf("failed to check opponent: %w", err)
	}
	if !opponentExists {
		return nil, fmt.Errorf("opponent %s: %w", opponentID, apperr.ErrNotFound)
	}

	if err := s.ledgerSvc.LockBalance(ctx, tx, creatorID, ledger.KindEP); err != nil {
		return nil, err
	}
	balance, err := s.ledgerSvc.Balance(ctx, tx, creatorID, ledger.KindEP)
	if err != nil {
		return nil, err
	}
	if balance < req.Stake {
		return nil, fmt.Errorf("balance %d below stake %d: %w", balance, req.Stake, apperr.ErrInsufficientFunds)
	}

	d := &duel.Duel{
		ID:         uuid.New(),
		CreatorID:  creatorID,
		OpponentID: opponentID,
		Stake:      req.Stake,
		Duration:   req.DurationHours,
		Status:     duel.StatusPending,
		CreatedAt:  time.Now().UTC(),
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO duels (id, creator_id, opponent_id, stake, duration_hours, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.ID, d.CreatorID, d.OpponentID, d.Stake, d.Duration, d.Status, d.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert duel: %w", err)
	}

	stakeRef := fmt.Sprintf("duel:%s:stake:%s", d.ID, creatorID)
	_, err = s.ledgerSvc.Credit(ctx, tx, creatorID, ledger.KindEP, -req.Stake,
		fmt.Sprintf("duel stake vs %s", opponentID), &stakeRef)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit duel: %w", err)
	}

	s.notifService.Notify(opponentID, notification.TypeDuelInvite,
		"Duel challenge",
		fmt.Sprintf("You were challenged for %d EP", d.Stake),
		map[string]any{"duel_id": d.ID.String(), "stake": d.Stake})

	return d, nil
}

// Accept moves a PENDING duel to ACTIVE. Only the named opponent may accept;
// their stake is escrowed the same way the creator's was.
func (s *DuelService) Accept(ctx context.Context, actorID, duelID uuid.UUID) (*duel.Duel, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.lockDuel(ctx, tx, duelID)
	if err != nil {
		return nil, err
	}

	if d.OpponentID != actorID {
		return nil, fmt.Errorf("only the challenged opponent may accept: %w", apperr.ErrForbidden)
	}
	if d.Status != duel.StatusPending {
		return nil, fmt.Errorf("duel is %s, not PENDING: %w", d.Status, apperr.ErrInvalidState)
	}

	if err := s.ledgerSvc.LockBalance(ctx, tx, actorID, ledger.KindEP); err != nil {
		return nil, err
	}
	balance, err := s.ledgerSvc.Balance(ctx, tx, actorID, ledger.KindEP)
	if err != nil {
		return nil, err
	}
	if balance < d.Stake {
		return nil, fmt.Errorf("balance %d below stake %d: %w", balance, d.Stake, apperr.ErrInsufficientFunds)
	}

	stakeRef := fmt.Sprintf("duel:%s:stake:%s", d.ID, actorID)
	_, err = s.ledgerSvc.Credit(ctx, tx, actorID, ledger.KindEP, -d.Stake,
		fmt.Sprintf("duel stake vs %s", d.CreatorID), &stakeRef)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	endsAt := now.Add(time.Duration(d.Duration) * time.Hour)
	_, err = tx.Exec(ctx, `
		UPDATE duels SET status = $1, started_at = $2, ends_at = $3 WHERE id = $4
	`, duel.StatusActive, now, endsAt, d.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to activate duel: %w", err)
	}
	d.Status = duel.StatusActive
	d.StartedAt = &now
	d.EndsAt = &endsAt

	for _, participantID := range []uuid.UUID{d.CreatorID, d.OpponentID} {
		_, err = tx.Exec(ctx, `
			INSERT INTO duel_participants (id, duel_id, user_id, score, is_ready)
			VALUES ($1, $2, $3, 0, true)
			ON CONFLICT (duel_id, user_id) DO NOTHING
		`, uuid.New(), d.ID, participantID)
		if err != nil {
			return nil, fmt.Errorf("failed to insert participant: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit acceptance: %w", err)
	}

	s.notifService.Notify(d.CreatorID, notification.TypeDuelInvite,
		"Duel accepted",
		fmt.Sprintf("Your duel for %d EP is on", d.Stake),
		map[string]any{"duel_id": d.ID.String()})

	return d, nil
}

// Cancel aborts a PENDING duel and refunds the creator's escrow. Only the
// creator may cancel, and only before acceptance.
func (s *DuelService) Cancel(ctx context.Context, actorID, duelID uuid.UUID) (*duel.Duel, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.lockDuel(ctx, tx, duelID)
	if err != nil {
		return nil, err
	}

	if d.CreatorID != actorID {
		return nil, fmt.Errorf("only the creator may cancel: %w", apperr.ErrForbidden)
	}
	if d.Status != duel.StatusPending {
		return nil, fmt.Errorf("duel is %s, not PENDING: %w", d.Status, apperr.ErrInvalidState)
	}

	refundRef := fmt.Sprintf("duel:%s:refund:%s", d.ID, d.CreatorID)
	_, err = s.ledgerSvc.Credit(ctx, tx, d.CreatorID, ledger.KindEP, d.Stake, "duel cancelled, stake refunded", &refundRef)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `UPDATE duels SET status = $1 WHERE id = $2`, duel.StatusCancelled, d.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel duel: %w", err)
	}
	d.Status = duel.StatusCancelled

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit cancellation: %w", err)
	}
	return d, nil
}

// Resolve settles an ACTIVE duel with an explicit winner. Either participant
// may report the result; the winner takes the whole pot (2x stake), credited
// once via the award path keyed by the duel id.
func (s *DuelService) Resolve(ctx context.Context, actorID, duelID uuid.UUID, winnerID uuid.UUID) (*duel.Duel, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.lockDuel(ctx, tx, duelID)
	if err != nil {
		return nil, err
	}

	if actorID != d.CreatorID && actorID != d.OpponentID {
		return nil, fmt.Errorf("only participants may resolve: %w", apperr.ErrForbidden)
	}
	if d.Status != duel.StatusActive {
		return nil, fmt.Errorf("duel is %s, not ACTIVE: %w", d.Status, apperr.ErrInvalidState)
	}
	if winnerID != d.CreatorID && winnerID != d.OpponentID {
		return nil, fmt.Errorf("winner must be a participant: %w", apperr.ErrValidation)
	}

	pot := 2 * d.Stake
	potRef := fmt.Sprintf("duel:%s:pot", d.ID)
	if _, err := s.rewardSvc.awardOnceTx(ctx, tx, winnerID, ledger.KindEP, pot, "duel won", potRef); err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `UPDATE duels SET status = $1, winner_id = $2 WHERE id = $3`, duel.StatusCompleted, winnerID, d.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to complete duel: %w", err)
	}
	d.Status = duel.StatusCompleted
	d.WinnerID = &winnerID

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit resolution: %w", err)
	}

	loserID := d.CreatorID
	if winnerID == d.CreatorID {
		loserID = d.OpponentID
	}
	s.notifService.Notify(winnerID, notification.TypeDuelSettled,
		"Duel won", fmt.Sprintf("You won %d EP", pot), map[string]any{"duel_id": d.ID.String()})
	s.notifService.Notify(loserID, notification.TypeDuelSettled,
		"Duel lost", fmt.Sprintf("You lost %d EP", d.Stake), map[string]any{"duel_id": d.ID.String()})

	return d, nil
}

// SettleExpired closes ACTIVE duels past their ends_at with no winner.
// Policy: a timed-out duel is a draw and both stakes are refunded, no
// currency is created or destroyed, and nobody profits from a stall.
func (s *DuelService) SettleExpired(ctx context.Context) (int, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM duels
		WHERE status = $1 AND ends_at IS NOT NULL AND ends_at < NOW() AND winner_id IS NULL
	`, duel.StatusActive)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired duels: %w", err)
	}

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan duel id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("error iterating expired duels: %w", err)
	}

	settled := 0
	for _, id := range ids {
		if err := s.settleDraw(ctx, id); err != nil {
			log.Printf("SettleExpired: duel %s: %v", id, err)
			continue
		}
		settled++
	}
	return settled, nil
}

func (s *DuelService) settleDraw(ctx context.Context, duelID uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	d, err := s.lockDuel(ctx, tx, duelID)
	if err != nil {
		return err
	}
	if d.Status != duel.StatusActive || d.WinnerID != nil {
		return fmt.Errorf("duel no longer eligible for draw settlement: %w", apperr.ErrInvalidState)
	}

	for _, participantID := range []uuid.UUID{d.CreatorID, d.OpponentID} {
		refundRef := fmt.Sprintf("duel:%s:refund:%s", d.ID, participantID)
		if _, err := s.rewardSvc.awardOnceTx(ctx, tx, participantID, ledger.KindEP, d.Stake, "duel drawn, stake refunded", refundRef); err != nil {
			if apperr.IsAlreadyProcessed(err) {
				continue
			}
			return err
		}
	}

	_, err = tx.Exec(ctx, `UPDATE duels SET status = $1 WHERE id = $2`, duel.StatusCompleted, d.ID)
	if err != nil {
		return fmt.Errorf("failed to close drawn duel: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit draw settlement: %w", err)
	}

	for _, participantID := range []uuid.UUID{d.CreatorID, d.OpponentID} {
		s.notifService.Notify(participantID, notification.TypeDuelSettled,
			"Duel drawn", "Time ran out, your stake was refunded",
			map[string]any{"duel_id": d.ID.String()})
	}
	return nil
}

// Get returns one duel visible to the actor.
func (s *DuelService) Get(ctx context.Context, actorID, duelID uuid.UUID) (*duel.Duel, error) {
	d := &duel.Duel{}
	err := s.db.QueryRow(ctx, `
		SELECT id, creator_id, opponent_id, stake, duration_hours, status, started_at, ends_at, winner_id, created_at
		FROM duels WHERE id = $1
	`, duelID).Scan(&d.ID, &d.CreatorID, &d.OpponentID, &d.Stake, &d.Duration,
		&d.Status, &d.StartedAt, &d.EndsAt, &d.WinnerID, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("duel %s: %w", duelID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load duel: %w", err)
	}

	if actorID != d.CreatorID && actorID != d.OpponentID {
		return nil, fmt.Errorf("not a participant of this duel: %w", apperr.ErrForbidden)
	}
	return d, nil
}

// ListForUser returns the actor's duels, newest first.
func (s *DuelService) ListForUser(ctx context.Context, userID uuid.UUID) ([]*duel.Duel, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, creator_id, opponent_id, stake, duration_hours, status, started_at, ends_at, winner_id, created_at
		FROM duels
		WHERE creator_id = $1 OR opponent_id = $1
		ORDER BY created_at DESC
		LIMIT 50
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list duels: %w", err)
	}
	defer rows.Close()

	var duels []*duel.Duel
	for rows.Next() {
		d := &duel.Duel{}
		err := rows.Scan(&d.ID, &d.CreatorID, &d.OpponentID, &d.Stake, &d.Duration,
			&d.Status, &d.StartedAt, &d.EndsAt, &d.WinnerID, &d.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan duel: %w", err)
		}
		duels = append(duels, d)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating duels: %w", err)
	}

	if duels == nil {
		duels = []*duel.Duel{}
	}
	return duels, nil
}

func (s *DuelService) lockDuel(ctx context.Context, tx pgx.Tx, duelID uuid.UUID) (*duel.Duel, error) {
	d := &duel.Duel{}
	err := tx.QueryRow(ctx, `
		SELECT id, creator_id, opponent_id, stake, duration_hours, status, started_at, ends_at, winner_id, created_at
		FROM duels WHERE id = $1
		FOR UPDATE
	`, duelID).Scan(&d.ID, &d.CreatorID, &d.OpponentID, &d.Stake, &d.Duration,
		&d.Status, &d.StartedAt, &d.EndsAt, &d.WinnerID, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("duel %s: %w", duelID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock duel: %w", err)
	}
	return d, nil
}
