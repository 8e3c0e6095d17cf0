package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusQuestAPI/internal/ledger"
)

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so ledger operations
// compose into the callers' transactions. Every check-then-write path in the
// engine runs its balance check and its debit through one pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type LedgerService struct {
	db *pgxpool.Pool
}

func NewLedgerService(db *pgxpool.Pool) *LedgerService {
	return &LedgerService{db: db}
}

// Credit appends one immutable entry. Negative amounts are stakes and
// purchases; the ledger never enforces a non-negative balance, callers
// pre-check inside the same transaction (see LockBalance).
func (s *LedgerService) Credit(ctx context.Context, q Querier, userID uuid.UUID, kind ledger.Kind, amount int, reason string, sourceRef *string) (*ledger.Entry, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown currency kind %q", kind)
	}

	entry := &ledger.Entry{
		ID:        uuid.New(),
		UserID:    userID,
		Kind:      kind,
		Amount:    amount,
		Reason:    reason,
		SourceRef: sourceRef,
		CreatedAt: time.Now().UTC(),
	}

	query := `
	INSERT INTO ledger_entries (id, user_id, kind, amount, reason, source_ref, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := q.Exec(ctx, query,
		entry.ID,
		entry.UserID,
		entry.Kind,
		entry.Amount,
		entry.Reason,
		entry.SourceRef,
		entry.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}

	return entry, nil
}

// Balance is always the literal sum over the user's entries of that kind.
// No materialized aggregate that can drift.
func (s *LedgerService) Balance(ctx context.Context, q Querier, userID uuid.UUID, kind ledger.Kind) (int, error) {
	var balance int
	query := `
	SELECT COALESCE(SUM(amount), 0)
	FROM ledger_entries
	WHERE user_id = $1 AND kind = $2
	`
	if err := q.QueryRow(ctx, query, userID, kind).Scan(&balance); err != nil {
		return 0, fmt.Errorf("failed to sum ledger: %w", err)
	}
	return balance, nil
}

// LockBalance serializes concurrent balance-check-then-debit sequences for
// one (user, kind) pair via a transaction-scoped advisory lock. Two duels, or
// a duel and a shop purchase, debiting the same balance cannot both pass a
// stale insufficient-funds check.
func (s *LedgerService) LockBalance(ctx context.Context, tx pgx.Tx, userID uuid.UUID, kind ledger.Kind) error {
	_, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		fmt.Sprintf("ledger:%s:%s", userID, kind))
	if err != nil {
		return fmt.Errorf("failed to lock balance: %w", err)
	}
	return nil
}

// HasSourceRef reports whether a positive entry for (user, kind, sourceRef)
// already exists. Backed by the partial unique index on the same columns.
func (s *LedgerService) HasSourceRef(ctx context.Context, q Querier, userID uuid.UUID, kind ledger.Kind, sourceRef string) (bool, error) {
	var exists bool
	query := `
	SELECT EXISTS(
		SELECT 1 FROM ledger_entries
		WHERE user_id = $1 AND kind = $2 AND source_ref = $3
	)
	`
	if err := q.QueryRow(ctx, query, userID, kind, sourceRef).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check source ref: %w", err)
	}
	return exists, nil
}

// History returns the newest entries first.
func (s *LedgerService) History(ctx context.Context, userID uuid.UUID, kind ledger.Kind, limit int) ([]*ledger.Entry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	query := `
	SELECT id, user_id, kind, amount, reason, source_ref, created_at
	FROM ledger_entries
	WHERE user_id = $1 AND kind = $2
	ORDER BY created_at DESC
	LIMIT $3
	`

	rows, err := s.db.Query(ctx, query, userID, kind, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch ledger history: %w", err)
	}
	defer rows.Close()

	var entries []*ledger.Entry
	for rows.Next() {
		e := &ledger.Entry{}
		err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &e.Amount, &e.Reason, &e.SourceRef, &e.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}

	if entries == nil {
		entries = []*ledger.Entry{}
	}
	return entries, nil
}

// Pool exposes the underlying pool for services that only need reads.
func (s *LedgerService) Pool() *pgxpool.Pool {
	return s.db
}
