package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"campusQuestAPI/internal/apperr"
	"campusQuestAPI/internal/cache"
	"campusQuestAPI/internal/leaderboard"
	"campusQuestAPI/internal/ledger"
	"campusQuestAPI/internal/rank"
	"campusQuestAPI/internal/user"
	"campusQuestAPI/utils"
)

// UserService serves profile and leaderboard reads. Ranks are computed from
// the ledger on every read; only the leaderboard page itself sits behind a
// short TTL cache because it scans every user.
type UserService struct {
	db        *pgxpool.Pool
	ledgerSvc *LedgerService
	boards    *cache.Cache[*leaderboard.Leaderboard]
}

func NewUserService(db *pgxpool.Pool, ledgerSvc *LedgerService) *UserService {
	return &UserService{
		db:        db,
		ledgerSvc: ledgerSvc,
		boards:    cache.New[*leaderboard.Leaderboard](16, time.Minute),
	}
}

// Get returns one user row.
func (s *UserService) Get(ctx context.Context, userID uuid.UUID) (*user.User, error) {
	u := &user.User{}
	err := s.db.QueryRow(ctx, `
		SELECT id, email, username, first_name, last_name, image_url, role, created_at, updated_at
		FROM users WHERE id = $1
	`, userID).Scan(&u.ID, &u.Email, &u.Username, &u.FirstName, &u.LastName,
		&u.ImageURL, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", userID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

// GetProfile assembles the authenticated user's dashboard: both balances,
// the derived school rank with the distance to the next one, and the streak.
func (s *UserService) GetProfile(ctx context.Context, userID uuid.UUID) (*user.Profile, error) {
	u, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	epBalance, err := s.ledgerSvc.Balance(ctx, s.db, userID, ledger.KindEP)
	if err != nil {
		return nil, err
	}
	xpBalance, err := s.ledgerSvc.Balance(ctx, s.db, userID, ledger.KindXP)
	if err != nil {
		return nil, err
	}

	profile := &user.Profile{
		User:       u,
		EPBalance:  epBalance,
		XPBalance:  xpBalance,
		SchoolRank: rank.For(ledger.KindEP, epBalance).Name,
	}

	if next, ok := rank.Next(ledger.KindEP, epBalance); ok {
		profile.NextRank = next.Name
		profile.NextRankDelta = next.Delta
	}

	err = s.db.QueryRow(ctx,
		`SELECT current_streak FROM streaks WHERE user_id = $1`, userID).Scan(&profile.CurrentStreak)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to load streak: %w", err)
	}

	var lifetimeEP, questsCompleted int
	err = s.db.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_entries
		WHERE user_id = $1 AND kind = $2 AND amount > 0
	`, userID, ledger.KindEP).Scan(&lifetimeEP)
	if err != nil {
		return nil, fmt.Errorf("failed to sum lifetime EP: %w", err)
	}
	err = s.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM assigned_quests WHERE user_id = $1 AND completed = true
	`, userID).Scan(&questsCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to count completed quests: %w", err)
	}
	profile.EngagementScore = utils.EngagementScore(profile.CurrentStreak, lifetimeEP, questsCompleted)

	return profile, nil
}

// SchoolLeaderboard ranks everyone by EP balance. The page is cached for a
// minute; the caller's own position is always computed fresh so their row
// never shows a stale balance next to a live profile.
func (s *UserService) SchoolLeaderboard(ctx context.Context, userID uuid.UUID, limit int) (*leaderboard.Leaderboard, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	cacheKey := fmt.Sprintf("school:%d", limit)
	board, ok := s.boards.Get(cacheKey)
	if !ok {
		fresh, err := s.buildSchoolBoard(ctx, limit)
		if err != nil {
			return nil, err
		}
		s.boards.Set(cacheKey, fresh)
		board = fresh
	}

	position, err := s.schoolPosition(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &leaderboard.Leaderboard{
		Entries:      board.Entries,
		UserPosition: position,
		TotalUsers:   board.TotalUsers,
	}, nil
}

func (s *UserService) buildSchoolBoard(ctx context.Context, limit int) (*leaderboard.Leaderboard, error) {
	query := `
	SELECT u.id, u.username, u.image_url,
	       COALESCE(SUM(l.amount), 0) AS balance,
	       COALESCE(st.current_streak, 0)
	FROM users u
	LEFT JOIN ledger_entries l ON l.user_id = u.id AND l.kind = $1
	LEFT JOIN streaks st ON st.user_id = u.id
	GROUP BY u.id, u.username, u.image_url, st.current_streak
	ORDER BY balance DESC, u.username ASC
	LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, ledger.KindEP, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []*leaderboard.LeaderboardEntry
	position := 0
	for rows.Next() {
		position++
		e := &leaderboard.LeaderboardEntry{Rank: position}
		err := rows.Scan(&e.UserID, &e.Username, &e.ImageURL, &e.Balance, &e.CurrentStreak)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		e.TierName = rank.For(ledger.KindEP, e.Balance).Name
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}

	if entries == nil {
		entries = []*leaderboard.LeaderboardEntry{}
	}

	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}

	return &leaderboard.Leaderboard{Entries: entries, TotalUsers: total}, nil
}

func (s *UserService) schoolPosition(ctx context.Context, userID uuid.UUID) (*leaderboard.LeaderboardEntry, error) {
	query := `
	WITH ranked AS (
		SELECT u.id, u.username, u.image_url,
		       COALESCE(SUM(l.amount), 0) AS balance,
		       COALESCE(st.current_streak, 0) AS current_streak,
		       RANK() OVER (ORDER BY COALESCE(SUM(l.amount), 0) DESC) AS position
		FROM users u
		LEFT JOIN ledger_entries l ON l.user_id = u.id AND l.kind = $1
		LEFT JOIN streaks st ON st.user_id = u.id
		GROUP BY u.id, u.username, u.image_url, st.current_streak
	)
	SELECT id, username, image_url, balance, current_streak, position
	FROM ranked WHERE id = $2
	`

	e := &leaderboard.LeaderboardEntry{}
	err := s.db.QueryRow(ctx, query, ledger.KindEP, userID).Scan(
		&e.UserID, &e.Username, &e.ImageURL, &e.Balance, &e.CurrentStreak, &e.Rank)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to compute user position: %w", err)
	}
	e.TierName = rank.For(ledger.KindEP, e.Balance).Name
	return e, nil
}

// ParliamentLeaderboard ranks active members by XP. It reads the denormalized
// xp_rank cache on the membership rows, which is refreshed on every XP award.
func (s *UserService) ParliamentLeaderboard(ctx context.Context, limit int) (*leaderboard.Leaderboard, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}

	cacheKey := fmt.Sprintf("parliament:%d", limit)
	if board, ok := s.boards.Get(cacheKey); ok {
		return board, nil
	}

	query := `
	SELECT u.id, u.username, u.image_url,
	       COALESCE(SUM(l.amount), 0) AS balance,
	       pm.xp_rank
	FROM parliament_memberships pm
	JOIN users u ON u.id = pm.user_id
	LEFT JOIN ledger_entries l ON l.user_id = u.id AND l.kind = $1
	WHERE pm.is_active = true
	GROUP BY u.id, u.username, u.image_url, pm.xp_rank
	ORDER BY balance DESC, u.username ASC
	LIMIT $2
	`

	rows, err := s.db.Query(ctx, query, ledger.KindXP, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to build parliament leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []*leaderboard.LeaderboardEntry
	position := 0
	for rows.Next() {
		position++
		e := &leaderboard.LeaderboardEntry{Rank: position}
		err := rows.Scan(&e.UserID, &e.Username, &e.ImageURL, &e.Balance, &e.TierName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan parliament entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating parliament leaderboard: %w", err)
	}

	if entries == nil {
		entries = []*leaderboard.LeaderboardEntry{}
	}

	var total int
	err = s.db.QueryRow(ctx, `SELECT COUNT(*) FROM parliament_memberships WHERE is_active = true`).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("failed to count members: %w", err)
	}

	board := &leaderboard.Leaderboard{Entries: entries, TotalUsers: total}
	s.boards.Set(cacheKey, board)
	return board, nil
}

// RankTable exposes the fixed tier tables for the client.
func (s *UserService) RankTable(kind ledger.Kind) []rank.Tier {
	return rank.Tiers(kind)
}
