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
	"campusQuestAPI/internal/ledger"
	"campusQuestAPI/internal/store"
)

// streakFreezeShelfLife bounds how long a bought freeze stays usable.
const streakFreezeShelfLife = 30 * 24 * time.Hour

// StoreService sells cosmetics and the streak-freeze consumable for EP.
// Purchases debit the ledger, never a mutable balance column.
type StoreService struct {
	db        *pgxpool.Pool
	ledgerSvc *LedgerService
	catalog   *cache.Cache[map[string][]*store.Item]
}

func NewStoreService(db *pgxpool.Pool, ledgerSvc *LedgerService) *StoreService {
	return &StoreService{
		db:        db,
		ledgerSvc: ledgerSvc,
		catalog:   cache.New[map[string][]*store.Item](4, 5*time.Minute),
	}
}

// GetStore returns the active catalog grouped by item type. The catalog
// changes rarely, so it is served from a short TTL cache.
func (s *StoreService) GetStore(ctx context.Context) (map[string][]*store.Item, error) {
	if cached, ok := s.catalog.Get("catalog"); ok {
		return cached, nil
	}

	query := `
	SELECT id, name, description, item_type, image_url, price_ep, is_active, created_at
	FROM store_items
	WHERE is_active = true
	ORDER BY item_type, price_ep
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch catalog: %w", err)
	}
	defer rows.Close()

	items := make(map[string][]*store.Item)
	for rows.Next() {
		item := &store.Item{}
		err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.ItemType,
			&item.ImageURL, &item.PriceEP, &item.IsActive, &item.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan store item: %w", err)
		}
		items[item.ItemType] = append(items[item.ItemType], item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating store items: %w", err)
	}

	s.catalog.Set("catalog", items)
	return items, nil
}

// Purchase buys one unit of an item. The balance check and the debit run
// under the EP balance lock in one transaction, so a purchase racing a duel
// stake cannot drive the balance negative.
func (s *StoreService) Purchase(ctx context.Context, userID uuid.UUID, itemID uuid.UUID) (*store.Purchase, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	item := &store.Item{}
	err = tx.QueryRow(ctx, `
		SELECT id, name, item_type, price_ep, is_active
		FROM store_items WHERE id = $1
	`, itemID).Scan(&item.ID, &item.Name, &item.ItemType, &item.PriceEP, &item.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("store item %s: %w", itemID, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load store item: %w", err)
	}

	if !item.IsActive {
		return nil, fmt.Errorf("item %s is not for sale: %w", item.Name, apperr.ErrInvalidState)
	}

	if err := s.ledgerSvc.LockBalance(ctx, tx, userID, ledger.KindEP); err != nil {
		return nil, err
	}
	balance, err := s.ledgerSvc.Balance(ctx, tx, userID, ledger.KindEP)
	if err != nil {
		return nil, err
	}
	if balance < item.PriceEP {
		return nil, fmt.Errorf("balance %d below price %d: %w", balance, item.PriceEP, apperr.ErrInsufficientFunds)
	}

	purchase := &store.Purchase{
		ID:          uuid.New(),
		UserID:      userID,
		ItemID:      item.ID,
		AmountPaid:  item.PriceEP,
		Status:      "completed",
		PurchasedAt: time.Now().UTC(),
	}

	debitRef := fmt.Sprintf("purchase:%s", purchase.ID)
	_, err = s.ledgerSvc.Credit(ctx, tx, userID, ledger.KindEP, -item.PriceEP,
		fmt.Sprintf("shop purchase: %s", item.Name), &debitRef)
	if err != nil {
		return nil, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_purchases (id, user_id, item_id, amount_paid, status, purchased_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, purchase.ID, purchase.UserID, purchase.ItemID, purchase.AmountPaid, purchase.Status, purchase.PurchasedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record purchase: %w", err)
	}

	// Consumables carry an expiry; cosmetics do not.
	var expiresAt *time.Time
	if item.ItemType == store.ItemTypeStreakFreeze {
		exp := purchase.PurchasedAt.Add(streakFreezeShelfLife)
		expiresAt = &exp
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO user_inventory (id, user_id, item_id, item_type, quantity, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4, 1, $5, $6)
		ON CONFLICT (user_id, item_id) DO UPDATE
		SET quantity = user_inventory.quantity + 1,
		    expires_at = COALESCE(EXCLUDED.expires_at, user_inventory.expires_at)
	`, uuid.New(), userID, item.ID, item.ItemType, purchase.PurchasedAt, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("failed to add item to inventory: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit purchase: %w", err)
	}
	return purchase, nil
}

// GetInventory returns the user's owned items.
func (s *StoreService) GetInventory(ctx context.Context, userID uuid.UUID) ([]*store.InventoryItem, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, user_id, item_id, item_type, quantity, acquired_at, expires_at
		FROM user_inventory
		WHERE user_id = $1 AND quantity > 0
		ORDER BY acquired_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch inventory: %w", err)
	}
	defer rows.Close()

	var inventory []*store.InventoryItem
	for rows.Next() {
		item := &store.InventoryItem{}
		err := rows.Scan(&item.ID, &item.UserID, &item.ItemID, &item.ItemType,
			&item.Quantity, &item.AcquiredAt, &item.ExpiresAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan inventory item: %w", err)
		}
		inventory = append(inventory, item)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating inventory: %w", err)
	}

	if inventory == nil {
		inventory = []*store.InventoryItem{}
	}
	return inventory, nil
}
