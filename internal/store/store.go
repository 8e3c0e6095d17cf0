package store

import (
	"time"

	"github.com/google/uuid"
)

// Item types the shop sells. Cosmetics are display-only; streak_freeze is the
// one consumable the engine cares about.
const (
	ItemTypeCosmetic     = "cosmetic"
	ItemTypeTheme        = "theme"
	ItemTypeStreakFreeze = "streak_freeze"
)

type Item struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	ItemType    string    `json:"item_type" db:"item_type"`
	ImageURL    string    `json:"image_url" db:"image_url"`
	PriceEP     int       `json:"price_ep" db:"price_ep"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

type Purchase struct {
	ID          uuid.UUID `json:"id" db:"id"`
	UserID      uuid.UUID `json:"user_id" db:"user_id"`
	ItemID      uuid.UUID `json:"item_id" db:"item_id"`
	AmountPaid  int       `json:"amount_paid" db:"amount_paid"`
	Status      string    `json:"status" db:"status"`
	PurchasedAt time.Time `json:"purchased_at" db:"purchased_at"`
}

type InventoryItem struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	ItemID     uuid.UUID  `json:"item_id" db:"item_id"`
	ItemType   string     `json:"item_type" db:"item_type"`
	Quantity   int        `json:"quantity" db:"quantity"`
	AcquiredAt time.Time  `json:"acquired_at" db:"acquired_at"`
	ExpiresAt  *time.Time `json:"expires_at" db:"expires_at"`
}

type PurchaseRequest struct {
	ItemID string `json:"item_id" validate:"required,uuid"`
}
