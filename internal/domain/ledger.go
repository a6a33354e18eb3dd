package domain

import (
	"time"

	"github.com/google/uuid"
)

// Favorite marks a perfume as favorited by a user
type Favorite struct {
	ID        uuid.UUID `json:"id" db:"id"`
	PerfumeID uuid.UUID `json:"perfume_id" db:"perfume_id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Perfume   *Perfume  `json:"perfume,omitempty"`
}

// CartItem is a (perfume, quantity) line in a user's cart.
// Perfume is nil when the joined row could not be loaded.
type CartItem struct {
	ID        uuid.UUID `json:"id" db:"id"`
	PerfumeID uuid.UUID `json:"perfume_id" db:"perfume_id"`
	UserID    uuid.UUID `json:"user_id" db:"user_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	Perfume   *Perfume  `json:"perfume,omitempty"`
}
