package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PerfumeStatus is the availability of a catalog entry
type PerfumeStatus string

const (
	PerfumeAvailable   PerfumeStatus = "available"
	PerfumeUnavailable PerfumeStatus = "unavailable"
)

// Valid reports whether the status is one of the known values
func (s PerfumeStatus) Valid() bool {
	return s == PerfumeAvailable || s == PerfumeUnavailable
}

// Perfume represents a product in the catalog
type Perfume struct {
	ID             uuid.UUID        `json:"id" db:"id"`
	Name           string           `json:"name" db:"name"`
	Brand          string           `json:"brand" db:"brand"`
	Price          decimal.Decimal  `json:"price" db:"price"`
	PromotionPrice *decimal.Decimal `json:"promotion_price" db:"promotion_price"`
	ImageBase64    string           `json:"image_base64" db:"image_base64"`
	Status         PerfumeStatus    `json:"status" db:"status"`
	Description    *string          `json:"description" db:"description"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at" db:"updated_at"`
}

// EffectivePrice is the promotion price when one is set, the base price otherwise
func (p *Perfume) EffectivePrice() decimal.Decimal {
	if p.PromotionPrice != nil {
		return *p.PromotionPrice
	}
	return p.Price
}

// HasPromotion reports whether a promotion price is set
func (p *Perfume) HasPromotion() bool {
	return p.PromotionPrice != nil
}

// IsAvailable reports whether the perfume can be added to a cart
func (p *Perfume) IsAvailable() bool {
	return p.Status == PerfumeAvailable
}
