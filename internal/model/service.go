package model

import "time"

// Service is a freelancer's listing. Its price range bounds every
// negotiation opened against it.
type Service struct {
	ID            uint64    `json:"id"`
	ProviderID    uint64    `json:"provider_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	MinPriceCents int64     `json:"min_price_cents"`
	MaxPriceCents int64     `json:"max_price_cents"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
