package models

import "time"

type PromoCode struct {
	ID        string
	Code      string
	Credits   int64
	MaxUses   int
	UsedCount int
	ExpiresAt *time.Time
	Active    bool
	CreatedAt time.Time
}

// Redemption proves a user redeemed a promo code. The (user_id, promo_id)
// pair is unique in the database; that constraint, not application code, is
// what makes redemption idempotent.
type Redemption struct {
	ID        string
	UserID    string
	PromoID   string
	Credits   int64
	CreatedAt time.Time
}
