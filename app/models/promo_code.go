package models

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
)

// Promo eligibility failures carry distinct user-facing reasons.
var (
	ErrPromoNotFound      = errors.New("invalid promo code")
	ErrPromoExpired       = errors.New("this promo code has expired")
	ErrPromoExhausted     = errors.New("this promo code has reached its usage limit")
	ErrPromoNotApplicable = errors.New("this promo code is not applicable to the selected subscription duration")
)

// PromoCode is a discount token with a finite usage budget, an expiry and a
// set of eligible subscription tiers. RemainingUses never goes below zero;
// reservation and release are single atomic guarded updates in the store.
type PromoCode struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Code            string         `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Discount        float64        `gorm:"type:decimal(5,4);not null" json:"discount"` // fraction, e.g. 0.10
	RemainingUses   int            `gorm:"not null;default:0" json:"remaining_uses"`
	ExpiresAt       time.Time      `gorm:"type:timestamp;not null" json:"expires_at"`
	ApplicableTiers datatypes.JSON `gorm:"not null" json:"applicable_tiers"`
	CreatedAt       time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// Eligible checks expiry, usage budget and tier applicability at the given
// instant. It does not reserve anything.
func (p *PromoCode) Eligible(tier string, now time.Time) error {
	if now.After(p.ExpiresAt) {
		return ErrPromoExpired
	}
	if p.RemainingUses <= 0 {
		return ErrPromoExhausted
	}
	if !p.AppliesTo(tier) {
		return ErrPromoNotApplicable
	}
	return nil
}

// AppliesTo reports whether the code covers the given tier.
func (p *PromoCode) AppliesTo(tier string) bool {
	var tiers []string
	if err := json.Unmarshal(p.ApplicableTiers, &tiers); err != nil {
		return false
	}
	for _, t := range tiers {
		if t == tier {
			return true
		}
	}
	return false
}
