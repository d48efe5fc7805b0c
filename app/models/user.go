package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// User is a subscriber entitlement record. StakeUsername is the identity key
// and is matched case-insensitively everywhere; the column keeps the casing
// the user first signed up with.
type User struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	StakeUsername     string    `gorm:"type:varchar(100);uniqueIndex" json:"stake_username" validate:"required,min=2,max=100"`
	SubscriptionType  string    `gorm:"type:varchar(20);not null" json:"subscription_type"`
	SubscriptionStart time.Time `gorm:"type:timestamp;not null" json:"subscription_start"`
	SubscriptionEnd   time.Time `gorm:"type:timestamp;not null;index" json:"subscription_end"`
	ReferredBy        string    `gorm:"type:varchar(100);default:null;index" json:"referred_by,omitempty"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (u *User) Validate() error {
	v := validator.New()
	return v.Struct(u)
}

// HasActiveSubscription reports whether the entitlement window covers now.
func (u *User) HasActiveSubscription(now time.Time) bool {
	return !now.After(u.SubscriptionEnd)
}
