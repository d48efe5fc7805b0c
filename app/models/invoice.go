package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Normalized invoice statuses. ProcessorStatus keeps the raw token the
// processor reported; Status is what the reconciliation logic branches on.
const (
	InvoiceStatusPending   = "pending"
	InvoiceStatusPaid      = "paid"
	InvoiceStatusExpired   = "expired"
	InvoiceStatusCancelled = "cancelled"
	InvoiceStatusFailed    = "failed"
	InvoiceStatusOther     = "other"
)

// Invoice tracks a single charge request against a payment processor.
// OrderNumber is caller-generated (`<username>-<unix ms>`), unique and
// immutable; TxnID stays empty until the processor responds.
type Invoice struct {
	ID               uint            `gorm:"primaryKey" json:"id"`
	OrderNumber      string          `gorm:"type:varchar(150);uniqueIndex;not null" json:"order_number"`
	TxnID            string          `gorm:"type:varchar(100);default:null;index" json:"txn_id,omitempty"`
	Processor        string          `gorm:"type:varchar(20);not null" json:"processor"`
	StakeUsername    string          `gorm:"type:varchar(100);not null;index" json:"stake_username"`
	SubscriptionType string          `gorm:"type:varchar(20);not null" json:"subscription_type"`
	Amount           decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Currency         string          `gorm:"type:varchar(10);not null" json:"currency"`
	Status           string          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ProcessorStatus  string          `gorm:"type:varchar(50);default:null" json:"processor_status,omitempty"`
	PromoCode        string          `gorm:"type:varchar(50);default:null" json:"promo_code,omitempty"`
	ReferredBy       string          `gorm:"type:varchar(100);default:null" json:"referred_by,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TerminalInvoiceStatuses are never overwritten by a later callback, except
// by an idempotent redelivery of the same value.
func TerminalInvoiceStatuses() []string {
	return []string{InvoiceStatusPaid, InvoiceStatusExpired, InvoiceStatusCancelled, InvoiceStatusFailed}
}

func IsTerminalInvoiceStatus(status string) bool {
	switch status {
	case InvoiceStatusPaid, InvoiceStatusExpired, InvoiceStatusCancelled, InvoiceStatusFailed:
		return true
	default:
		return false
	}
}
