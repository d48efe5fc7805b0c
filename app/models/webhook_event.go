package models

import "time"

// WebhookEvent stores processor callback payloads with deduplication
// metadata for idempotent processing.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Processor       string     `gorm:"type:varchar(20);not null;index:ux_webhook_events_processor_event,unique,priority:1" json:"processor"`
	EventID         string     `gorm:"type:varchar(191);not null;default:'';index:ux_webhook_events_processor_event,unique,priority:2" json:"event_id"`
	OrderNumber     string     `gorm:"type:varchar(150);index" json:"order_number"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
