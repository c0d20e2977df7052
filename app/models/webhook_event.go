package models

import "time"

// WebhookEvent records each verified processor event once. Outcome holds the
// reconciliation result written in the same transaction as the ledger change.
type WebhookEvent struct {
	EventID     string     `gorm:"primaryKey;type:varchar(191)" json:"event_id"`
	EventType   string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	Outcome     string     `gorm:"type:varchar(32);not null;default:''" json:"outcome"`
	ProcessedAt *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_events"
}
