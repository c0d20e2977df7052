package models

import "time"

// PendingCorrelation links a checkout request to the completion event the
// processor delivers later. Rows are never mutated except for ConsumedAt.
type PendingCorrelation struct {
	Token      string     `gorm:"primaryKey;type:varchar(64)" json:"token"`
	UserID     string     `gorm:"type:varchar(32);not null;index" json:"user_id"`
	GuildID    string     `gorm:"type:varchar(32);not null" json:"guild_id"`
	PriceID    string     `gorm:"type:varchar(191);not null" json:"price_id"`
	ConsumedAt *time.Time `gorm:"type:timestamp;default:null" json:"consumed_at,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
}

func (PendingCorrelation) TableName() string {
	return "pending_correlations"
}
