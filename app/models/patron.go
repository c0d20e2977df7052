package models

import "time"

// Patron is the confirmed subscription of a user within a guild.
// CustomerID correlates later subscription lifecycle events back to the row.
type Patron struct {
	UserID       string    `gorm:"primaryKey;type:varchar(32)" json:"user_id"`
	GuildID      string    `gorm:"primaryKey;type:varchar(32)" json:"guild_id"`
	CustomerID   string    `gorm:"type:varchar(191);not null;index" json:"customer_id"`
	Tier         string    `gorm:"type:varchar(50);not null" json:"tier"`
	SubscribedAt time.Time `gorm:"not null" json:"subscribed_at"`
}

func (Patron) TableName() string {
	return "patrons"
}
