package model

import "time"

// User is one end user of the bot, keyed by the platform-assigned id.
// Rows are created on first interaction and never deleted; usage counters
// feed the dashboard.
type User struct {
	ID         int64     `gorm:"primaryKey;autoIncrement:false"`
	Username   string    `gorm:"size:64"`
	Banned     bool      `gorm:"not null;default:false"`
	TotalFiles int64     `gorm:"not null;default:0"`
	TotalLinks int64     `gorm:"not null;default:0"`
	JoinedAt   time.Time `gorm:"autoCreateTime"`
}
