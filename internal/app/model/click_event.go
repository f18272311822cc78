package model

import "time"

// ClickEvent is one recorded resolve of a short link, consumed
// asynchronously off the click stream. The authoritative click counter
// lives on ShortLink; events are audit data for the dashboard.
type ClickEvent struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	LinkCode  string    `gorm:"size:32;not null;index" json:"link_code"`
	IP        string    `gorm:"size:64" json:"ip"`
	UserAgent string    `gorm:"size:255" json:"user_agent"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
}

const (
	ClickStreamName     = "CLICKS"
	ClickStreamSubject  = "clicks.events"
	ClickConsumerName   = "click-logger"
	ClickStreamMaxBytes = 1024 * 1024 * 100 // 100MB
)
