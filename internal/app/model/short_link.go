package model

import "time"

// ShortLink maps a unique short code to its target URL. The code is
// immutable once assigned; ClickCount only ever goes up, and only through
// the atomic increment in the link repository.
type ShortLink struct {
	Code       string    `gorm:"primaryKey;size:32"`
	URL        string    `gorm:"type:text;not null"`
	OwnerID    int64     `gorm:"not null;index"`
	ClickCount int64     `gorm:"not null;default:0"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}
