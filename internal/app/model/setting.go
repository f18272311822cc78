package model

import "time"

// Recognized setting keys. Values stored under these keys override the
// static configuration at call time.
const (
	SettingMaxFileSize  = "max_file_size_bytes"
	SettingChunkSize    = "chunk_size_bytes"
	SettingCodeLength   = "short_code_length"
	SettingCustomDomain = "custom_domain"
)

// Setting is one process-wide key/value configuration entry, mutated only
// by admin operations.
type Setting struct {
	Key       string    `gorm:"primaryKey;size:64"`
	Value     string    `gorm:"type:text;not null"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}
