package model

import "time"

// File categories derived from the declared filename extension.
const (
	CategoryImage    = "image"
	CategoryVideo    = "video"
	CategoryAudio    = "audio"
	CategoryDocument = "document"
	CategoryArchive  = "archive"
	CategoryFile     = "file"
)

// FileObject is the record of one uploaded file. The row exists from the
// moment an upload begins so that a crash leaves an inspectable incomplete
// object; Complete flips to true only when the stored chunks add up to
// exactly DeclaredSize, after which the object is read-only.
type FileObject struct {
	ID           string    `gorm:"primaryKey;size:36"`
	OwnerID      int64     `gorm:"not null;index"`
	Name         string    `gorm:"size:255;not null"`
	Category     string    `gorm:"size:16;not null;default:file"`
	DeclaredSize int64     `gorm:"not null"`
	Complete     bool      `gorm:"not null;default:false;index"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`

	Chunks []FileChunk `gorm:"foreignKey:FileID;references:ID"`
}

// StoredBytes is the running total of chunk bytes persisted so far.
func (f *FileObject) StoredBytes() int64 {
	var total int64
	for _, c := range f.Chunks {
		total += c.Length
	}
	return total
}

// FileChunk records one durable message holding a byte range of a file.
// (file_id, chunk_index) is unique so a retried append replaces the row
// instead of duplicating it.
type FileChunk struct {
	ID         uint64    `gorm:"primaryKey"`
	FileID     string    `gorm:"size:36;not null;uniqueIndex:idx_file_chunk"`
	ChunkIndex int       `gorm:"not null;uniqueIndex:idx_file_chunk"`
	Offset     int64     `gorm:"not null"`
	Length     int64     `gorm:"not null"`
	Stream     string    `gorm:"size:64;not null"`
	Sequence   uint64    `gorm:"not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

// TableName returns the database table name.
func (FileChunk) TableName() string {
	return "file_chunks"
}
