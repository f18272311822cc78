package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mraprguild/vaultlink/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrFileNotFound signals that no file object exists for the given id.
var ErrFileNotFound = errors.New("file not found")

// FileRepository defines the data access contract for file objects and
// their chunk rows.
type FileRepository interface {
	Create(ctx context.Context, file *model.FileObject) error
	// Get loads the file with its chunks ordered by chunk index.
	Get(ctx context.Context, id string) (*model.FileObject, error)
	// UpsertChunk inserts a chunk row or replaces the one already stored
	// at the same (file_id, chunk_index).
	UpsertChunk(ctx context.Context, chunk *model.FileChunk) error
	MarkComplete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerID int64, limit int) ([]model.FileObject, error)
	// DeleteStaleIncomplete removes abandoned uploads older than the cutoff
	// and returns how many were swept.
	DeleteStaleIncomplete(ctx context.Context, before time.Time) (int64, error)
}

type fileRepository struct {
	db *gorm.DB
}

// NewFileRepository returns a GORM-backed FileRepository.
func NewFileRepository(db *gorm.DB) FileRepository {
	return &fileRepository{db: db}
}

func (r *fileRepository) Create(ctx context.Context, file *model.FileObject) error {
	return r.db.WithContext(ctx).Create(file).Error
}

func (r *fileRepository) Get(ctx context.Context, id string) (*model.FileObject, error) {
	var file model.FileObject
	err := r.db.WithContext(ctx).
		Preload("Chunks", func(db *gorm.DB) *gorm.DB {
			return db.Order("chunk_index ASC")
		}).
		First(&file, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		return nil, err
	}
	return &file, nil
}

func (r *fileRepository) UpsertChunk(ctx context.Context, chunk *model.FileChunk) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "file_id"}, {Name: "chunk_index"}},
			DoUpdates: clause.AssignmentColumns([]string{"offset", "length", "stream", "sequence", "updated_at"}),
		}).
		Create(chunk).Error
}

func (r *fileRepository) MarkComplete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&model.FileObject{}).
		Where("id = ? AND complete = false", id).
		Update("complete", true)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrFileNotFound
	}
	return nil
}

func (r *fileRepository) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]model.FileObject, error) {
	if limit <= 0 {
		limit = 10
	}

	var files []model.FileObject
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND complete = true", ownerID).
		Order("created_at DESC").
		Limit(limit).
		Find(&files).Error
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (r *fileRepository) DeleteStaleIncomplete(ctx context.Context, before time.Time) (int64, error) {
	var swept int64

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []string
		if err := tx.Model(&model.FileObject{}).
			Where("complete = false AND updated_at < ?", before).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		if err := tx.Where("file_id IN ?", ids).Delete(&model.FileChunk{}).Error; err != nil {
			return err
		}

		result := tx.Where("id IN ?", ids).Delete(&model.FileObject{})
		if result.Error != nil {
			return result.Error
		}
		swept = result.RowsAffected
		return nil
	})

	return swept, err
}
