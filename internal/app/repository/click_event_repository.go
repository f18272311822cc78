package repository

import (
	"context"

	"github.com/mraprguild/vaultlink/internal/app/model"
	"gorm.io/gorm"
)

// ClickEventRepository defines the data access contract for click audit
// events.
type ClickEventRepository interface {
	Create(ctx context.Context, event *model.ClickEvent) error
	RecentByCode(ctx context.Context, code string, limit int) ([]model.ClickEvent, error)
}

type clickEventRepository struct {
	db *gorm.DB
}

// NewClickEventRepository returns a GORM-backed ClickEventRepository.
func NewClickEventRepository(db *gorm.DB) ClickEventRepository {
	return &clickEventRepository{db: db}
}

func (r *clickEventRepository) Create(ctx context.Context, event *model.ClickEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *clickEventRepository) RecentByCode(ctx context.Context, code string, limit int) ([]model.ClickEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	var events []model.ClickEvent
	err := r.db.WithContext(ctx).
		Where("link_code = ?", code).
		Order("timestamp DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
