package repository

import (
	"context"
	"errors"

	"github.com/mraprguild/vaultlink/internal/app/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrUserNotFound signals that no user row exists for the given id.
var ErrUserNotFound = errors.New("user not found")

// UserRepository defines the data access contract for users.
type UserRepository interface {
	// Ensure creates the user row on first interaction; an existing row
	// only has its username refreshed.
	Ensure(ctx context.Context, user *model.User) error
	Get(ctx context.Context, id int64) (*model.User, error)
	SetBanned(ctx context.Context, id int64, banned bool) error
	IncrementFiles(ctx context.Context, id int64) error
	IncrementLinks(ctx context.Context, id int64) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a GORM-backed UserRepository.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Ensure(ctx context.Context, user *model.User) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"username"}),
		}).
		Create(user).Error
}

func (r *userRepository) Get(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) SetBanned(ctx context.Context, id int64, banned bool) error {
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		Update("banned", banned)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *userRepository) IncrementFiles(ctx context.Context, id int64) error {
	return r.incrementCounter(ctx, id, "total_files")
}

func (r *userRepository) IncrementLinks(ctx context.Context, id int64) error {
	return r.incrementCounter(ctx, id, "total_links")
}

func (r *userRepository) incrementCounter(ctx context.Context, id int64, column string) error {
	result := r.db.WithContext(ctx).
		Model(&model.User{}).
		Where("id = ?", id).
		UpdateColumn(column, gorm.Expr(column+" + 1"))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
