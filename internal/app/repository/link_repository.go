package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mraprguild/vaultlink/internal/app/model"
	"gorm.io/gorm"
)

var (
	// ErrLinkNotFound signals that the requested short link does not exist.
	ErrLinkNotFound = errors.New("link not found")
	// ErrCodeTaken signals a unique-constraint conflict on the short code.
	ErrCodeTaken = errors.New("short code already taken")
)

const pgUniqueViolation = "23505"

// LinkRepository defines the data access contract for short links. The
// unique constraint on the code column is the sole serialization point for
// code assignment; Create never pre-checks.
type LinkRepository interface {
	Create(ctx context.Context, link *model.ShortLink) error
	GetByCode(ctx context.Context, code string) (*model.ShortLink, error)
	// ResolveAndCount increments the click counter and returns the target
	// URL in one atomic round trip.
	ResolveAndCount(ctx context.Context, code string) (string, error)
	// IncrementClicks bumps the counter without returning the row; used
	// when the target URL is already known from the cache.
	IncrementClicks(ctx context.Context, code string) error
	AllCodes(ctx context.Context) ([]string, error)
	OwnerTotals(ctx context.Context, ownerID int64) (links int64, clicks int64, err error)
	List(ctx context.Context, limit, offset int) ([]model.ShortLink, error)
}

type linkRepository struct {
	db *gorm.DB
}

// NewLinkRepository returns a GORM-backed LinkRepository.
func NewLinkRepository(db *gorm.DB) LinkRepository {
	return &linkRepository{db: db}
}

func (r *linkRepository) Create(ctx context.Context, link *model.ShortLink) error {
	if err := r.db.WithContext(ctx).Create(link).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrCodeTaken
		}
		return err
	}
	return nil
}

func (r *linkRepository) GetByCode(ctx context.Context, code string) (*model.ShortLink, error) {
	var link model.ShortLink
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLinkNotFound
		}
		return nil, err
	}
	return &link, nil
}

func (r *linkRepository) ResolveAndCount(ctx context.Context, code string) (string, error) {
	var url string
	result := r.db.WithContext(ctx).Raw(
		`UPDATE short_links SET click_count = click_count + 1 WHERE code = ? RETURNING url`,
		code,
	).Scan(&url)

	if result.Error != nil {
		return "", result.Error
	}
	if result.RowsAffected == 0 {
		return "", ErrLinkNotFound
	}
	return url, nil
}

func (r *linkRepository) IncrementClicks(ctx context.Context, code string) error {
	result := r.db.WithContext(ctx).
		Model(&model.ShortLink{}).
		Where("code = ?", code).
		UpdateColumn("click_count", gorm.Expr("click_count + 1"))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrLinkNotFound
	}
	return nil
}

func (r *linkRepository) AllCodes(ctx context.Context) ([]string, error) {
	var codes []string
	if err := r.db.WithContext(ctx).
		Model(&model.ShortLink{}).
		Pluck("code", &codes).Error; err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *linkRepository) OwnerTotals(ctx context.Context, ownerID int64) (int64, int64, error) {
	var totals struct {
		Links  int64
		Clicks int64
	}
	err := r.db.WithContext(ctx).
		Model(&model.ShortLink{}).
		Select("COUNT(*) AS links, COALESCE(SUM(click_count), 0) AS clicks").
		Where("owner_id = ?", ownerID).
		Scan(&totals).Error
	if err != nil {
		return 0, 0, err
	}
	return totals.Links, totals.Clicks, nil
}

func (r *linkRepository) List(ctx context.Context, limit, offset int) ([]model.ShortLink, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var result []model.ShortLink
	if err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&result).Error; err != nil {
		return nil, err
	}

	return result, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
