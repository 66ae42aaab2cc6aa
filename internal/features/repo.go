package features

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/featuretrack-backend/pkg/db"
	"github.com/angelmondragon/featuretrack-backend/pkg/db/models"
)

var (
	ErrFeatureNotFound = errors.New("feature not found")
	ErrCodeTaken       = errors.New("feature code already exists")
)

// Repository persists feature aggregates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, feature *models.Feature) error
	FindByCode(ctx context.Context, code string) (*models.Feature, error)
	FindByCodeForUpdate(ctx context.Context, code string) (*models.Feature, error)
	Save(ctx context.Context, feature *models.Feature) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, feature *models.Feature) error {
	if feature.ID == uuid.Nil {
		feature.ID = uuid.New()
	}
	if err := r.db.WithContext(ctx).Create(feature).Error; err != nil {
		if db.IsUniqueViolation(err, "ux_features_code") || db.IsUniqueViolation(err, "features.code") {
			return ErrCodeTaken
		}
		return fmt.Errorf("create feature: %w", err)
	}
	return nil
}

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Feature, error) {
	return r.find(r.db.WithContext(ctx), code)
}

// FindByCodeForUpdate locks the row on postgres so concurrent commands on one
// feature serialize their version bumps.
func (r *repository) FindByCodeForUpdate(ctx context.Context, code string) (*models.Feature, error) {
	query := r.db.WithContext(ctx)
	if query.Dialector != nil && query.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return r.find(query, code)
}

func (r *repository) find(query *gorm.DB, code string) (*models.Feature, error) {
	var feature models.Feature
	if err := query.Where("code = ?", code).Take(&feature).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFeatureNotFound
		}
		return nil, fmt.Errorf("load feature: %w", err)
	}
	return &feature, nil
}

func (r *repository) Save(ctx context.Context, feature *models.Feature) error {
	if err := r.db.WithContext(ctx).Save(feature).Error; err != nil {
		return fmt.Errorf("save feature: %w", err)
	}
	return nil
}
