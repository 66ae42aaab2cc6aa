package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
)

// Feature is the aggregate mutated by the feature command path.
type Feature struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	Code        string              `gorm:"column:code;type:text;not null;uniqueIndex:ux_features_code" json:"code"`
	ProductCode string              `gorm:"column:product_code;type:text;not null" json:"productCode"`
	Title       string              `gorm:"column:title;type:text;not null" json:"title"`
	Description *string             `gorm:"column:description;type:text" json:"description,omitempty"`
	Status      enums.FeatureStatus `gorm:"column:status;type:text;not null" json:"status"`
	Version     int64               `gorm:"column:version;not null;default:0" json:"version"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Feature) TableName() string { return "features" }
