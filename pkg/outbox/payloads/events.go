package payloads

import (
	"time"

	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
)

// FeatureCreatedEvent is emitted when a feature is first stored.
type FeatureCreatedEvent struct {
	Code        string              `json:"code"`
	ProductCode string              `json:"product_code"`
	Title       string              `json:"title"`
	Description *string             `json:"description,omitempty"`
	Status      enums.FeatureStatus `json:"status"`
}

// FeatureUpdatedEvent lists the fields a patch changed.
type FeatureUpdatedEvent struct {
	Code    string              `json:"code"`
	Title   string              `json:"title"`
	Status  enums.FeatureStatus `json:"status"`
	Changed []string            `json:"changed"`
}

// FeatureDeletedEvent is emitted when a feature is soft deleted.
type FeatureDeletedEvent struct {
	Code      string    `json:"code"`
	DeletedAt time.Time `json:"deleted_at"`
}
