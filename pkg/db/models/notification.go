package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
)

// Notification is the side effect produced by feature event handlers. Rows
// are counted to verify that business logic ran once per event.
type Notification struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;primaryKey" json:"id"`
	EventID     string                 `gorm:"column:event_id;type:text;not null;index:idx_notifications_event_id" json:"eventId"`
	FeatureCode string                 `gorm:"column:feature_code;type:text;not null;index:idx_notifications_feature_code" json:"featureCode"`
	Type        enums.NotificationType `gorm:"column:type;type:text;not null" json:"type"`
	Title       string                 `gorm:"column:title;type:text;not null" json:"title"`
	Message     string                 `gorm:"column:message;type:text;not null" json:"message"`
	ReadAt      *time.Time             `gorm:"column:read_at" json:"readAt,omitempty"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}
