package enums

import "fmt"

// NotificationType classifies notifications raised by feature events.
type NotificationType string

const (
	NotificationTypeFeatureCreated NotificationType = "feature_created"
	NotificationTypeFeatureUpdated NotificationType = "feature_updated"
	NotificationTypeFeatureDeleted NotificationType = "feature_deleted"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeFeatureCreated,
	NotificationTypeFeatureUpdated,
	NotificationTypeFeatureDeleted,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	for _, candidate := range validNotificationTypes {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	for _, candidate := range validNotificationTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification type %q", value)
}
