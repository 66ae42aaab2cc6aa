package enums

import "fmt"

// FeatureStatus tracks where a feature sits in the release lifecycle.
type FeatureStatus string

const (
	FeatureStatusPlanned    FeatureStatus = "planned"
	FeatureStatusInProgress FeatureStatus = "in_progress"
	FeatureStatusReleased   FeatureStatus = "released"
	FeatureStatusDeleted    FeatureStatus = "deleted"
)

var validFeatureStatuses = []FeatureStatus{
	FeatureStatusPlanned,
	FeatureStatusInProgress,
	FeatureStatusReleased,
	FeatureStatusDeleted,
}

func (s FeatureStatus) IsValid() bool {
	for _, candidate := range validFeatureStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseFeatureStatus converts raw strings into FeatureStatus.
func ParseFeatureStatus(value string) (FeatureStatus, error) {
	for _, candidate := range validFeatureStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid feature status %q", value)
}
