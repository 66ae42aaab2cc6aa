package enums

import "fmt"

// ReplayScope selects which aggregates a replay run covers.
type ReplayScope string

const (
	ReplayScopeAll          ReplayScope = "all"
	ReplayScopeAggregate    ReplayScope = "aggregate"
	ReplayScopeAggregateSet ReplayScope = "aggregate_set"
)

var validReplayScopes = []ReplayScope{
	ReplayScopeAll,
	ReplayScopeAggregate,
	ReplayScopeAggregateSet,
}

func (s ReplayScope) IsValid() bool {
	for _, candidate := range validReplayScopes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseReplayScope converts raw input into ReplayScope.
func ParseReplayScope(value string) (ReplayScope, error) {
	for _, candidate := range validReplayScopes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid replay scope %q", value)
}
