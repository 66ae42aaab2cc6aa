package enums

import (
	"fmt"
	"strings"
)

// OperationClass namespaces ledger entries: API dedupes command retries,
// EVENT dedupes business logic triggered by a consumed domain event.
type OperationClass string

const (
	OperationClassAPI   OperationClass = "API"
	OperationClassEvent OperationClass = "EVENT"
)

var validOperationClasses = []OperationClass{
	OperationClassAPI,
	OperationClassEvent,
}

// IsValid reports whether the value matches a known operation class.
func (c OperationClass) IsValid() bool {
	for _, candidate := range validOperationClasses {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseOperationClass converts raw input into OperationClass. Matching is
// case-insensitive.
func ParseOperationClass(value string) (OperationClass, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validOperationClasses {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid operation class %q", value)
}

// ClaimStatus describes how the coordinator resolved an operation.
type ClaimStatus string

const (
	ClaimStatusExecuted  ClaimStatus = "executed"
	ClaimStatusDuplicate ClaimStatus = "duplicate"
)

// Result markers recorded for commands that do not create a resource.
const (
	ResultUpdated = "UPDATED"
	ResultDeleted = "DELETED"
	ResultOK      = "ok"
)
