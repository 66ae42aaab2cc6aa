package replay

import (
	"sort"
	"strings"
	"time"

	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/featuretrack-backend/pkg/errors"
)

// Selector names the aggregates a replay covers.
type Selector struct {
	Scope        enums.ReplayScope
	AggregateIDs []string
}

func All() Selector {
	return Selector{Scope: enums.ReplayScopeAll}
}

func Aggregate(id string) Selector {
	return Selector{Scope: enums.ReplayScopeAggregate, AggregateIDs: []string{id}}
}

func AggregateSet(ids []string) Selector {
	return Selector{Scope: enums.ReplayScopeAggregateSet, AggregateIDs: ids}
}

// normalize trims and dedupes ids and checks them against the scope.
func (s Selector) normalize() (Selector, error) {
	if !s.Scope.IsValid() {
		return Selector{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid replay scope")
	}

	seen := make(map[string]struct{}, len(s.AggregateIDs))
	ids := make([]string, 0, len(s.AggregateIDs))
	for _, raw := range s.AggregateIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	switch s.Scope {
	case enums.ReplayScopeAll:
		if len(ids) > 0 {
			return Selector{}, pkgerrors.New(pkgerrors.CodeValidation, "aggregate ids are not allowed when replaying all aggregates")
		}
		return Selector{Scope: s.Scope}, nil
	case enums.ReplayScopeAggregate:
		if len(ids) != 1 {
			return Selector{}, pkgerrors.New(pkgerrors.CodeValidation, "exactly one aggregate id is required")
		}
	}
	return Selector{Scope: s.Scope, AggregateIDs: ids}, nil
}

type Request struct {
	Selector Selector
	From     time.Time
	To       time.Time
	DryRun   bool
}

// Result aggregates per-event outcomes of one replay run.
type Result struct {
	TotalCount   int      `json:"totalCount"`
	SuccessCount int      `json:"successCount"`
	FailureCount int      `json:"failureCount"`
	HasErrors    bool     `json:"hasErrors"`
	Errors       []string `json:"errors"`
}

func newResult() *Result {
	return &Result{Errors: []string{}}
}

func (r *Result) finish() *Result {
	r.HasErrors = r.FailureCount > 0
	return r
}
