package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/featuretrack-backend/pkg/db/models"
	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/featuretrack-backend/pkg/errors"
)

// Service exposes read-side ledger operations for operators.
type Service interface {
	Lookup(ctx context.Context, class, operationID string) (*EntryView, error)
}

// EntryView is the public shape of a ledger entry.
type EntryView struct {
	OperationID    string               `json:"operationId"`
	OperationClass enums.OperationClass `json:"operationClass"`
	ClaimedAt      time.Time            `json:"claimedAt"`
	ExpiresAt      time.Time            `json:"expiresAt"`
	Result         *string              `json:"result,omitempty"`
	InFlight       bool                 `json:"inFlight"`
}

type service struct {
	repo Repository
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Lookup(ctx context.Context, class, operationID string) (*EntryView, error) {
	parsed, err := enums.ParseOperationClass(class)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid operation class")
	}
	op := Operation{ID: operationID, Class: parsed}
	if err := op.Validate(); err != nil {
		return nil, err
	}
	entry, err := s.repo.Get(ctx, op)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ledger entry not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ledger lookup failed")
	}
	return toView(entry), nil
}

func toView(entry *models.LedgerEntry) *EntryView {
	return &EntryView{
		OperationID:    entry.OperationID,
		OperationClass: entry.OperationClass,
		ClaimedAt:      entry.ClaimedAt,
		ExpiresAt:      entry.ExpiresAt,
		Result:         entry.Result,
		InFlight:       !entry.HasResult(),
	}
}
