package features

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/featuretrack-backend/internal/coordinator"
	"github.com/angelmondragon/featuretrack-backend/internal/ledger"
	"github.com/angelmondragon/featuretrack-backend/pkg/db/models"
	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/featuretrack-backend/pkg/errors"
	"github.com/angelmondragon/featuretrack-backend/pkg/logger"
	"github.com/angelmondragon/featuretrack-backend/pkg/outbox"
	"github.com/angelmondragon/featuretrack-backend/pkg/outbox/payloads"
)

const (
	maxCodeLength  = 64
	maxTitleLength = 200
	eventSourceAPI = "api"
)

// Service exposes the feature command path. Commands carrying an idempotency
// key run through the coordinator under the API class; commands without one
// run in a plain transaction.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*CommandResult, error)
	Update(ctx context.Context, code string, input UpdateInput) (*CommandResult, error)
	Delete(ctx context.Context, code string, input DeleteInput) (*CommandResult, error)
	Get(ctx context.Context, code string) (*models.Feature, error)
}

// CommandInfo carries the request identity recorded on emitted events.
type CommandInfo struct {
	IdempotencyKey string
	RequestID      string
}

type CreateInput struct {
	CommandInfo
	Code        string
	ProductCode string
	Title       string
	Description *string
	Status      enums.FeatureStatus
}

// UpdateInput holds optional mutation values for a feature.
type UpdateInput struct {
	CommandInfo
	Title       *string
	Description *string
	Status      *enums.FeatureStatus
}

type DeleteInput struct {
	CommandInfo
}

// CommandResult is the response body for feature commands. It is built only
// from the recorded result so duplicates render the same body as the original.
type CommandResult struct {
	Code      string `json:"code"`
	Result    string `json:"result"`
	Duplicate bool   `json:"-"`
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type executor interface {
	Execute(ctx context.Context, op ledger.Operation, handler coordinator.Handler) (coordinator.Outcome, error)
}

type emitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (*models.StoredEvent, error)
}

type Params struct {
	Logger      *logger.Logger
	DB          txRunner
	Repo        Repository
	Coordinator executor
	Outbox      emitter
	Now         func() time.Time
}

type service struct {
	logg   *logger.Logger
	db     txRunner
	repo   Repository
	coord  executor
	outbox emitter
	now    func() time.Time
}

func NewService(params Params) (Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("feature repository required")
	}
	if params.Coordinator == nil {
		return nil, fmt.Errorf("coordinator required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		logg:   params.Logger,
		db:     params.DB,
		repo:   params.Repo,
		coord:  params.Coordinator,
		outbox: params.Outbox,
		now:    now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*CommandResult, error) {
	input.Code = normalizeCode(input.Code)
	input.ProductCode = strings.TrimSpace(input.ProductCode)
	input.Title = strings.TrimSpace(input.Title)
	if input.Status == "" {
		input.Status = enums.FeatureStatusPlanned
	}
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	handler := func(ctx context.Context, tx *gorm.DB) (string, error) {
		feature := &models.Feature{
			Code:        input.Code,
			ProductCode: input.ProductCode,
			Title:       input.Title,
			Description: input.Description,
			Status:      input.Status,
		}
		if err := s.repo.WithTx(tx).Create(ctx, feature); err != nil {
			return "", mapRepoError(err, feature.Code)
		}
		stored, err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:   enums.EventFeatureCreated,
			AggregateID: feature.Code,
			Metadata:    metadataFor(input.CommandInfo),
			OccurredAt:  s.now(),
			Data: payloads.FeatureCreatedEvent{
				Code:        feature.Code,
				ProductCode: feature.ProductCode,
				Title:       feature.Title,
				Description: feature.Description,
				Status:      feature.Status,
			},
		})
		if err != nil {
			return "", emitError(err)
		}
		feature.Version = stored.Version
		if err := s.repo.WithTx(tx).Save(ctx, feature); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save feature")
		}
		return feature.Code, nil
	}

	result, duplicate, err := s.run(ctx, "create", input.CommandInfo, handler)
	if err != nil {
		return nil, err
	}
	return &CommandResult{Code: result, Result: result, Duplicate: duplicate}, nil
}

func (s *service) Update(ctx context.Context, code string, input UpdateInput) (*CommandResult, error) {
	code = normalizeCode(code)
	if err := validateUpdate(code, input); err != nil {
		return nil, err
	}

	handler := func(ctx context.Context, tx *gorm.DB) (string, error) {
		repo := s.repo.WithTx(tx)
		feature, err := loadActive(ctx, repo, code)
		if err != nil {
			return "", err
		}
		changed := applyUpdate(feature, input)
		if len(changed) == 0 {
			return enums.ResultUpdated, nil
		}
		stored, err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:   enums.EventFeatureUpdated,
			AggregateID: feature.Code,
			Metadata:    metadataFor(input.CommandInfo),
			OccurredAt:  s.now(),
			Data: payloads.FeatureUpdatedEvent{
				Code:    feature.Code,
				Title:   feature.Title,
				Status:  feature.Status,
				Changed: changed,
			},
		})
		if err != nil {
			return "", emitError(err)
		}
		feature.Version = stored.Version
		if err := repo.Save(ctx, feature); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save feature")
		}
		return enums.ResultUpdated, nil
	}

	result, duplicate, err := s.run(ctx, "update:"+code, input.CommandInfo, handler)
	if err != nil {
		return nil, err
	}
	return &CommandResult{Code: code, Result: result, Duplicate: duplicate}, nil
}

func (s *service) Delete(ctx context.Context, code string, input DeleteInput) (*CommandResult, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "feature code is required")
	}

	handler := func(ctx context.Context, tx *gorm.DB) (string, error) {
		repo := s.repo.WithTx(tx)
		feature, err := loadActive(ctx, repo, code)
		if err != nil {
			return "", err
		}
		deletedAt := s.now().UTC()
		feature.Status = enums.FeatureStatusDeleted
		stored, err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:   enums.EventFeatureDeleted,
			AggregateID: feature.Code,
			Metadata:    metadataFor(input.CommandInfo),
			OccurredAt:  deletedAt,
			Data:        payloads.FeatureDeletedEvent{Code: feature.Code, DeletedAt: deletedAt},
		})
		if err != nil {
			return "", emitError(err)
		}
		feature.Version = stored.Version
		if err := repo.Save(ctx, feature); err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save feature")
		}
		return enums.ResultDeleted, nil
	}

	result, duplicate, err := s.run(ctx, "delete:"+code, input.CommandInfo, handler)
	if err != nil {
		return nil, err
	}
	return &CommandResult{Code: code, Result: result, Duplicate: duplicate}, nil
}

// Get returns an active feature. Soft-deleted features are reported missing.
func (s *service) Get(ctx context.Context, code string) (*models.Feature, error) {
	code = normalizeCode(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "feature code is required")
	}
	return loadActive(ctx, s.repo, code)
}

// run executes handler through the coordinator when the command carries an
// idempotency key. duplicate is true when a prior result was replayed.
// Keys are scoped by command, so one key reused for a different command or
// feature runs that command instead of replaying an unrelated result.
func (s *service) run(ctx context.Context, command string, info CommandInfo, handler coordinator.Handler) (string, bool, error) {
	key := strings.TrimSpace(info.IdempotencyKey)
	if info.RequestID != "" {
		ctx = s.logg.WithRequestID(ctx, info.RequestID)
	}
	if key == "" {
		var result string
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			result, err = handler(ctx, tx)
			return err
		})
		if err != nil {
			return "", false, asTyped(err)
		}
		return result, false, nil
	}

	outcome, err := s.coord.Execute(ctx, commandOperation(command, key), handler)
	if err != nil {
		return "", false, err
	}
	if outcome.Duplicate() {
		s.logg.Info(s.logg.WithField(ctx, "idempotency_key", key), "duplicate feature command")
	}
	return outcome.Result, outcome.Duplicate(), nil
}

// commandOperation is the ledger identity of an idempotent API command.
func commandOperation(command, key string) ledger.Operation {
	return ledger.APIOperation(command + ":" + key)
}

func loadActive(ctx context.Context, repo Repository, code string) (*models.Feature, error) {
	feature, err := repo.FindByCodeForUpdate(ctx, code)
	if err != nil {
		return nil, mapRepoError(err, code)
	}
	if feature.Status == enums.FeatureStatusDeleted {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("feature %s not found", code))
	}
	return feature, nil
}

func applyUpdate(feature *models.Feature, input UpdateInput) []string {
	changed := make([]string, 0, 3)
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title != feature.Title {
			feature.Title = title
			changed = append(changed, "title")
		}
	}
	if input.Description != nil && !sameString(feature.Description, input.Description) {
		description := *input.Description
		feature.Description = &description
		changed = append(changed, "description")
	}
	if input.Status != nil && *input.Status != feature.Status {
		feature.Status = *input.Status
		changed = append(changed, "status")
	}
	return changed
}

func sameString(current, next *string) bool {
	if current == nil {
		return next == nil
	}
	return next != nil && *current == *next
}

func metadataFor(info CommandInfo) *outbox.EventMetadata {
	return &outbox.EventMetadata{
		Source:         eventSourceAPI,
		RequestID:      info.RequestID,
		IdempotencyKey: strings.TrimSpace(info.IdempotencyKey),
	}
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validateCreate(input CreateInput) error {
	switch {
	case input.Code == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "feature code is required")
	case len(input.Code) > maxCodeLength:
		return pkgerrors.New(pkgerrors.CodeValidation, "feature code is too long")
	case input.ProductCode == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "product code is required")
	case input.Title == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	case len(input.Title) > maxTitleLength:
		return pkgerrors.New(pkgerrors.CodeValidation, "title is too long")
	case !input.Status.IsValid() || input.Status == enums.FeatureStatusDeleted:
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid feature status")
	}
	return nil
}

func validateUpdate(code string, input UpdateInput) error {
	if code == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "feature code is required")
	}
	if input.Title == nil && input.Description == nil && input.Status == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one field is required")
	}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "title cannot be empty")
		}
		if len(title) > maxTitleLength {
			return pkgerrors.New(pkgerrors.CodeValidation, "title is too long")
		}
	}
	if input.Status != nil && (!input.Status.IsValid() || *input.Status == enums.FeatureStatusDeleted) {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid feature status")
	}
	return nil
}

func mapRepoError(err error, code string) error {
	switch {
	case errors.Is(err, ErrFeatureNotFound):
		return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("feature %s not found", code))
	case errors.Is(err, ErrCodeTaken):
		return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("feature %s already exists", code))
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "feature storage")
	}
}

func emitError(err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record feature event")
}

func asTyped(err error) error {
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "feature transaction")
}
