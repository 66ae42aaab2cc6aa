package eventstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/featuretrack-backend/pkg/db"
	"github.com/angelmondragon/featuretrack-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/featuretrack-backend/pkg/errors"
	"github.com/angelmondragon/featuretrack-backend/pkg/pagination"
)

const replayOrder = "occurred_at ASC, version ASC, event_id ASC"

var (
	// ErrDuplicateEvent is returned when the event id was already appended.
	// Producers retrying an append may treat it as success.
	ErrDuplicateEvent  = errors.New("event already stored")
	ErrVersionConflict = errors.New("aggregate version already taken")
	ErrEventNotFound   = errors.New("stored event not found")
)

// Repository is the append-only event log. Nothing here updates or deletes
// a stored event.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Append(ctx context.Context, event *models.StoredEvent) error
	AppendTx(ctx context.Context, tx *gorm.DB, event *models.StoredEvent) error
	NextVersion(ctx context.Context, aggregateID string) (int64, error)
	Get(ctx context.Context, eventID string) (*models.StoredEvent, error)
	FindByAggregate(ctx context.Context, aggregateID string) ([]models.StoredEvent, error)
	FindByTimeRange(ctx context.Context, from, to time.Time) ([]models.StoredEvent, error)
	FindByAggregateAndTimeRange(ctx context.Context, aggregateID string, from, to time.Time) ([]models.StoredEvent, error)
	FindByAggregateSetAndTimeRange(ctx context.Context, aggregateIDs []string, from, to time.Time) ([]models.StoredEvent, error)
	List(ctx context.Context, query Query) (Page, error)
}

// Query selects one keyset page in replay order. An empty AggregateIDs
// selects every aggregate; zero From or To leaves that side unbounded.
type Query struct {
	AggregateIDs []string
	From         time.Time
	To           time.Time
	After        *pagination.Cursor
	Limit        int
}

// Page holds a slice of events and the cursor of its last row when more rows
// follow.
type Page struct {
	Events []models.StoredEvent
	Next   *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// AppendTx is Append bound to tx.
func (r *repository) AppendTx(ctx context.Context, tx *gorm.DB, event *models.StoredEvent) error {
	return r.WithTx(tx).Append(ctx, event)
}

// Append stores the event. A zero Version is assigned the aggregate's next
// version; callers appending inside the command transaction get a
// conflict instead of a gap when two writers race.
func (r *repository) Append(ctx context.Context, event *models.StoredEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event required")
	}
	if err := validateEvent(event); err != nil {
		return err
	}
	event.OccurredAt = normalizeTime(event.OccurredAt)
	if len(event.Payload) == 0 {
		event.Payload = json.RawMessage(`{}`)
	}

	if event.Version == 0 {
		next, err := r.NextVersion(ctx, event.AggregateID)
		if err != nil {
			return err
		}
		event.Version = next
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		if db.IsUniqueViolation(res.Error, "") {
			return fmt.Errorf("%w: %s v%d", ErrVersionConflict, event.AggregateID, event.Version)
		}
		return fmt.Errorf("append stored event: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrDuplicateEvent
	}
	return nil
}

func (r *repository) NextVersion(ctx context.Context, aggregateID string) (int64, error) {
	var current int64
	err := r.db.WithContext(ctx).
		Model(&models.StoredEvent{}).
		Where("aggregate_id = ?", aggregateID).
		Select("COALESCE(MAX(version), 0)").
		Scan(&current).Error
	if err != nil {
		return 0, fmt.Errorf("load aggregate version: %w", err)
	}
	return current + 1, nil
}

func (r *repository) Get(ctx context.Context, eventID string) (*models.StoredEvent, error) {
	var event models.StoredEvent
	err := r.db.WithContext(ctx).Where("event_id = ?", eventID).Take(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("load stored event: %w", err)
	}
	return &event, nil
}

func (r *repository) FindByAggregate(ctx context.Context, aggregateID string) ([]models.StoredEvent, error) {
	var events []models.StoredEvent
	err := r.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		Order("version ASC").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("find events by aggregate: %w", err)
	}
	return events, nil
}

func (r *repository) FindByTimeRange(ctx context.Context, from, to time.Time) ([]models.StoredEvent, error) {
	return r.findAll(ctx, Query{From: from, To: to})
}

func (r *repository) FindByAggregateAndTimeRange(ctx context.Context, aggregateID string, from, to time.Time) ([]models.StoredEvent, error) {
	return r.findAll(ctx, Query{AggregateIDs: []string{aggregateID}, From: from, To: to})
}

func (r *repository) FindByAggregateSetAndTimeRange(ctx context.Context, aggregateIDs []string, from, to time.Time) ([]models.StoredEvent, error) {
	if len(aggregateIDs) == 0 {
		return []models.StoredEvent{}, nil
	}
	return r.findAll(ctx, Query{AggregateIDs: aggregateIDs, From: from, To: to})
}

func (r *repository) findAll(ctx context.Context, query Query) ([]models.StoredEvent, error) {
	var events []models.StoredEvent
	if err := r.filtered(ctx, query).Order(replayOrder).Find(&events).Error; err != nil {
		return nil, fmt.Errorf("find events by time range: %w", err)
	}
	return events, nil
}

// List returns one page in (occurred_at, version, event_id) order. Rows
// appended behind the cursor while paging are not revisited.
func (r *repository) List(ctx context.Context, query Query) (Page, error) {
	limit := pagination.NormalizeLimit(query.Limit)
	tx := r.filtered(ctx, query)
	if c := query.After; c != nil {
		at := normalizeTime(c.At)
		tx = tx.Where(
			"(occurred_at > ?) OR (occurred_at = ? AND version > ?) OR (occurred_at = ? AND version = ? AND event_id > ?)",
			at, at, c.Seq, at, c.Seq, c.ID,
		)
	}

	var events []models.StoredEvent
	if err := tx.Order(replayOrder).Limit(limit + 1).Find(&events).Error; err != nil {
		return Page{}, fmt.Errorf("list stored events: %w", err)
	}

	page := Page{Events: events}
	if len(events) > limit {
		page.Events = events[:limit]
		last := page.Events[limit-1]
		page.Next = &pagination.Cursor{At: last.OccurredAt, Seq: last.Version, ID: last.EventID}
	}
	return page, nil
}

func (r *repository) filtered(ctx context.Context, query Query) *gorm.DB {
	tx := r.db.WithContext(ctx).Model(&models.StoredEvent{})
	switch len(query.AggregateIDs) {
	case 0:
	case 1:
		tx = tx.Where("aggregate_id = ?", query.AggregateIDs[0])
	default:
		tx = tx.Where("aggregate_id IN ?", query.AggregateIDs)
	}
	if !query.From.IsZero() {
		tx = tx.Where("occurred_at >= ?", normalizeTime(query.From))
	}
	if !query.To.IsZero() {
		tx = tx.Where("occurred_at <= ?", normalizeTime(query.To))
	}
	return tx
}

func validateEvent(event *models.StoredEvent) error {
	switch {
	case strings.TrimSpace(event.EventID) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	case strings.TrimSpace(event.AggregateID) == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "aggregate id is required")
	case !event.AggregateType.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown aggregate type %q", event.AggregateType))
	case !event.EventType.BelongsTo(event.AggregateType):
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("event type %q is not declared for %s", event.EventType, event.AggregateType))
	case event.OccurredAt.IsZero():
		return pkgerrors.New(pkgerrors.CodeValidation, "occurred at is required")
	case event.Version < 0:
		return pkgerrors.New(pkgerrors.CodeValidation, "version must not be negative")
	}
	if len(event.Payload) > 0 && !json.Valid(event.Payload) {
		return pkgerrors.New(pkgerrors.CodeValidation, "payload must be valid json")
	}
	if len(event.Metadata) > 0 && !json.Valid(event.Metadata) {
		return pkgerrors.New(pkgerrors.CodeValidation, "metadata must be valid json")
	}
	return nil
}

func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
