package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/featuretrack-backend/pkg/db/models"
)

const (
	// DefaultRetention is how long a claim dedupes repeats of its operation.
	DefaultRetention = 24 * time.Hour

	maxClaimAttempts = 3
)

var (
	ErrEntryNotFound = errors.New("ledger entry not found")
	ErrClaimNotHeld  = errors.New("ledger claim not held or result already recorded")
)

// Repository persists dedup ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	TryClaim(ctx context.Context, op Operation, now time.Time) (Claim, error)
	RecordResult(ctx context.Context, op Operation, result string) error
	Get(ctx context.Context, op Operation) (*models.LedgerEntry, error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

type repository struct {
	db        *gorm.DB
	retention time.Duration
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB, retention time.Duration) Repository {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &repository{db: db, retention: retention}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, retention: r.retention}
}

// TryClaim inserts the entry if absent. The insert is the arbiter: exactly
// one caller gets RowsAffected == 1. An expired holder is removed with a
// conditional delete before the insert is retried.
func (r *repository) TryClaim(ctx context.Context, op Operation, now time.Time) (Claim, error) {
	if err := op.Validate(); err != nil {
		return Claim{}, err
	}
	claimedAt := now.UTC().Truncate(time.Microsecond)

	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		entry := models.LedgerEntry{
			OperationID:    op.ID,
			OperationClass: op.Class,
			ClaimedAt:      claimedAt,
			ExpiresAt:      claimedAt.Add(r.retention),
		}
		res := r.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&entry)
		if res.Error != nil {
			return Claim{}, fmt.Errorf("insert ledger entry: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			return Claim{Claimed: true, Entry: entry}, nil
		}

		existing, err := r.Get(ctx, op)
		if errors.Is(err, ErrEntryNotFound) {
			// released between our insert and read
			continue
		}
		if err != nil {
			return Claim{}, err
		}
		if existing.Expired(claimedAt) {
			if _, err := r.deleteExpired(ctx, op, claimedAt); err != nil {
				return Claim{}, err
			}
			continue
		}
		return Claim{Claimed: false, Entry: *existing}, nil
	}
	return Claim{}, fmt.Errorf("claim %s/%s: contention did not settle after %d attempts", op.Class, op.ID, maxClaimAttempts)
}

func (r *repository) RecordResult(ctx context.Context, op Operation, result string) error {
	res := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("operation_id = ? AND operation_class = ? AND result IS NULL", op.ID, op.Class).
		Update("result", result)
	if res.Error != nil {
		return fmt.Errorf("record ledger result: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrClaimNotHeld
	}
	return nil
}

func (r *repository) Get(ctx context.Context, op Operation) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("operation_id = ? AND operation_class = ?", op.ID, op.Class).
		Take(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("load ledger entry: %w", err)
	}
	return &entry, nil
}

// SweepExpired deletes every entry whose expiry is strictly before now.
// Unexpired rows are never touched, so it is safe alongside live claims.
func (r *repository) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("expires_at < ?", now.UTC()).
		Delete(&models.LedgerEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("sweep ledger entries: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func (r *repository) deleteExpired(ctx context.Context, op Operation, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("operation_id = ? AND operation_class = ? AND expires_at < ?", op.ID, op.Class, now).
		Delete(&models.LedgerEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("reclaim expired ledger entry: %w", res.Error)
	}
	return res.RowsAffected, nil
}
