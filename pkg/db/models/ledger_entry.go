package models

import (
	"time"

	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
)

// LedgerEntry reserves one logical operation for exclusive execution. The
// composite primary key is the only arbitration mechanism between racing
// claimants. A nil Result means the claim is still in flight.
type LedgerEntry struct {
	OperationID    string               `gorm:"column:operation_id;type:text;primaryKey"`
	OperationClass enums.OperationClass `gorm:"column:operation_class;type:text;primaryKey"`
	ClaimedAt      time.Time            `gorm:"column:claimed_at;not null"`
	ExpiresAt      time.Time            `gorm:"column:expires_at;not null;index:idx_ledger_entries_expires_at"`
	Result         *string              `gorm:"column:result;type:text"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }

// HasResult reports whether the winner has recorded its outcome.
func (e LedgerEntry) HasResult() bool {
	return e.Result != nil
}

// Expired reports whether the entry is past its retention window.
func (e LedgerEntry) Expired(now time.Time) bool {
	return e.ExpiresAt.Before(now)
}
