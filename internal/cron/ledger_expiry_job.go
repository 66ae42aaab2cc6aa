package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/featuretrack-backend/internal/ledger"
	"github.com/angelmondragon/featuretrack-backend/pkg/logger"
	"github.com/angelmondragon/featuretrack-backend/pkg/metrics"
)

const ledgerExpiryJobName = "ledger-expiry"

type LedgerExpiryJobParams struct {
	Logger  *logger.Logger
	DB      txRunner
	Ledger  ledger.Repository
	Metrics *metrics.CronJobMetrics
}

// NewLedgerExpiryJob removes ledger entries past their retention window.
// Live claims are never touched, so an aborted sweep can simply run again.
func NewLedgerExpiryJob(params LedgerExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &ledgerExpiryJob{
		logg:    params.Logger,
		db:      params.DB,
		ledger:  params.Ledger,
		metrics: params.Metrics,
		now:     time.Now,
	}, nil
}

type ledgerExpiryJob struct {
	logg    *logger.Logger
	db      txRunner
	ledger  ledger.Repository
	metrics *metrics.CronJobMetrics
	now     func() time.Time
}

func (j *ledgerExpiryJob) Name() string { return ledgerExpiryJobName }

func (j *ledgerExpiryJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := j.ledger.WithTx(tx).SweepExpired(ctx, now)
		if err != nil {
			return err
		}
		deleted = rows
		return nil
	})
	if err != nil {
		return fmt.Errorf("ledger expiry: %w", err)
	}
	j.metrics.AddRowsDeleted(ledgerExpiryJobName, deleted)
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"swept_before": now,
		"rows_deleted": deleted,
	}), "ledger expiry sweep complete")
	return nil
}
