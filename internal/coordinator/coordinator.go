package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/featuretrack-backend/internal/ledger"
	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/featuretrack-backend/pkg/errors"
	"github.com/angelmondragon/featuretrack-backend/pkg/logger"
	"github.com/angelmondragon/featuretrack-backend/pkg/metrics"
)

const (
	defaultInFlightWait = 2 * time.Second
	defaultInFlightPoll = 100 * time.Millisecond
	defaultMaxRounds    = 5
)

// ErrOperationInFlight is returned when another claimant holds the operation
// and has not recorded a result within the wait window.
var ErrOperationInFlight = errors.New("operation in flight")

// Handler performs the side effects of a claimed operation inside the claim's
// transaction and returns the result recorded for duplicate callers.
type Handler func(ctx context.Context, tx *gorm.DB) (string, error)

// Outcome describes how an operation was resolved.
type Outcome struct {
	Status enums.ClaimStatus
	Result string
}

// Duplicate reports whether the handler was skipped because of a prior claim.
func (o Outcome) Duplicate() bool {
	return o.Status == enums.ClaimStatusDuplicate
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type Params struct {
	Logger       *logger.Logger
	DB           txRunner
	Ledger       ledger.Repository
	Metrics      *metrics.CoordinatorMetrics
	InFlightWait time.Duration
	InFlightPoll time.Duration
	MaxRounds    int
	Now          func() time.Time
}

// Coordinator runs the claim-then-execute protocol shared by API commands and
// event consumption. A handler failure rolls back the transaction holding the
// claim, so the operation can be retried with the same id.
type Coordinator struct {
	logg      *logger.Logger
	db        txRunner
	ledger    ledger.Repository
	metrics   *metrics.CoordinatorMetrics
	wait      time.Duration
	poll      time.Duration
	maxRounds int
	now       func() time.Time
}

func New(params Params) (*Coordinator, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	wait := params.InFlightWait
	if wait <= 0 {
		wait = defaultInFlightWait
	}
	poll := params.InFlightPoll
	if poll <= 0 {
		poll = defaultInFlightPoll
	}
	rounds := params.MaxRounds
	if rounds <= 0 {
		rounds = defaultMaxRounds
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		logg:      params.Logger,
		db:        params.DB,
		ledger:    params.Ledger,
		metrics:   params.Metrics,
		wait:      wait,
		poll:      poll,
		maxRounds: rounds,
		now:       now,
	}, nil
}

// Execute claims op and runs handler at most once per retention window.
// Later callers receive the recorded result without re-running the handler.
func (c *Coordinator) Execute(ctx context.Context, op ledger.Operation, handler Handler) (Outcome, error) {
	if handler == nil {
		return Outcome{}, pkgerrors.New(pkgerrors.CodeInternal, "handler required")
	}
	if err := op.Validate(); err != nil {
		return Outcome{}, err
	}
	class := string(op.Class)
	ctx = c.logg.WithOperation(ctx, op.ID, class)

	for round := 0; round < c.maxRounds; round++ {
		outcome, settled, err := c.attempt(ctx, op, handler)
		if err != nil {
			return Outcome{}, err
		}
		if settled {
			c.metrics.IncOutcome(class, string(outcome.Status))
			return outcome, nil
		}

		result, found, err := c.awaitResult(ctx, op)
		if err != nil {
			if errors.Is(err, ErrOperationInFlight) {
				c.metrics.IncOutcome(class, "in_flight")
			}
			return Outcome{}, err
		}
		if found {
			c.metrics.IncOutcome(class, string(enums.ClaimStatusDuplicate))
			return Outcome{Status: enums.ClaimStatusDuplicate, Result: result}, nil
		}
		c.logg.Info(ctx, "in-flight claim was released; claiming again")
	}

	c.metrics.IncOutcome(class, "in_flight")
	return Outcome{}, inFlightError(op)
}

// attempt runs one claim round. settled is false when another claimant holds
// the operation without a recorded result.
func (c *Coordinator) attempt(ctx context.Context, op ledger.Operation, handler Handler) (Outcome, bool, error) {
	var (
		outcome    Outcome
		settled    bool
		handlerErr error
	)
	err := c.db.WithTx(ctx, func(tx *gorm.DB) error {
		store := c.ledger.WithTx(tx)
		claim, err := store.TryClaim(ctx, op, c.now())
		if err != nil {
			return err
		}
		if !claim.Claimed {
			if prior, ok := claim.PriorResult(); ok {
				c.logg.Info(ctx, "duplicate operation; returning recorded result")
				outcome = Outcome{Status: enums.ClaimStatusDuplicate, Result: prior}
				settled = true
			}
			return nil
		}

		start := time.Now()
		result, err := runHandler(ctx, tx, handler)
		c.metrics.ObserveHandler(string(op.Class), time.Since(start))
		if err != nil {
			handlerErr = err
			return err
		}
		if err := store.RecordResult(ctx, op, result); err != nil {
			return err
		}
		outcome = Outcome{Status: enums.ClaimStatusExecuted, Result: result}
		settled = true
		return nil
	})

	if handlerErr != nil {
		c.metrics.IncHandlerFailure(string(op.Class))
		c.logg.Warn(c.logg.WithField(ctx, "error", handlerErr.Error()), "handler failed; claim released")
		return Outcome{}, false, handlerErr
	}
	if err != nil {
		c.metrics.IncOutcome(string(op.Class), "error")
		if typed := pkgerrors.As(err); typed != nil {
			return Outcome{}, false, err
		}
		return Outcome{}, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ledger unavailable")
	}
	return outcome, settled, nil
}

// awaitResult polls the ledger until the winner records a result. found is
// false when the entry disappeared, meaning the winner failed and released it.
func (c *Coordinator) awaitResult(ctx context.Context, op ledger.Operation) (string, bool, error) {
	deadline := time.Now().Add(c.wait)
	for {
		entry, err := c.ledger.Get(ctx, op)
		if errors.Is(err, ledger.ErrEntryNotFound) {
			return "", false, nil
		}
		if err != nil {
			return "", false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ledger unavailable")
		}
		if entry.Result != nil {
			return *entry.Result, true, nil
		}
		if !time.Now().Before(deadline) {
			return "", false, inFlightError(op)
		}
		if err := sleep(ctx, c.poll); err != nil {
			return "", false, err
		}
	}
}

func runHandler(ctx context.Context, tx *gorm.DB, handler Handler) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, tx)
}

func inFlightError(op ledger.Operation) error {
	return pkgerrors.Wrap(pkgerrors.CodeInFlight, ErrOperationInFlight, fmt.Sprintf("operation %s is still being processed", op))
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
