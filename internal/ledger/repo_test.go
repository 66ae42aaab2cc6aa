package ledger

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/featuretrack-backend/pkg/db/models"
	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
)

func newLedgerDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&models.LedgerEntry{}))
	return conn
}

func TestRepository_ClaimRecordSweepReclaim(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newLedgerDB(t), 24*time.Hour)
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	op := EventOperation("evt-1")

	first, err := repo.TryClaim(ctx, op, now)
	require.NoError(t, err)
	assert.True(t, first.Claimed)
	assert.Equal(t, now.Add(24*time.Hour), first.Entry.ExpiresAt)

	require.NoError(t, repo.RecordResult(ctx, op, "ok"))

	second, err := repo.TryClaim(ctx, op, now.Add(time.Minute))
	require.NoError(t, err)
	assert.False(t, second.Claimed)
	result, ok := second.PriorResult()
	require.True(t, ok)
	assert.Equal(t, "ok", result)

	removed, err := repo.SweepExpired(ctx, now.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = repo.Get(ctx, op)
	assert.ErrorIs(t, err, ErrEntryNotFound)

	third, err := repo.TryClaim(ctx, op, now.Add(25*time.Hour))
	require.NoError(t, err)
	assert.True(t, third.Claimed)
}

func TestRepository_ClassesAreSeparateNamespaces(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newLedgerDB(t), 0)
	now := time.Now()

	api, err := repo.TryClaim(ctx, APIOperation("shared-id"), now)
	require.NoError(t, err)
	event, err := repo.TryClaim(ctx, EventOperation("shared-id"), now)
	require.NoError(t, err)

	assert.True(t, api.Claimed)
	assert.True(t, event.Claimed)
}

func TestRepository_LoserSeesInFlightUntilResultRecorded(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newLedgerDB(t), time.Hour)
	op := APIOperation("token-1")
	now := time.Now()

	_, err := repo.TryClaim(ctx, op, now)
	require.NoError(t, err)

	lost, err := repo.TryClaim(ctx, op, now)
	require.NoError(t, err)
	assert.False(t, lost.Claimed)
	assert.True(t, lost.InFlight())

	require.NoError(t, repo.RecordResult(ctx, op, "FT-1"))
	assert.ErrorIs(t, repo.RecordResult(ctx, op, "FT-2"), ErrClaimNotHeld, "result is set once")

	entry, err := repo.Get(ctx, op)
	require.NoError(t, err)
	require.NotNil(t, entry.Result)
	assert.Equal(t, "FT-1", *entry.Result)
}

func TestRepository_ExpiredEntryIsReclaimedOnClaim(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newLedgerDB(t), time.Hour)
	op := EventOperation("evt-old")
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.TryClaim(ctx, op, now)
	require.NoError(t, err)
	require.NoError(t, repo.RecordResult(ctx, op, "ok"))

	again, err := repo.TryClaim(ctx, op, now.Add(2*time.Hour))
	require.NoError(t, err)
	assert.True(t, again.Claimed)
	assert.Nil(t, again.Entry.Result)
}

func TestRepository_SweepLeavesUnexpiredRows(t *testing.T) {
	ctx := context.Background()
	db := newLedgerDB(t)
	repo := NewRepository(db, time.Hour)
	now := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	_, err := repo.TryClaim(ctx, EventOperation("old"), now.Add(-2*time.Hour))
	require.NoError(t, err)
	_, err = repo.TryClaim(ctx, EventOperation("fresh"), now)
	require.NoError(t, err)

	removed, err := repo.SweepExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = repo.Get(ctx, EventOperation("fresh"))
	assert.NoError(t, err)
}

func TestRepository_ConcurrentClaimsElectOneWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newLedgerDB(t), time.Hour)
	op := EventOperation("evt-race")
	const n = 16

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		claimed int
		lost    int
		errs    []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			claim, err := repo.TryClaim(ctx, op, time.Now())
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return
			}
			if claim.Claimed {
				claimed++
			} else {
				lost++
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Empty(t, errs)
	assert.Equal(t, 1, claimed)
	assert.Equal(t, n-1, lost)
}

func TestRepository_TryClaimValidatesOperation(t *testing.T) {
	repo := NewRepository(newLedgerDB(t), time.Hour)
	_, err := repo.TryClaim(context.Background(), Operation{ID: "", Class: enums.OperationClassAPI}, time.Now())
	assert.Error(t, err)
	_, err = repo.TryClaim(context.Background(), Operation{ID: "x", Class: "OTHER"}, time.Now())
	assert.Error(t, err)
}
