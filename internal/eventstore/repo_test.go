package eventstore

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/featuretrack-backend/pkg/db/models"
	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/featuretrack-backend/pkg/errors"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEventDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&models.StoredEvent{}))
	return conn
}

func featureEvent(id, code string, eventType enums.EventType, at time.Time) *models.StoredEvent {
	return &models.StoredEvent{
		EventID:       id,
		EventType:     eventType,
		AggregateID:   code,
		AggregateType: enums.AggregateFeature,
		Payload:       json.RawMessage(fmt.Sprintf(`{"code":%q}`, code)),
		OccurredAt:    at,
	}
}

func TestAppendAssignsVersionsPerAggregate(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newEventDB(t))

	require.NoError(t, repo.Append(ctx, featureEvent("e1", "FT-1", enums.EventFeatureCreated, base)))
	require.NoError(t, repo.Append(ctx, featureEvent("e2", "FT-1", enums.EventFeatureUpdated, base.Add(time.Minute))))
	require.NoError(t, repo.Append(ctx, featureEvent("e3", "FT-2", enums.EventFeatureCreated, base.Add(2*time.Minute))))

	events, err := repo.FindByAggregate(ctx, "FT-1")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(1), events[0].Version)
	assert.Equal(t, int64(2), events[1].Version)
	assert.Equal(t, "e2", events[1].EventID)

	other, err := repo.FindByAggregate(ctx, "FT-2")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, int64(1), other[0].Version)
}

func TestAppendRejectsDuplicateEventID(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newEventDB(t))

	require.NoError(t, repo.Append(ctx, featureEvent("e1", "FT-1", enums.EventFeatureCreated, base)))
	err := repo.Append(ctx, featureEvent("e1", "FT-1", enums.EventFeatureCreated, base))
	assert.ErrorIs(t, err, ErrDuplicateEvent)

	events, err := repo.FindByAggregate(ctx, "FT-1")
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestAppendRejectsTakenVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newEventDB(t))

	first := featureEvent("e1", "FT-1", enums.EventFeatureCreated, base)
	first.Version = 1
	require.NoError(t, repo.Append(ctx, first))

	second := featureEvent("e2", "FT-1", enums.EventFeatureUpdated, base)
	second.Version = 1
	assert.ErrorIs(t, repo.Append(ctx, second), ErrVersionConflict)
}

func TestAppendTxFollowsTransaction(t *testing.T) {
	ctx := context.Background()
	conn := newEventDB(t)
	repo := NewRepository(conn)

	rolledBack := fmt.Errorf("abort")
	err := conn.Transaction(func(tx *gorm.DB) error {
		event := featureEvent("e1", "FT-1", enums.EventFeatureCreated, base)
		require.NoError(t, repo.AppendTx(ctx, tx, event))
		assert.Equal(t, int64(1), event.Version)
		return rolledBack
	})
	require.ErrorIs(t, err, rolledBack)
	_, err = repo.Get(ctx, "e1")
	assert.ErrorIs(t, err, ErrEventNotFound)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return repo.AppendTx(ctx, tx, featureEvent("e2", "FT-1", enums.EventFeatureCreated, base))
	}))
	stored, err := repo.Get(ctx, "e2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
}

func TestAppendValidatesEventTypeAgainstAggregate(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newEventDB(t))

	event := featureEvent("e1", "FT-1", enums.EventType("ProductCreated"), base)
	err := repo.Append(ctx, event)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	missing := featureEvent("", "FT-1", enums.EventFeatureCreated, base)
	assert.True(t, pkgerrors.HasCode(repo.Append(ctx, missing), pkgerrors.CodeValidation))

	badJSON := featureEvent("e2", "FT-1", enums.EventFeatureCreated, base)
	badJSON.Payload = json.RawMessage(`{`)
	assert.True(t, pkgerrors.HasCode(repo.Append(ctx, badJSON), pkgerrors.CodeValidation))
}

func TestTimeRangeQueriesAreInclusiveAndOrdered(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newEventDB(t))

	require.NoError(t, repo.Append(ctx, featureEvent("a1", "FT-1", enums.EventFeatureCreated, base)))
	require.NoError(t, repo.Append(ctx, featureEvent("b1", "FT-2", enums.EventFeatureCreated, base.Add(time.Hour))))
	require.NoError(t, repo.Append(ctx, featureEvent("a2", "FT-1", enums.EventFeatureUpdated, base.Add(time.Hour))))
	require.NoError(t, repo.Append(ctx, featureEvent("c1", "FT-3", enums.EventFeatureCreated, base.Add(2*time.Hour))))
	require.NoError(t, repo.Append(ctx, featureEvent("a3", "FT-1", enums.EventFeatureDeleted, base.Add(3*time.Hour))))

	all, err := repo.FindByTimeRange(ctx, base, base.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "b1", "a2", "c1"}, ids(all))

	single, err := repo.FindByAggregateAndTimeRange(ctx, "FT-1", base.Add(time.Hour), base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "a3"}, ids(single))

	set, err := repo.FindByAggregateSetAndTimeRange(ctx, []string{"FT-2", "FT-3"}, base, base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "c1"}, ids(set))

	empty, err := repo.FindByAggregateSetAndTimeRange(ctx, nil, base, base.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestListPagesInReplayOrder(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(newEventDB(t))

	for i := 0; i < 5; i++ {
		code := fmt.Sprintf("FT-%d", i%2)
		require.NoError(t, repo.Append(ctx, featureEvent(fmt.Sprintf("e%d", i), code, enums.EventFeatureUpdated, base.Add(time.Duration(i/2)*time.Minute))))
	}

	var seen []string
	query := Query{From: base, To: base.Add(time.Hour), Limit: 2}
	for pages := 0; ; pages++ {
		require.Less(t, pages, 5)
		page, err := repo.List(ctx, query)
		require.NoError(t, err)
		seen = append(seen, ids(page.Events)...)
		if page.Next == nil {
			break
		}
		query.After = page.Next
	}

	all, err := repo.FindByTimeRange(ctx, base, base.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, ids(all), seen)
	assert.Len(t, seen, 5)
}

func TestGetReturnsNotFound(t *testing.T) {
	repo := NewRepository(newEventDB(t))
	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func ids(events []models.StoredEvent) []string {
	out := make([]string, 0, len(events))
	for _, event := range events {
		out = append(out, event.EventID)
	}
	return out
}
