package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/featuretrack-backend/pkg/db/models"
	"github.com/angelmondragon/featuretrack-backend/pkg/enums"
	"github.com/angelmondragon/featuretrack-backend/pkg/logger"
)

func newOutboxDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&models.StoredEvent{}, &models.OutboxEvent{}, &models.OutboxDLQ{}))
	return conn
}

// tableAppender stands in for the event store with a plain insert.
type tableAppender struct {
	err error
}

func (a tableAppender) AppendTx(ctx context.Context, tx *gorm.DB, event *models.StoredEvent) error {
	if a.err != nil {
		return a.err
	}
	if event.Version == 0 {
		event.Version = 1
	}
	return tx.WithContext(ctx).Create(event).Error
}

func TestEmitAppendsEventAndQueuesEnvelope(t *testing.T) {
	ctx := context.Background()
	conn := newOutboxDB(t)
	svc := NewService(NewRepository(conn), tableAppender{}, logger.New(logger.Options{ServiceName: "test", Output: io.Discard}))

	var stored *models.StoredEvent
	err := conn.Transaction(func(tx *gorm.DB) error {
		var err error
		stored, err = svc.Emit(ctx, tx, DomainEvent{
			EventType:   enums.EventFeatureCreated,
			AggregateID: "FT-1",
			Metadata:    &EventMetadata{Source: "api", IdempotencyKey: "tok-1"},
			Data:        map[string]string{"code": "FT-1"},
		})
		return err
	})
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, int64(1), stored.Version)
	assert.Equal(t, enums.AggregateFeature, stored.AggregateType)

	var persisted models.StoredEvent
	require.NoError(t, conn.Where("event_id = ?", stored.EventID).Take(&persisted).Error)
	assert.JSONEq(t, `{"code":"FT-1"}`, string(persisted.Payload))

	var row models.OutboxEvent
	require.NoError(t, conn.Where("event_id = ?", stored.EventID).Take(&row).Error)
	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &envelope))
	assert.Equal(t, stored.EventID, envelope.EventID)
	assert.Equal(t, int64(1), envelope.AggregateVersion)
	require.NotNil(t, envelope.Metadata)
	assert.Equal(t, "tok-1", envelope.Metadata.IdempotencyKey)

	rebuilt, err := envelope.StoredEvent()
	require.NoError(t, err)
	assert.Equal(t, stored.EventID, rebuilt.EventID)
	assert.Equal(t, enums.EventFeatureCreated, rebuilt.EventType)
}

func TestEmitRollsBackWithTransaction(t *testing.T) {
	ctx := context.Background()
	conn := newOutboxDB(t)
	svc := NewService(NewRepository(conn), tableAppender{}, nil)

	boom := errors.New("boom")
	err := conn.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.Emit(ctx, tx, DomainEvent{EventType: enums.EventFeatureDeleted, AggregateID: "FT-2", Data: struct{}{}}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, conn.Model(&models.StoredEvent{}).Count(&count).Error)
	assert.Zero(t, count)
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestEmitRejectsUnknownEventType(t *testing.T) {
	conn := newOutboxDB(t)
	svc := NewService(NewRepository(conn), tableAppender{}, nil)
	_, err := svc.Emit(context.Background(), conn, DomainEvent{EventType: "Nope", AggregateID: "FT-1"})
	assert.Error(t, err)

	_, err = svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventFeatureCreated})
	assert.Error(t, err)
}

func TestEmitAppendFailureQueuesNothing(t *testing.T) {
	conn := newOutboxDB(t)
	boom := errors.New("version conflict")
	svc := NewService(NewRepository(conn), tableAppender{err: boom}, nil)

	_, err := svc.Emit(context.Background(), conn, DomainEvent{EventType: enums.EventFeatureCreated, AggregateID: "FT-1", Data: struct{}{}})
	require.ErrorIs(t, err, boom)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPackageDoesNotImportInternal(t *testing.T) {
	files, err := filepath.Glob("*.go")
	require.NoError(t, err)
	fset := token.NewFileSet()
	for _, name := range files {
		src, err := os.ReadFile(name)
		require.NoError(t, err)
		f, err := parser.ParseFile(fset, name, src, parser.ImportsOnly)
		require.NoError(t, err)
		for _, imp := range f.Imports {
			assert.NotContains(t, imp.Path.Value, "featuretrack-backend/internal/", "%s imports %s", name, imp.Path.Value)
		}
	}
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	ctx := context.Background()
	conn := newOutboxDB(t)
	repo := NewRepository(conn)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Insert(conn, models.OutboxEvent{
			EventID:       fmt.Sprintf("evt-%d", i),
			EventType:     enums.EventFeatureUpdated,
			AggregateType: enums.AggregateFeature,
			AggregateID:   "FT-1",
			Payload:       json.RawMessage(`{}`),
		}))
	}

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, repo.MarkPublishedTx(conn, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(conn, rows[1].ID, errors.New("timeout")))
	require.NoError(t, repo.MarkTerminalTx(conn, rows[2].ID, errors.New("bad payload"), 3))

	pending, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rows[1].ID, pending[0].ID)
	assert.Equal(t, 1, pending[0].AttemptCount)
	require.NotNil(t, pending[0].LastError)
	assert.Equal(t, "timeout", *pending[0].LastError)

	removed, err := repo.DeletePublishedBefore(ctx, nil, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	missing, err := repo.FindByEventID(ctx, rows[0].EventID)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestDLQRepositoryTruncatesMessages(t *testing.T) {
	ctx := context.Background()
	conn := newOutboxDB(t)
	dlq := NewDLQRepository(conn)

	long := strings.Repeat("x", 2000)
	require.NoError(t, dlq.InsertTx(conn, models.OutboxDLQ{
		OutboxID:      uuid.New(),
		EventID:       "evt-9",
		EventType:     enums.EventFeatureCreated,
		AggregateType: enums.AggregateFeature,
		AggregateID:   "FT-9",
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		ErrorMessage:  &long,
		FailedAt:      time.Now().UTC(),
	}))

	entry, err := dlq.FindByEventID(ctx, "evt-9")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.NotNil(t, entry.ErrorMessage)
	assert.Len(t, *entry.ErrorMessage, maxDLQErrorLen)
}
