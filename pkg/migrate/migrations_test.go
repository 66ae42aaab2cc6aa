package migrate_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/featuretrack-backend/pkg/db"
	"github.com/angelmondragon/featuretrack-backend/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected exactly one %s migration", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestMigrationsContainConstraints(t *testing.T) {
	cases := map[string][]string{
		"create_ledger_entries": {
			"PRIMARY KEY (operation_id, operation_class)",
			"idx_ledger_entries_expires_at",
			"DROP TABLE IF EXISTS ledger_entries",
		},
		"create_stored_events": {
			"CONSTRAINT ux_stored_events_aggregate_version UNIQUE (aggregate_id, version)",
			"BEFORE UPDATE OR DELETE ON stored_events",
			"DROP TABLE IF EXISTS stored_events",
		},
		"create_features": {
			"CONSTRAINT ux_features_code UNIQUE (code)",
			"CHECK (status IN ('planned', 'in_progress', 'released', 'deleted'))",
		},
		"create_notifications": {"idx_notifications_event_id"},
		"create_outbox_events": {
			"CONSTRAINT ux_outbox_events_event_id UNIQUE (event_id)",
			"WHERE published_at IS NULL",
		},
		"create_outbox_dlq": {"payload_json", "error_reason"},
	}

	for suffix, checks := range cases {
		content := readMigration(t, suffix)
		for _, sub := range checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s: missing expected statement %q", suffix, sub)
			}
		}
	}
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "create_things.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	assert.Error(t, migrate.ValidateDir(dir))
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Feature Owners!")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_feature_owners.sql"), path)
	require.NoError(t, migrate.ValidateDir(dir))
}

func TestAutoMigrateModelsCreatesTables(t *testing.T) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	require.NoError(t, migrate.AutoMigrateModels(context.Background(), db.NewFromConn(conn)))
	for _, table := range []string{"ledger_entries", "stored_events", "features", "notifications", "outbox_events", "outbox_dlq"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}
