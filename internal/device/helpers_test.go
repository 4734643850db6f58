package device

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/thinglink-core/internal/infrastructure/database"
	"github.com/nerrad567/thinglink-core/migrations"
)

// setupTestDB opens a migrated database in a temp dir.
func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "core.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	return db
}
