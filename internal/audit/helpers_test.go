package audit

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nerrad567/thinglink-core/internal/infrastructure/database"
	"github.com/nerrad567/thinglink-core/migrations"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}
