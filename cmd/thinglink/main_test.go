package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/thinglink-core/internal/datapoint"
	"github.com/nerrad567/thinglink-core/internal/device"
	"github.com/nerrad567/thinglink-core/internal/fault"
	"github.com/nerrad567/thinglink-core/internal/infrastructure/config"
	"github.com/nerrad567/thinglink-core/internal/infrastructure/database"
	"github.com/nerrad567/thinglink-core/internal/infrastructure/logging"
	"github.com/nerrad567/thinglink-core/internal/pairing"
	"github.com/nerrad567/thinglink-core/internal/status"
	"github.com/nerrad567/thinglink-core/migrations"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("THINGLINK_CONFIG", path)
	return path
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("THINGLINK_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingSecret verifies validation stops startup before any
// connection is opened.
func TestRun_MissingSecret(t *testing.T) {
	t.Setenv("THINGLINK_JWT_SECRET", "")
	writeConfig(t, `
home:
  id: home-1
database:
  path: "`+filepath.Join(t.TempDir(), "test.db")+`"
`)

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "security.jwt.secret") {
		t.Fatalf("run() error = %v, want jwt secret validation error", err)
	}
}

// TestRun_UnusableDatabasePath verifies run fails when the database
// directory cannot be created.
func TestRun_UnusableDatabasePath(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatalf("writing blocker: %v", err)
	}
	writeConfig(t, `
home:
  id: home-1
database:
  path: "`+filepath.Join(blocker, "test.db")+`"
security:
  jwt:
    secret: "test-secret-that-is-at-least-32-characters"
`)

	err := run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "opening database") {
		t.Fatalf("run() error = %v, want database error", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("THINGLINK_CONFIG", "")
	if got := getConfigPath(); got != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", got, defaultConfigPath)
	}

	t.Setenv("THINGLINK_CONFIG", "/custom/path/config.yaml")
	if got := getConfigPath(); got != "/custom/path/config.yaml" {
		t.Errorf("getConfigPath() = %q, want override", got)
	}
}

func TestBuildCodec(t *testing.T) {
	t.Run("built-in registry", func(t *testing.T) {
		codec, err := buildCodec(&config.Config{})
		if err != nil {
			t.Fatalf("buildCodec() error = %v", err)
		}
		if _, ok := codec.Registry().LookupCode(datapoint.CodeBright); !ok {
			t.Error("built-in registry missing bright_value")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		cfg := &config.Config{DataPoints: config.DataPointConfig{RegistryFile: "/nonexistent/dps.yaml"}}
		if _, err := buildCodec(cfg); err == nil {
			t.Fatal("buildCodec() error = nil, want error")
		}
	})
}

func TestPersistPaired(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(database.Config{Path: filepath.Join(t.TempDir(), "test.db"), BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
	store := status.NewStore(datapoint.NewCodec(nil))
	persist := persistPaired(ctx, "home-1", registry, store, logging.Discard())

	persist(pairing.Result{Mode: pairing.ModeBLE, Err: &fault.TimeoutError{Op: "activate", After: time.Second}})
	if registry.Len() != 0 {
		t.Fatalf("failed attempt was persisted")
	}

	persist(pairing.Result{
		Mode:   pairing.ModeCombo,
		Device: &pairing.PairedDevice{DevID: "dev-1", Name: "Plug", UUID: "u1", IsOnline: true},
	})

	got, err := registry.Get("dev-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.HomeID != "home-1" || got.Mode != pairing.ModeCombo {
		t.Errorf("persisted = %+v", got)
	}
	st, ok := store.Get("dev-1")
	if !ok || !st.Online {
		t.Errorf("status = %+v, %v, want online entry", st, ok)
	}
}
