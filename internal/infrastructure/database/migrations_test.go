package database_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/urbanfield/deployment-core/internal/infrastructure/database"
	_ "github.com/urbanfield/deployment-core/migrations"
)

// openMigratedDB opens a fresh database and applies the embedded schema.
func openMigratedDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.Open(database.Config{
		Path:        filepath.Join(t.TempDir(), "test.db"),
		WALMode:     true,
		BusyTimeout: 1,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return db
}

func TestMigrate_CreatesCollections(t *testing.T) {
	db := openMigratedDB(t)
	ctx := context.Background()

	for _, table := range []string{"sensors", "platforms", "permanent_hosts", "deployments", "locations"} {
		var name string
		err := db.QueryRowContext(ctx,
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q missing after migration: %v", table, err)
		}
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	db := openMigratedDB(t)

	// A second run must be a no-op, not a duplicate-table failure.
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrate_LiveIDUniqueness(t *testing.T) {
	db := openMigratedDB(t)
	ctx := context.Background()

	insert := `INSERT INTO sensors (id, doc, created_at, updated_at, deleted_at)
	           VALUES (?, '{}', '2026-03-01T00:00:00Z', '2026-03-01T00:00:00Z', ?)`

	if _, err := db.ExecContext(ctx, insert, "sensor-1", nil); err != nil {
		t.Fatalf("inserting live row: %v", err)
	}

	// Duplicate live id must violate the partial unique index.
	if _, err := db.ExecContext(ctx, insert, "sensor-1", nil); err == nil {
		t.Error("duplicate live id accepted, want unique constraint violation")
	}

	// A soft-deleted row with the same id is allowed.
	if _, err := db.ExecContext(ctx, insert, "sensor-2", "2026-03-01T01:00:00Z"); err != nil {
		t.Fatalf("inserting deleted row: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "sensor-2", nil); err != nil {
		t.Errorf("live row with id of a deleted row rejected: %v", err)
	}
}
