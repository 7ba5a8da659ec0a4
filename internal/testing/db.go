// Package testing provides shared helpers for the engine's package tests.
package testing

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/aristath/skinsentinel/internal/database"
)

// NewTestDB creates a migrated SQLite database in a per-test temporary
// directory. The connection is closed automatically when the test ends.
//
// Supported schema names:
//   - "journal" - applies journal_schema.sql
//   - Unknown names - creates empty database (no schema applied)
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: database.ProfileStandard,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(context.Background()); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	})

	return db
}
