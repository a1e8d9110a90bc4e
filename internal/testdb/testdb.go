// Package testdb provides a shared test database helper for fast,
// realistic testing against an in-memory SQLite database.
package testdb

import (
	"context"
	"testing"

	"github.com/cavepedia/cavepedia/infrastructure/persistence"
	"github.com/cavepedia/cavepedia/internal/database"
)

// New creates an in-memory SQLite database with all migrations applied.
// The database is automatically closed when the test finishes.
func New(t *testing.T) database.Database {
	t.Helper()
	db := NewPlain(t)
	if err := persistence.AutoMigrate(db, persistence.DefaultDimension); err != nil {
		t.Fatalf("testdb.New: auto migrate: %v", err)
	}
	return db
}

// NewPlain creates an in-memory SQLite database without running migrations.
func NewPlain(t *testing.T) database.Database {
	t.Helper()
	db, err := database.NewDatabase(context.Background(), "sqlite:///:memory:")
	if err != nil {
		t.Fatalf("testdb.NewPlain: open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
