// Package persistence provides database storage implementations.
package persistence

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cavepedia/cavepedia/internal/database"
	"gorm.io/gorm"
)

// DefaultDimension is the embedding width the embeddings table is created with.
const DefaultDimension = 1536

// SQL specific to pgvector.
const (
	pgvCreateExtension = `CREATE EXTENSION IF NOT EXISTS vector`

	pgvCreateUnitTable = `
CREATE TABLE IF NOT EXISTS embeddings (
    id BIGSERIAL PRIMARY KEY,
    role TEXT NOT NULL,
    bucket TEXT NOT NULL,
    key TEXT NOT NULL,
    content TEXT,
    embedding VECTOR(%d),
    CONSTRAINT embeddings_bucket_key UNIQUE (bucket, key)
)`

	pgvCreateIndexes = `
CREATE INDEX IF NOT EXISTS embeddings_role_idx ON embeddings (role);
CREATE INDEX IF NOT EXISTS embeddings_embedding_idx
ON embeddings
USING hnsw (embedding vector_cosine_ops)`

	pgvCheckDimension = `
SELECT a.atttypmod AS dimension
FROM pg_attribute a
JOIN pg_class c ON a.attrelid = c.oid
WHERE c.relname = 'embeddings'
AND a.attname = 'embedding'`
)

var (
	// ErrPgvectorInitializationFailed indicates the vector extension or table could not be set up.
	ErrPgvectorInitializationFailed = errors.New("failed to initialize pgvector schema")

	// ErrDimensionMismatch indicates the existing vector column has a different width.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// AutoMigrate creates or updates the metadata, batches and embeddings tables.
// dimension fixes the width of the PostgreSQL vector column.
func AutoMigrate(db database.Database, dimension int) error {
	gdb := db.GORM()
	if err := gdb.AutoMigrate(&DocumentModel{}, &BatchModel{}); err != nil {
		return fmt.Errorf("migrate ledger tables: %w", err)
	}
	if !db.IsPostgres() {
		if err := gdb.AutoMigrate(&UnitModel{}); err != nil {
			return fmt.Errorf("migrate embeddings table: %w", err)
		}
		return nil
	}
	return migratePgvector(gdb, dimension)
}

func migratePgvector(gdb *gorm.DB, dimension int) error {
	if err := gdb.Exec(pgvCreateExtension).Error; err != nil {
		return errors.Join(ErrPgvectorInitializationFailed, fmt.Errorf("create extension: %w", err))
	}
	if err := gdb.Exec(fmt.Sprintf(pgvCreateUnitTable, dimension)).Error; err != nil {
		return errors.Join(ErrPgvectorInitializationFailed, fmt.Errorf("create table: %w", err))
	}
	for _, stmt := range strings.Split(pgvCreateIndexes, ";") {
		if err := gdb.Exec(stmt).Error; err != nil {
			slog.Warn("failed to create embeddings index", "error", err)
		}
	}

	var existing int
	result := gdb.Raw(pgvCheckDimension).Scan(&existing)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return errors.Join(ErrPgvectorInitializationFailed, fmt.Errorf("check dimension: %w", result.Error))
	}
	if result.RowsAffected > 0 && existing != dimension {
		return fmt.Errorf("%w: database has %d, provider has %d", ErrDimensionMismatch, existing, dimension)
	}
	return nil
}

func allModels() []any {
	return []any{&DocumentModel{}, &BatchModel{}, &UnitModel{}}
}

// ValidateSchema verifies every model field has a column in the database.
func ValidateSchema(db database.Database) error {
	gdb := db.GORM()
	migrator := gdb.Migrator()

	var missing []string
	for _, model := range allModels() {
		stmt := &gorm.Statement{DB: gdb}
		if err := stmt.Parse(model); err != nil {
			return fmt.Errorf("parse model schema: %w", err)
		}

		columnTypes, err := migrator.ColumnTypes(model)
		if err != nil {
			return fmt.Errorf("get column types for %s: %w", stmt.Table, err)
		}

		actual := make(map[string]bool, len(columnTypes))
		for _, ct := range columnTypes {
			actual[ct.Name()] = true
		}

		for _, field := range stmt.Schema.Fields {
			if field.DBName == "" || field.DBName == "-" {
				continue
			}
			if !actual[field.DBName] {
				missing = append(missing, stmt.Table+"."+field.DBName)
			}
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("schema validation failed, missing columns: %s", strings.Join(missing, ", "))
	}
	return nil
}
