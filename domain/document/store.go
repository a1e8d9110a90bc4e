package document

import (
	"context"

	"github.com/cavepedia/cavepedia/domain/repository"
)

// DocumentStore persists the import ledger.
type DocumentStore interface {
	// Create inserts doc. It reports false, with no error, when a document
	// with the same bucket and key already exists.
	Create(ctx context.Context, doc Document) (bool, error)
	Find(ctx context.Context, options ...repository.Option) ([]Document, error)
	Count(ctx context.Context, options ...repository.Option) (int64, error)
	// CompleteSplit records the units of doc and marks it split in one
	// transaction. Units whose key already exists are left untouched.
	CompleteSplit(ctx context.Context, doc Document, units []Unit) error
}

// UnitStore persists page units.
type UnitStore interface {
	Find(ctx context.Context, options ...repository.Option) ([]Unit, error)
	FindOne(ctx context.Context, options ...repository.Option) (Unit, error)
	Count(ctx context.Context, options ...repository.Option) (int64, error)
	// Claim marks the pending units among ids as claimed and returns the ids
	// that changed. Units already claimed or extracted are skipped.
	Claim(ctx context.Context, ids []int64) ([]int64, error)
	// SaveExtraction writes an extraction into a claimed unit.
	SaveExtraction(ctx context.Context, extraction Extraction) error
	// SaveEmbedding stores the vector of an extracted unit.
	SaveEmbedding(ctx context.Context, unitID int64, embedding []float64) error
	// Reset returns units whose content is one of contents to pending,
	// clearing any embedding, and reports how many changed.
	Reset(ctx context.Context, contents []string) (int64, error)
	// Rekey renames unit keys in the given order in one transaction.
	Rekey(ctx context.Context, renames []Rename) error
}

// BatchStore persists OCR batches.
type BatchStore interface {
	Create(ctx context.Context, batch Batch) (Batch, error)
	Find(ctx context.Context, options ...repository.Option) ([]Batch, error)
	Count(ctx context.Context, options ...repository.Option) (int64, error)
	// Complete writes every extraction into its claimed unit and marks the
	// batch done in one transaction.
	Complete(ctx context.Context, batch Batch, extractions []Extraction) error
}

// Rename moves a unit from one key to another.
type Rename struct {
	From string
	To   string
}
