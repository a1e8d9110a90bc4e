package persistence

import (
	"context"
	"fmt"

	"github.com/cavepedia/cavepedia/domain/document"
	"github.com/cavepedia/cavepedia/domain/repository"
	"github.com/cavepedia/cavepedia/internal/database"
	"gorm.io/gorm"
)

// UnitStore implements document.UnitStore and search.Index using GORM.
// Nearest-neighbour search runs in the database on PostgreSQL and in
// memory on SQLite.
type UnitStore struct {
	database.Repository[document.Unit, UnitModel]
}

// NewUnitStore creates a new UnitStore.
func NewUnitStore(db database.Database) UnitStore {
	return UnitStore{
		Repository: database.NewRepository[document.Unit, UnitModel](db, unitMapper{}, "unit"),
	}
}

// Claim marks pending units among ids as claimed for OCR and returns the
// ids it changed, in the order given.
func (s UnitStore) Claim(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	claimed, err := database.WithTransactionResult(ctx, s.Database(), func(tx *gorm.DB) ([]int64, error) {
		var claimed []int64
		for _, id := range ids {
			res := tx.Model(&UnitModel{}).
				Where("id = ? AND content IS NULL", id).
				Update("content", document.ContentClaimed)
			if res.Error != nil {
				return nil, res.Error
			}
			if res.RowsAffected == 1 {
				claimed = append(claimed, id)
			}
		}
		return claimed, nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim units: %w", err)
	}
	return claimed, nil
}

// SaveExtraction writes OCR output into a claimed unit.
func (s UnitStore) SaveExtraction(ctx context.Context, e document.Extraction) error {
	_, err := s.Update(ctx,
		map[string]any{"content": e.Content()},
		repository.WithID(e.UnitID()),
		document.WithState(document.StateClaimed),
	)
	if err != nil {
		return fmt.Errorf("save extraction for unit %d: %w", e.UnitID(), err)
	}
	return nil
}

// SaveEmbedding stores the vector of an extracted unit.
func (s UnitStore) SaveEmbedding(ctx context.Context, unitID int64, embedding []float64) error {
	n, err := s.Update(ctx,
		map[string]any{"embedding": database.NewPgVector(embedding)},
		repository.WithID(unitID),
		document.WithState(document.StateExtracted),
	)
	if err != nil {
		return fmt.Errorf("save embedding for unit %d: %w", unitID, err)
	}
	if n == 0 {
		return fmt.Errorf("save embedding for unit %d: %w", unitID, database.ErrNotFound)
	}
	return nil
}

// Reset returns units holding one of contents to pending and clears their
// embeddings.
func (s UnitStore) Reset(ctx context.Context, contents []string) (int64, error) {
	if len(contents) == 0 {
		return 0, nil
	}
	n, err := s.Update(ctx,
		map[string]any{"content": nil, "embedding": nil},
		repository.WithConditionIn("content", contents),
	)
	if err != nil {
		return 0, fmt.Errorf("reset units: %w", err)
	}
	return n, nil
}

// Rekey applies renames in order inside one transaction.
func (s UnitStore) Rekey(ctx context.Context, renames []document.Rename) error {
	return database.WithTransaction(ctx, s.Database(), func(tx *gorm.DB) error {
		for _, r := range renames {
			if err := tx.Model(&UnitModel{}).Where("key = ?", r.From).Update("key", r.To).Error; err != nil {
				return fmt.Errorf("rename %s to %s: %w", r.From, r.To, err)
			}
		}
		return nil
	})
}
