package persistence

import (
	"context"
	"fmt"

	"github.com/cavepedia/cavepedia/domain/document"
	"github.com/cavepedia/cavepedia/internal/database"
	"gorm.io/gorm"
)

// BatchStore implements document.BatchStore using GORM.
type BatchStore struct {
	database.Repository[document.Batch, BatchModel]
}

// NewBatchStore creates a new BatchStore.
func NewBatchStore(db database.Database) BatchStore {
	return BatchStore{
		Repository: database.NewRepository[document.Batch, BatchModel](db, batchMapper{}, "batch"),
	}
}

// Create records a newly submitted batch.
func (s BatchStore) Create(ctx context.Context, batch document.Batch) (document.Batch, error) {
	model := s.Mapper().ToModel(batch)
	if err := s.DB(ctx).Create(&model).Error; err != nil {
		return document.Batch{}, fmt.Errorf("create batch %s: %w", batch.BatchID(), err)
	}
	return s.Mapper().ToDomain(model), nil
}

// Complete writes extractions into claimed units and marks the batch done.
// Units that are no longer claimed keep their content.
func (s BatchStore) Complete(ctx context.Context, batch document.Batch, extractions []document.Extraction) error {
	return database.WithTransaction(ctx, s.Database(), func(tx *gorm.DB) error {
		for _, e := range extractions {
			err := tx.Model(&UnitModel{}).
				Where("id = ? AND content = ?", e.UnitID(), document.ContentClaimed).
				Update("content", e.Content()).Error
			if err != nil {
				return fmt.Errorf("apply result for unit %d: %w", e.UnitID(), err)
			}
		}
		if err := tx.Model(&BatchModel{}).Where("id = ?", batch.ID()).Update("done", true).Error; err != nil {
			return fmt.Errorf("mark batch %s done: %w", batch.BatchID(), err)
		}
		return nil
	})
}
