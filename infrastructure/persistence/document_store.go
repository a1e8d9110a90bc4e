package persistence

import (
	"context"
	"fmt"

	"github.com/cavepedia/cavepedia/domain/document"
	"github.com/cavepedia/cavepedia/internal/database"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const unitInsertBatchSize = 200

// DocumentStore implements document.DocumentStore using GORM.
type DocumentStore struct {
	database.Repository[document.Document, DocumentModel]
}

// NewDocumentStore creates a new DocumentStore.
func NewDocumentStore(db database.Database) DocumentStore {
	return DocumentStore{
		Repository: database.NewRepository[document.Document, DocumentModel](db, documentMapper{}, "document"),
	}
}

// Create inserts doc, reporting false when the bucket and key already exist.
func (s DocumentStore) Create(ctx context.Context, doc document.Document) (bool, error) {
	model := s.Mapper().ToModel(doc)
	result := s.DB(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&model)
	if result.Error != nil {
		return false, fmt.Errorf("create document %s: %w", doc.Key(), result.Error)
	}
	return result.RowsAffected > 0, nil
}

// CompleteSplit records units and marks doc split in one transaction.
func (s DocumentStore) CompleteSplit(ctx context.Context, doc document.Document, units []document.Unit) error {
	models := make([]UnitModel, len(units))
	for i, u := range units {
		models[i] = unitMapper{}.ToModel(u)
	}

	return database.WithTransaction(ctx, s.Database(), func(tx *gorm.DB) error {
		if len(models) > 0 {
			err := tx.Clauses(clause.OnConflict{DoNothing: true}).
				CreateInBatches(&models, unitInsertBatchSize).Error
			if err != nil {
				return fmt.Errorf("insert units for %s: %w", doc.Key(), err)
			}
		}
		err := tx.Model(&DocumentModel{}).Where("id = ?", doc.ID()).Update("split", true).Error
		if err != nil {
			return fmt.Errorf("mark %s split: %w", doc.Key(), err)
		}
		return nil
	})
}
