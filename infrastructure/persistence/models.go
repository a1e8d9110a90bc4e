package persistence

import (
	"github.com/cavepedia/cavepedia/domain/document"
	"github.com/cavepedia/cavepedia/internal/database"
)

// DocumentModel is the import ledger row, one per uploaded file.
type DocumentModel struct {
	ID     int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Bucket string `gorm:"column:bucket;not null;uniqueIndex:metadata_bucket_key"`
	Key    string `gorm:"column:key;not null;uniqueIndex:metadata_bucket_key"`
	Split  bool   `gorm:"column:split;not null;default:false;index"`
}

// TableName returns the table name.
func (DocumentModel) TableName() string { return "metadata" }

// BatchModel tracks one provider-side OCR batch.
type BatchModel struct {
	ID       int64  `gorm:"column:id;primaryKey;autoIncrement"`
	Platform string `gorm:"column:platform;not null"`
	BatchID  string `gorm:"column:batch_id;not null"`
	Type     string `gorm:"column:type;not null"`
	Done     bool   `gorm:"column:done;not null;default:false;index"`
}

// TableName returns the table name.
func (BatchModel) TableName() string { return "batches" }

// UnitModel is a page unit with its extracted content and embedding.
// On PostgreSQL the table is created by hand so embedding can be a
// fixed-dimension vector column; SQLite stores the vector literal as text.
type UnitModel struct {
	ID        int64             `gorm:"column:id;primaryKey;autoIncrement"`
	Role      string            `gorm:"column:role;not null;index"`
	Bucket    string            `gorm:"column:bucket;not null;uniqueIndex:embeddings_bucket_key"`
	Key       string            `gorm:"column:key;not null;uniqueIndex:embeddings_bucket_key"`
	Content   *string           `gorm:"column:content;type:text"`
	Embedding database.PgVector `gorm:"column:embedding;type:text"`
}

// TableName returns the table name.
func (UnitModel) TableName() string { return "embeddings" }

type documentMapper struct{}

func (documentMapper) ToDomain(m DocumentModel) document.Document {
	return document.ReconstructDocument(m.ID, m.Bucket, m.Key, m.Split)
}

func (documentMapper) ToModel(d document.Document) DocumentModel {
	return DocumentModel{ID: d.ID(), Bucket: d.Bucket(), Key: d.Key(), Split: d.Split()}
}

type batchMapper struct{}

func (batchMapper) ToDomain(m BatchModel) document.Batch {
	return document.ReconstructBatch(m.ID, m.Platform, m.BatchID, m.Type, m.Done)
}

func (batchMapper) ToModel(b document.Batch) BatchModel {
	return BatchModel{ID: b.ID(), Platform: b.Platform(), BatchID: b.BatchID(), Type: b.Type(), Done: b.Done()}
}

type unitMapper struct{}

func (unitMapper) ToDomain(m UnitModel) document.Unit {
	return document.ReconstructUnit(m.ID, m.Role, m.Bucket, m.Key, m.Content, m.Embedding.Floats())
}

func (unitMapper) ToModel(u document.Unit) UnitModel {
	m := UnitModel{ID: u.ID(), Role: u.Role(), Bucket: u.Bucket(), Key: u.Key(), Embedding: database.NewPgVector(u.Embedding())}
	if content, ok := u.Content(); ok {
		m.Content = &content
	}
	return m
}
