package persistence

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/cavepedia/cavepedia/domain/document"
	"github.com/cavepedia/cavepedia/domain/repository"
	"github.com/cavepedia/cavepedia/domain/search"
	"github.com/cavepedia/cavepedia/internal/database"
	"gorm.io/gorm"
)

// candidateRow is a nearest-search row without the embedding column.
type candidateRow struct {
	ID       int64   `gorm:"column:id"`
	Role     string  `gorm:"column:role"`
	Bucket   string  `gorm:"column:bucket"`
	Key      string  `gorm:"column:key"`
	Content  *string `gorm:"column:content"`
	Distance float64 `gorm:"column:distance"`
}

func (r candidateRow) candidate() search.Candidate {
	return search.Candidate{
		Unit:     document.ReconstructUnit(r.ID, r.Role, r.Bucket, r.Key, r.Content, nil),
		Distance: r.Distance,
	}
}

// Nearest returns embedded units readable by query.Roles, nearest first by
// cosine distance.
func (s UnitStore) Nearest(ctx context.Context, query search.NearestQuery) ([]search.Candidate, error) {
	if len(query.Roles) == 0 || len(query.Vector) == 0 || query.Limit <= 0 {
		return []search.Candidate{}, nil
	}
	if s.Database().IsPostgres() {
		return s.nearestPgvector(ctx, query)
	}
	return s.nearestInMemory(ctx, query)
}

func (s UnitStore) scoped(ctx context.Context, query search.NearestQuery) *gorm.DB {
	db := database.ApplyConditions(s.DB(ctx).Model(&UnitModel{}),
		document.WithRoles(query.Roles),
		document.WithEmbedded(true),
	)
	if query.MinContentLength > 0 {
		db = db.Where("LENGTH(content) > ?", query.MinContentLength)
	}
	return db
}

func (s UnitStore) nearestPgvector(ctx context.Context, query search.NearestQuery) ([]search.Candidate, error) {
	var rows []candidateRow
	err := s.scoped(ctx, query).
		Select("id, role, bucket, key, content, embedding <=> ?::vector AS distance", database.NewPgVector(query.Vector).String()).
		Order("distance ASC").
		Limit(query.Limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("nearest units: %w", err)
	}

	out := make([]search.Candidate, len(rows))
	for i, r := range rows {
		out[i] = r.candidate()
	}
	return out, nil
}

func (s UnitStore) nearestInMemory(ctx context.Context, query search.NearestQuery) ([]search.Candidate, error) {
	var models []UnitModel
	if err := s.scoped(ctx, query).Find(&models).Error; err != nil {
		return nil, fmt.Errorf("load embedded units: %w", err)
	}

	out := make([]search.Candidate, 0, len(models))
	for _, m := range models {
		out = append(out, candidateRow{
			ID:       m.ID,
			Role:     m.Role,
			Bucket:   m.Bucket,
			Key:      m.Key,
			Content:  m.Content,
			Distance: CosineDistance(query.Vector, m.Embedding.Floats()),
		}.candidate())
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if len(out) > query.Limit {
		out = out[:query.Limit]
	}
	return out, nil
}

// Page returns the extracted unit with key if one of roles may read it.
func (s UnitStore) Page(ctx context.Context, key string, roles []string) (document.Unit, error) {
	if len(roles) == 0 {
		return document.Unit{}, search.ErrNotFound
	}
	unit, err := s.FindOne(ctx,
		document.WithKey(key),
		document.WithRoles(roles),
		document.WithState(document.StateExtracted),
		repository.WithOrderAsc("id"),
	)
	if errors.Is(err, database.ErrNotFound) {
		return document.Unit{}, fmt.Errorf("%w: %s", search.ErrNotFound, key)
	}
	if err != nil {
		return document.Unit{}, err
	}
	return unit, nil
}

// CosineSimilarity computes the cosine similarity between two vectors.
// Returns a value between -1 (opposite) and 1 (identical), and 0 when the
// lengths differ or either vector has zero magnitude.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, magA, magB float64
	for i := range a {
		dot += a[i] * b[i]
		magA += a[i] * a[i]
		magB += b[i] * b[i]
	}

	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// CosineDistance matches pgvector's <=> operator: 1 - cosine similarity.
func CosineDistance(a, b []float64) float64 {
	return 1 - CosineSimilarity(a, b)
}
