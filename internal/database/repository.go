package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/cavepedia/cavepedia/domain/repository"
	"gorm.io/gorm"
)

// ErrNotFound indicates the requested entity was not found.
var ErrNotFound = errors.New("entity not found")

// EntityMapper defines the interface for mapping between domain and database model types.
type EntityMapper[D any, E any] interface {
	ToDomain(entity E) D
	ToModel(domain D) E
}

// Repository provides generic persistence operations for one table
// using repository.Option-based queries.
type Repository[D any, E any] struct {
	db     Database
	mapper EntityMapper[D, E]
	label  string
}

// NewRepository creates a new Repository.
func NewRepository[D any, E any](db Database, mapper EntityMapper[D, E], label string) Repository[D, E] {
	return Repository[D, E]{
		db:     db,
		mapper: mapper,
		label:  label,
	}
}

func (r Repository[D, E]) model(ctx context.Context) *gorm.DB {
	return r.db.Session(ctx).Model(new(E))
}

// Find retrieves entities matching the given options.
func (r Repository[D, E]) Find(ctx context.Context, options ...repository.Option) ([]D, error) {
	var entities []E
	if err := ApplyOptions(r.model(ctx), options...).Find(&entities).Error; err != nil {
		return nil, fmt.Errorf("find %s: %w", r.label, err)
	}
	return r.toDomain(entities), nil
}

// FindOne retrieves a single entity matching the given options.
func (r Repository[D, E]) FindOne(ctx context.Context, options ...repository.Option) (D, error) {
	var entity E
	var zero D
	err := ApplyOptions(r.db.Session(ctx), options...).First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return zero, fmt.Errorf("%w: %s", ErrNotFound, r.label)
	}
	if err != nil {
		return zero, fmt.Errorf("find one %s: %w", r.label, err)
	}
	return r.mapper.ToDomain(entity), nil
}

// Exists checks if any entity matches the given options.
func (r Repository[D, E]) Exists(ctx context.Context, options ...repository.Option) (bool, error) {
	n, err := r.Count(ctx, options...)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Count returns the number of entities matching the given options.
func (r Repository[D, E]) Count(ctx context.Context, options ...repository.Option) (int64, error) {
	var count int64
	if err := ApplyConditions(r.model(ctx), options...).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count %s: %w", r.label, err)
	}
	return count, nil
}

// Update sets the given columns on every entity matching the options and
// returns the number of rows changed.
func (r Repository[D, E]) Update(ctx context.Context, values map[string]any, options ...repository.Option) (int64, error) {
	return UpdateWith(r.model(ctx), values, options...)
}

// DeleteBy removes entities matching the given options.
func (r Repository[D, E]) DeleteBy(ctx context.Context, options ...repository.Option) error {
	if err := ApplyConditions(r.db.Session(ctx), options...).Delete(new(E)).Error; err != nil {
		return fmt.Errorf("delete %s: %w", r.label, err)
	}
	return nil
}

// DB returns a GORM session bound to ctx.
func (r Repository[D, E]) DB(ctx context.Context) *gorm.DB {
	return r.db.Session(ctx)
}

// Database returns the connection the repository was built on.
func (r Repository[D, E]) Database() Database {
	return r.db
}

// Mapper returns the entity mapper for external use.
func (r Repository[D, E]) Mapper() EntityMapper[D, E] {
	return r.mapper
}

func (r Repository[D, E]) toDomain(entities []E) []D {
	domains := make([]D, len(entities))
	for i, entity := range entities {
		domains[i] = r.mapper.ToDomain(entity)
	}
	return domains
}

// UpdateWith applies an option-filtered column update on a session that
// already has its model set. Transactions use it with their own session.
func UpdateWith(db *gorm.DB, values map[string]any, options ...repository.Option) (int64, error) {
	result := ApplyConditions(db, options...).Updates(values)
	if result.Error != nil {
		return 0, fmt.Errorf("update: %w", result.Error)
	}
	return result.RowsAffected, nil
}
