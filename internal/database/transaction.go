package database

import (
	"context"

	"gorm.io/gorm"
)

// WithTransaction runs fn inside one transaction. An error from fn, or a
// panic, rolls it back; otherwise it commits.
func WithTransaction(ctx context.Context, db Database, fn func(tx *gorm.DB) error) error {
	return db.Session(ctx).Transaction(fn)
}

// WithTransactionResult is WithTransaction for fn that produces a value. The
// value is only returned when the transaction commits.
func WithTransactionResult[T any](ctx context.Context, db Database, fn func(tx *gorm.DB) (T, error)) (T, error) {
	var result T
	err := WithTransaction(ctx, db, func(tx *gorm.DB) error {
		var err error
		result, err = fn(tx)
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
