package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/zeromicro/go-zero/core/logx"
)

// BaseRepository provides the common sqlx plumbing the Postgres-backed
// stores build on: a transaction wrapper with panic-safe rollback, plus
// access to the underlying pool for query shapes the wrapper doesn't
// generalize.
type BaseRepository struct {
	db *sqlx.DB
}

func NewBaseRepository(db *sqlx.DB) *BaseRepository {
	return &BaseRepository{db: db}
}

// Transaction runs fn inside a transaction, rolling back on error or
// panic and committing otherwise. The outbox claim-and-publish query
// (pkg/outbox.Repository.Claim) builds on this exact shape.
func (r *BaseRepository) Transaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		logx.WithContext(ctx).Errorf("failed to begin transaction: %v", err)
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	err = fn(tx)
	return err
}

// DB returns the underlying connection pool for callers that need query
// shapes Transaction doesn't cover (such as bounded-batch deletes).
func (r *BaseRepository) DB() *sqlx.DB {
	return r.db
}
