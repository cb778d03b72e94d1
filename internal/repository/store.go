package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// Store is a Querier that can also run a function inside a transaction.
type Store interface {
	Querier
	// ExecTx runs fn in a transaction. The transaction commits if fn returns
	// nil and rolls back otherwise.
	ExecTx(ctx context.Context, fn func(Querier) error) error
}

// SQLStore is the Postgres-backed Store.
type SQLStore struct {
	*Queries
	db *sql.DB
}

// NewStore wraps db.
func NewStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		Queries: New(db),
		db:      db,
	}
}

// DB returns the underlying pool.
func (s *SQLStore) DB() *sql.DB {
	return s.db
}

func (s *SQLStore) ExecTx(ctx context.Context, fn func(Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(s.Queries.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
