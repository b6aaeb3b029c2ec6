// Package store implements the persistence layer over PostgreSQL. All
// multi-row state transitions run inside explicit transactions via InTx.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// querier is the subset of sqlx satisfied by both *sqlx.DB and *sqlx.Tx,
// letting the same repository methods run inside or outside a transaction.
type querier interface {
	sqlx.ExtContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Store provides repository operations for runs and their artifacts.
type Store struct {
	q  querier
	db *sqlx.DB // nil when tx-bound
}

// New creates a Store over a database handle.
func New(db *sqlx.DB) *Store {
	return &Store{q: db, db: db}
}

// InTx runs fn against a transaction-bound Store. The transaction commits if
// fn returns nil and rolls back otherwise. Calling InTx on a Store that is
// already tx-bound reuses the open transaction.
func (s *Store) InTx(ctx context.Context, fn func(*Store) error) error {
	if s.db == nil {
		return fn(s)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txStore := &Store{q: tx}
	if err := fn(txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed (%v) after: %w", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
