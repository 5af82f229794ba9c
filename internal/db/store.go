package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Store is the SQLite connection handle shared by the storage layers.
// It embeds BaseDB for the TxOptions-aware BeginTx.
type Store struct {
	*BaseDB

	log *slog.Logger
}

// NewStore wraps an open connection.
func NewStore(db *sql.DB, log *slog.Logger) *Store {
	return &Store{
		BaseDB: NewBaseDB(db),
		log:    log,
	}
}

// DB exposes the raw connection, mostly for the migration tooling.
func (s *Store) DB() *sql.DB {
	return s.BaseDB.DB
}

// TxFunc is a callback that runs all of its statements on the given
// transaction.
type TxFunc func(ctx context.Context, tx *sql.Tx) error

// WithTx runs fn inside a write transaction, committing on success and
// rolling back on error. The fn error wins over any rollback error.
func (s *Store) WithTx(ctx context.Context, fn TxFunc) error {
	tx, err := s.BeginTx(ctx, WriteTxOption())
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("tx error: %w, rollback error: %v",
				err, rbErr)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.BaseDB.DB.Close()
}
