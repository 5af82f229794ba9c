package db

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// ErrRetriesExceeded is returned when a transaction still fails with a
// retryable error after the max number of attempts.
var ErrRetriesExceeded = errors.New("db tx retries exceeded")

// MapSQLError classifies a raw driver error into one of the error types
// the transaction executor knows how to react to. Errors that need no
// special handling pass through unchanged.
func MapSQLError(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return mapSqliteError(sqliteErr)
	}

	return err
}

// mapSqliteError lifts the two sqlite conditions that make a transaction
// worth retrying into their classified forms.
func mapSqliteError(sqliteErr sqlite3.Error) error {
	switch sqliteErr.Code {
	// Another connection holds the database; trying again later can
	// succeed.
	case sqlite3.ErrBusy:
		return &ErrSerializationError{DBError: sqliteErr}

	// A write conflicted within the same connection.
	case sqlite3.ErrLocked:
		return &ErrDeadlockError{DBError: sqliteErr}

	default:
		return fmt.Errorf("sqlite error: %w", sqliteErr)
	}
}

// ErrSerializationError wraps a driver error meaning the transaction could
// not be serialized against concurrent ones.
type ErrSerializationError struct {
	DBError error
}

// Unwrap returns the wrapped error.
func (e ErrSerializationError) Unwrap() error {
	return e.DBError
}

// Error returns the error message.
func (e ErrSerializationError) Error() string {
	return e.DBError.Error()
}

// ErrDeadlockError wraps a driver error meaning lock acquisition became
// cyclic.
type ErrDeadlockError struct {
	DBError error
}

// Unwrap returns the wrapped error.
func (e ErrDeadlockError) Unwrap() error {
	return e.DBError
}

// Error returns the error message.
func (e ErrDeadlockError) Error() string {
	return e.DBError.Error()
}

// IsSerializationOrDeadlockError reports whether retrying the enclosing
// transaction is worthwhile.
func IsSerializationOrDeadlockError(err error) bool {
	var (
		serialization *ErrSerializationError
		deadlock      *ErrDeadlockError
	)
	return errors.As(err, &serialization) || errors.As(err, &deadlock)
}
