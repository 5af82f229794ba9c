package db

import (
	"context"
	"database/sql"
	"time"
)

const (
	// DefaultNumTxRetries is how many times a transaction is re-run
	// after hitting a retryable serialization or deadlock error.
	DefaultNumTxRetries = 10

	// DefaultInitialRetryDelay seeds the backoff between retries. The
	// actual first delay is randomized between 50% and 150% of this
	// value so that goroutines started together do not retry in
	// lockstep, then doubles per attempt up to DefaultMaxRetryDelay.
	DefaultInitialRetryDelay = time.Millisecond * 40

	// DefaultMaxRetryDelay caps the backoff between retries.
	DefaultMaxRetryDelay = time.Second * 3
)

// TxOptions controls what kind of database transaction is opened.
type TxOptions interface {
	// ReadOnly reports whether the transaction only reads.
	ReadOnly() bool
}

// BaseTxOptions is the plain TxOptions implementation used throughout
// this package.
type BaseTxOptions struct {
	readOnly bool
}

// ReadOnly implements TxOptions.
func (a *BaseTxOptions) ReadOnly() bool {
	return a.readOnly
}

// ReadTxOption returns options for a read-only transaction.
func ReadTxOption() *BaseTxOptions {
	return &BaseTxOptions{readOnly: true}
}

// WriteTxOption returns options for a read-write transaction.
func WriteTxOption() *BaseTxOptions {
	return &BaseTxOptions{readOnly: false}
}

// BatchedTx runs a set of queries against storage in one atomic
// transaction. Q is the query interface a storage layer needs, which
// lets that layer depend only on the routines it actually calls.
type BatchedTx[Q any] interface {
	// ExecTx runs txBody inside a single transaction, handing it a Q
	// bound to that transaction. txOptions selects read-only vs
	// read-write.
	ExecTx(ctx context.Context, txOptions TxOptions,
		txBody func(Q) error) error
}

// QueryCreator binds a query interface to an open transaction. It is
// how a BatchedTx turns a raw *sql.Tx into the Q its callers operate
// on.
type QueryCreator[Q any] func(*sql.Tx) Q

// BatchedQuerier is the minimal surface a BatchedTx needs from the
// underlying database: the ability to open a transaction from abstract
// options.
type BatchedQuerier interface {
	// BeginTx opens a new transaction with the given options.
	BeginTx(ctx context.Context, options TxOptions) (*sql.Tx, error)
}

// BaseDB wraps *sql.DB so concrete stores can embed it and pick up the
// TxOptions-aware BeginTx.
type BaseDB struct {
	*sql.DB
}

// NewBaseDB wraps an open connection.
func NewBaseDB(db *sql.DB) *BaseDB {
	return &BaseDB{DB: db}
}

// BeginTx maps the abstract TxOptions onto sql.TxOptions and opens the
// transaction.
func (s *BaseDB) BeginTx(ctx context.Context, opts TxOptions) (*sql.Tx, error) {
	return s.DB.BeginTx(ctx, &sql.TxOptions{
		ReadOnly: opts.ReadOnly(),
	})
}
