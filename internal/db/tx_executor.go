package db

import (
	"context"
	"log/slog"
	"math"
	prand "math/rand"
	"time"
)

// txExecutorOptions tunes how the executor retries a transaction that
// failed with a retryable error.
type txExecutorOptions struct {
	numRetries        int
	initialRetryDelay time.Duration
	maxRetryDelay     time.Duration
}

func defaultTxExecutorOptions() *txExecutorOptions {
	return &txExecutorOptions{
		numRetries:        DefaultNumTxRetries,
		initialRetryDelay: DefaultInitialRetryDelay,
		maxRetryDelay:     DefaultMaxRetryDelay,
	}
}

// randRetryDelay computes the wait before the given retry attempt: the
// initial delay jittered into a 50%-150% band, doubled per attempt, capped
// at the configured maximum.
func (t *txExecutorOptions) randRetryDelay(attempt int) time.Duration {
	halfDelay := t.initialRetryDelay / 2
	randDelay := prand.Int63n(int64(t.initialRetryDelay)) //nolint:gosec

	initialDelay := halfDelay + time.Duration(randDelay)

	if attempt == 0 {
		return initialDelay
	}

	// Doubling n times is multiplying by 2^n; the exponent is clamped so
	// the factor cannot overflow a Duration.
	factor := time.Duration(math.Pow(2, math.Min(float64(attempt), 32)))
	//nolint:durationcheck
	actualDelay := initialDelay * factor

	if actualDelay > t.maxRetryDelay {
		return t.maxRetryDelay
	}

	return actualDelay
}

// TxExecutorOption overrides one retry parameter of a new executor.
type TxExecutorOption func(*txExecutorOptions)

// WithTxRetries sets how many times a transaction is attempted before the
// executor gives up with ErrRetriesExceeded.
func WithTxRetries(numRetries int) TxExecutorOption {
	return func(o *txExecutorOptions) {
		o.numRetries = numRetries
	}
}

// WithTxRetryDelay sets the base delay before a failed transaction is
// retried.
func WithTxRetryDelay(delay time.Duration) TxExecutorOption {
	return func(o *txExecutorOptions) {
		o.initialRetryDelay = delay
	}
}

// TransactionExecutor runs query bodies inside database transactions,
// retrying bodies that fail with a serialization or deadlock error. The
// QueryCreator wraps each fresh transaction in the caller's typed query
// struct, so storage packages never touch *sql.Tx directly.
type TransactionExecutor[Query any] struct {
	BatchedQuerier

	createQuery QueryCreator[Query]

	opts *txExecutorOptions

	log *slog.Logger
}

// NewTransactionExecutor creates an executor over the given database for
// one concrete query type.
func NewTransactionExecutor[Querier any](db BatchedQuerier,
	createQuery QueryCreator[Querier], log *slog.Logger,
	opts ...TxExecutorOption,
) *TransactionExecutor[Querier] {
	txOpts := defaultTxExecutorOptions()
	for _, optFunc := range opts {
		optFunc(txOpts)
	}

	return &TransactionExecutor[Querier]{
		BatchedQuerier: db,
		createQuery:    createQuery,
		opts:           txOpts,
		log:            log,
	}
}

// ExecTx begins a transaction, hands the typed query struct to txBody, and
// commits when the body returns nil. The body may run more than once: any
// serialization or deadlock error triggers a backoff and a fresh attempt,
// so bodies must reset whatever state they capture across calls.
func (t *TransactionExecutor[Q]) ExecTx(ctx context.Context,
	txOptions TxOptions, txBody func(Q) error,
) error {
	waitBeforeRetry := func(attemptNumber int) {
		retryDelay := t.opts.randRetryDelay(attemptNumber)

		t.log.DebugContext(
			ctx, "Retrying tx after serialization or deadlock error",
			"attempt_number", attemptNumber,
			"delay", retryDelay,
		)

		time.Sleep(retryDelay)
	}

	for i := 0; i < t.opts.numRetries; i++ {
		tx, err := t.BeginTx(ctx, txOptions)
		if err != nil {
			dbErr := MapSQLError(err)
			if IsSerializationOrDeadlockError(dbErr) {
				// No transaction to roll back yet.
				waitBeforeRetry(i)
				continue
			}

			return dbErr
		}

		// Rollback after a successful commit is a no-op, so the deferred
		// call is safe on every path out of this attempt.
		defer func() {
			_ = tx.Rollback()
		}()

		if err := txBody(t.createQuery(tx)); err != nil {
			dbErr := MapSQLError(err)
			if IsSerializationOrDeadlockError(dbErr) {
				_ = tx.Rollback()

				waitBeforeRetry(i)

				continue
			}

			return dbErr
		}

		if err = tx.Commit(); err != nil {
			dbErr := MapSQLError(err)
			if IsSerializationOrDeadlockError(dbErr) {
				_ = tx.Rollback()

				waitBeforeRetry(i)

				continue
			}

			return dbErr
		}

		return nil
	}

	return ErrRetriesExceeded
}
