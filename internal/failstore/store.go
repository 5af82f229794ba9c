package failstore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/roasbeef/shousai/internal/db"
)

// Store remembers why a cluster's detail generation last failed, so the
// failure survives page loads and daemon restarts until its TTL lapses. It
// is a best-effort cache: every storage error is logged and degrades to a
// miss or a no-op, never an error for the caller.
type Store struct {
	cfg Config
	log *slog.Logger

	executor db.BatchedTx[*FailureQueries]

	// now is the clock used for TTL decisions, swappable in tests.
	now func() time.Time
}

// NewStore creates a failure store running its statements through the given
// database.
func NewStore(base db.BatchedQuerier, cfg Config, log *slog.Logger) *Store {
	return &Store{
		cfg: cfg,
		log: log.With("component", "failstore"),
		executor: db.NewTransactionExecutor(
			base, newFailureQueries, log,
		),
		now: time.Now,
	}
}

// Get returns the remembered failure for the given cluster. Expired or
// malformed rows are purged on sight and reported as a miss.
func (s *Store) Get(ctx context.Context,
	clusterID string) fn.Option[FailureRecord] {

	var (
		rec   FailureRecord
		found bool
	)

	err := s.executor.ExecTx(
		ctx, db.WriteTxOption(), func(q *FailureQueries) error {
			// The executor may retry the body, so reset any state
			// captured from a prior attempt.
			rec, found = FailureRecord{}, false

			row, err := q.getFailure(ctx, clusterID)
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}
			if err != nil {
				return err
			}

			if !s.usable(row) {
				return q.deleteFailure(ctx, clusterID)
			}

			rec = row
			found = true

			return nil
		},
	)
	if err != nil {
		s.log.WarnContext(ctx, "Failure lookup degraded to miss",
			"cluster_id", clusterID, "error", err)
		return fn.None[FailureRecord]()
	}

	if !found {
		return fn.None[FailureRecord]()
	}

	return fn.Some(rec)
}

// Set records a failure for the given cluster, replacing any previous one.
func (s *Store) Set(ctx context.Context, clusterID, reason string) {
	recordedAt := s.now()

	err := s.executor.ExecTx(
		ctx, db.WriteTxOption(), func(q *FailureQueries) error {
			return q.upsertFailure(
				ctx, clusterID, reason, recordedAt,
			)
		},
	)
	if err != nil {
		s.log.WarnContext(ctx, "Failed to record failure",
			"cluster_id", clusterID, "reason", reason, "error", err)
	}
}

// Clear forgets any remembered failure for the given cluster.
func (s *Store) Clear(ctx context.Context, clusterID string) {
	err := s.executor.ExecTx(
		ctx, db.WriteTxOption(), func(q *FailureQueries) error {
			return q.deleteFailure(ctx, clusterID)
		},
	)
	if err != nil {
		s.log.WarnContext(ctx, "Failed to clear failure",
			"cluster_id", clusterID, "error", err)
	}
}

// List returns all unexpired failures, newest first. Storage errors degrade
// to an empty list.
func (s *Store) List(ctx context.Context) []FailureRecord {
	var recs []FailureRecord

	err := s.executor.ExecTx(
		ctx, db.ReadTxOption(), func(q *FailureQueries) error {
			var err error
			recs, err = q.listFailures(ctx, s.cutoff())
			return err
		},
	)
	if err != nil {
		s.log.WarnContext(ctx, "Failure listing degraded to empty",
			"error", err)
		return nil
	}

	return recs
}

// PurgeExpired removes all rows past their TTL and returns how many were
// removed.
func (s *Store) PurgeExpired(ctx context.Context) int64 {
	var purged int64

	err := s.executor.ExecTx(
		ctx, db.WriteTxOption(), func(q *FailureQueries) error {
			var err error
			purged, err = q.purgeExpired(ctx, s.cutoff())
			return err
		},
	)
	if err != nil {
		s.log.WarnContext(ctx, "Failure purge skipped", "error", err)
		return 0
	}

	return purged
}

// usable reports whether a stored row is well formed and still within its
// TTL.
func (s *Store) usable(rec FailureRecord) bool {
	if rec.Reason == "" {
		return false
	}

	return s.now().Sub(rec.RecordedAt) <= s.cfg.TTL
}

// cutoff returns the oldest recorded_at (unix seconds) still considered
// alive.
func (s *Store) cutoff() int64 {
	return s.now().Add(-s.cfg.TTL).Unix()
}
