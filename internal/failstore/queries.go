package failstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// FailureQueries bundles the statements one store transaction runs against
// the detail_failures table.
type FailureQueries struct {
	tx *sql.Tx
}

// newFailureQueries binds a query struct to the given transaction.
func newFailureQueries(tx *sql.Tx) *FailureQueries {
	return &FailureQueries{tx: tx}
}

// getFailure reads the failure row for a cluster. sql.ErrNoRows is returned
// unchanged when no row exists.
func (q *FailureQueries) getFailure(ctx context.Context,
	clusterID string) (FailureRecord, error) {

	var (
		rec        FailureRecord
		recordedAt int64
	)

	err := q.tx.QueryRowContext(ctx,
		`SELECT cluster_id, reason, recorded_at
		 FROM detail_failures
		 WHERE cluster_id = ?`,
		clusterID,
	).Scan(&rec.ClusterID, &rec.Reason, &recordedAt)
	if err != nil {
		return FailureRecord{}, err
	}

	rec.RecordedAt = time.Unix(recordedAt, 0)

	return rec, nil
}

// upsertFailure records a failure, replacing any previous row for the same
// cluster.
func (q *FailureQueries) upsertFailure(ctx context.Context, clusterID,
	reason string, recordedAt time.Time) error {

	_, err := q.tx.ExecContext(ctx,
		`INSERT INTO detail_failures (cluster_id, reason, recorded_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (cluster_id) DO UPDATE SET
		     reason = excluded.reason,
		     recorded_at = excluded.recorded_at`,
		clusterID, reason, recordedAt.Unix(),
	)

	return err
}

// deleteFailure removes the failure row for a cluster, if any.
func (q *FailureQueries) deleteFailure(ctx context.Context,
	clusterID string) error {

	_, err := q.tx.ExecContext(ctx,
		`DELETE FROM detail_failures WHERE cluster_id = ?`, clusterID,
	)

	return err
}

// listFailures returns all well formed rows recorded at or after the cutoff,
// newest first.
func (q *FailureQueries) listFailures(ctx context.Context,
	cutoff int64) ([]FailureRecord, error) {

	rows, err := q.tx.QueryContext(ctx,
		`SELECT cluster_id, reason, recorded_at
		 FROM detail_failures
		 WHERE recorded_at >= ? AND reason != ''
		 ORDER BY recorded_at DESC, cluster_id`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list failures: %w", err)
	}
	defer rows.Close()

	var recs []FailureRecord
	for rows.Next() {
		var (
			rec        FailureRecord
			recordedAt int64
		)

		err := rows.Scan(&rec.ClusterID, &rec.Reason, &recordedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan failure: %w",
				err)
		}

		rec.RecordedAt = time.Unix(recordedAt, 0)
		recs = append(recs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating failures: %w", err)
	}

	return recs, nil
}

// purgeExpired deletes rows recorded before the cutoff and returns how many
// were removed.
func (q *FailureQueries) purgeExpired(ctx context.Context,
	cutoff int64) (int64, error) {

	res, err := q.tx.ExecContext(ctx,
		`DELETE FROM detail_failures WHERE recorded_at < ?`, cutoff,
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}
