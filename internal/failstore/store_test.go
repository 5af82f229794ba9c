package failstore

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/roasbeef/shousai/internal/db"
)

// testBase is a fixed whole-second instant so TTL arithmetic in tests is
// exact.
var testBase = time.Unix(1700000000, 0)

// newTestStore creates a Store backed by a real SQLite database in a
// temporary directory, with its clock pinned to testBase.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))

	dbPath := filepath.Join(t.TempDir(), "failures.db")
	sqliteStore, err := db.NewSqliteStore(&db.SqliteConfig{
		DatabaseFileName:      dbPath,
		SkipMigrationDBBackup: true,
	}, log)
	require.NoError(t, err)

	t.Cleanup(func() {
		sqliteStore.Close()
	})

	store := NewStore(sqliteStore, DefaultConfig(), log)
	store.now = func() time.Time { return testBase }

	return store
}

// at pins the store's clock to testBase plus the given offset.
func at(store *Store, offset time.Duration) {
	now := testBase.Add(offset)
	store.now = func() time.Time { return now }
}

func TestStore_SetGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "cluster-1", "timeout")

	rec := store.Get(ctx, "cluster-1")
	require.True(t, rec.IsSome())

	got := rec.UnwrapOr(FailureRecord{})
	require.Equal(t, "cluster-1", got.ClusterID)
	require.Equal(t, "timeout", got.Reason)
	require.Equal(t, testBase, got.RecordedAt)
}

func TestStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	rec := store.Get(context.Background(), "nope")
	require.True(t, rec.IsNone())
}

func TestStore_Clear(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "cluster-1", "request_failed")
	store.Clear(ctx, "cluster-1")

	require.True(t, store.Get(ctx, "cluster-1").IsNone())

	// Clearing an unknown id is a no-op.
	store.Clear(ctx, "never-seen")
}

// TestStore_TTLExpiry verifies a failure written at T is still returned at
// T+9m but absent at T+11m, and that the expired row is purged rather than
// merely hidden.
func TestStore_TTLExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "cluster-1", "timeout")

	at(store, 9*time.Minute)
	require.True(t, store.Get(ctx, "cluster-1").IsSome())

	at(store, 11*time.Minute)
	require.True(t, store.Get(ctx, "cluster-1").IsNone())

	// The expired read deleted the row, so it stays gone even when the
	// clock rolls back inside the TTL window.
	at(store, 9*time.Minute)
	require.True(t, store.Get(ctx, "cluster-1").IsNone())
}

func TestStore_SetReplacesPrevious(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "cluster-1", "timeout")

	// A later failure overwrites both reason and timestamp.
	at(store, 5*time.Minute)
	store.Set(ctx, "cluster-1", "request_failed")

	// 12 minutes after the first write the record is still alive because
	// the second write renewed it.
	at(store, 12*time.Minute)
	rec := store.Get(ctx, "cluster-1")
	require.True(t, rec.IsSome())
	require.Equal(t, "request_failed", rec.UnwrapOr(FailureRecord{}).Reason)
}

func TestStore_EmptyReasonTreatedAsMalformed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	store.Set(ctx, "cluster-1", "")

	require.True(t, store.Get(ctx, "cluster-1").IsNone())
	require.Empty(t, store.List(ctx))
}

func TestStore_List(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// One entry already expired relative to testBase, two alive with
	// distinct timestamps.
	at(store, -20*time.Minute)
	store.Set(ctx, "old", "timeout")

	at(store, -2*time.Minute)
	store.Set(ctx, "mid", "request_failed")

	at(store, 0)
	store.Set(ctx, "new", "timeout")

	recs := store.List(ctx)
	require.Len(t, recs, 2)
	require.Equal(t, "new", recs[0].ClusterID)
	require.Equal(t, "mid", recs[1].ClusterID)
}

func TestStore_PurgeExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	at(store, -30*time.Minute)
	store.Set(ctx, "old-1", "timeout")
	store.Set(ctx, "old-2", "timeout")

	at(store, 0)
	store.Set(ctx, "fresh", "request_failed")

	require.Equal(t, int64(2), store.PurgeExpired(ctx))
	require.Equal(t, int64(0), store.PurgeExpired(ctx))

	recs := store.List(ctx)
	require.Len(t, recs, 1)
	require.Equal(t, "fresh", recs[0].ClusterID)
}

// TestStore_TTLBoundary verifies the visibility rule across the whole TTL
// range: a record aged at most the TTL is returned, anything older is not.
func TestStore_TTLBoundary(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		store := newTestStore(t)
		ctx := context.Background()

		ttl := time.Duration(rapid.IntRange(1, 3600).
			Draw(rt, "ttlSec")) * time.Second
		age := time.Duration(rapid.IntRange(0, 7200).
			Draw(rt, "ageSec")) * time.Second
		store.cfg.TTL = ttl

		store.Set(ctx, "cluster-p", "timeout")
		at(store, age)

		rec := store.Get(ctx, "cluster-p")

		// PROPERTY: presence is exactly age <= TTL.
		if age <= ttl {
			require.True(t, rec.IsSome(),
				"age %v within ttl %v must be present",
				age, ttl)
		} else {
			require.True(t, rec.IsNone(),
				"age %v beyond ttl %v must be absent",
				age, ttl)
		}
	})
}
