// Package poll drives the bounded per-cluster status loops that watch a
// long-form detail generation until it reaches a terminal state. Each
// cluster gets at most one loop at a time; cycles within a loop run
// strictly sequentially, and every loop carries both an attempt budget
// and a wall clock budget so a silent upstream can never pin a goroutine
// forever.
package poll

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/roasbeef/shousai/internal/model"
	"github.com/roasbeef/shousai/internal/upstream"
)

// DetailFetcher is the status-fetch side of the upstream client. A fetch
// that fails with upstream.ErrClusterNotFound aborts the loop.
type DetailFetcher interface {
	// GetClusterDetail returns the current record for one cluster.
	GetClusterDetail(ctx context.Context,
		clusterID string) (model.ClusterSummary, error)
}

// Sink receives everything a poll loop produces. The coordinator
// implements it.
type Sink interface {
	// PublishRecord hands a fetched record to the owner, which cleans
	// and merges it into its local state and returns the record as it
	// stands after the merge. The loop decides terminality from the
	// returned record, not the raw fetch, so marker-forced failures
	// end the loop like upstream-reported ones.
	PublishRecord(ctx context.Context,
		cluster model.ClusterSummary) model.ClusterSummary

	// RecordFailure remembers why a cluster's generation failed.
	RecordFailure(ctx context.Context, clusterID, reason string)

	// PollAborted reports a loop that ended without any terminal
	// record because the upstream no longer knows the cluster.
	PollAborted(ctx context.Context, clusterID string)
}

// Orchestrator runs at most one polling loop per cluster id.
type Orchestrator struct {
	cfg     Config
	log     *slog.Logger
	fetcher DetailFetcher
	sink    Sink

	mu    sync.Mutex
	polls map[string]context.CancelFunc

	wg sync.WaitGroup

	// now is the clock used for the elapsed bound and synthesized
	// failure records. Swappable in tests.
	now func() time.Time
}

// NewOrchestrator creates an orchestrator that fetches through fetcher
// and reports into sink. Zero config fields fall back to the defaults.
func NewOrchestrator(cfg Config, fetcher DetailFetcher, sink Sink,
	log *slog.Logger) *Orchestrator {

	if log == nil {
		log = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = DefaultMaxElapsed
	}

	return &Orchestrator{
		cfg:     cfg,
		log:     log.With("component", "poll"),
		fetcher: fetcher,
		sink:    sink,
		polls:   make(map[string]context.CancelFunc),
		now:     time.Now,
	}
}

// Start begins polling the given cluster. While a loop is already
// running for the id, Start is a no-op, so concurrent callers collapse
// onto a single loop.
func (o *Orchestrator) Start(clusterID string) {
	o.mu.Lock()
	if _, ok := o.polls[clusterID]; ok {
		o.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	o.polls[clusterID] = cancel
	o.wg.Add(1)
	o.mu.Unlock()

	o.log.Debug("Poll loop starting", "cluster_id", clusterID)

	go func() {
		defer o.wg.Done()
		defer o.remove(clusterID)

		o.run(ctx, clusterID)
	}()
}

// Stop cancels the poll loop for the given cluster, if one is running.
// An in-flight fetch is cancelled through its context; whatever it
// returns is discarded.
func (o *Orchestrator) Stop(clusterID string) {
	o.remove(clusterID)
}

// Close stops every active loop and waits for their goroutines to
// finish.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	for id, cancel := range o.polls {
		cancel()
		delete(o.polls, id)
	}
	o.mu.Unlock()

	o.wg.Wait()
}

// Active reports whether a poll loop is currently running for the id.
func (o *Orchestrator) Active(clusterID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	_, ok := o.polls[clusterID]
	return ok
}

// ActiveCount returns the number of clusters currently being polled.
func (o *Orchestrator) ActiveCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()

	return len(o.polls)
}

// remove discards the loop entry for an id, cancelling its context.
func (o *Orchestrator) remove(clusterID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if cancel, ok := o.polls[clusterID]; ok {
		cancel()
		delete(o.polls, clusterID)
	}
}

// run executes poll cycles for one cluster until a terminal outcome, an
// abort, an exhausted budget, or cancellation. The next wait is only
// scheduled after the previous fetch resolved, so cycles never overlap
// even when a fetch outlives the interval.
func (o *Orchestrator) run(ctx context.Context, clusterID string) {
	var (
		attempts int
		started  = o.now()
	)

	// The first check runs immediately.
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if o.cycle(ctx, clusterID) {
			return
		}

		attempts++

		if attempts >= o.cfg.MaxAttempts ||
			o.now().Sub(started) >= o.cfg.MaxElapsed {

			o.expire(ctx, clusterID, attempts)
			return
		}

		timer.Reset(o.cfg.Interval)
	}
}

// cycle issues one status fetch and routes the outcome. It reports
// whether the loop is finished.
func (o *Orchestrator) cycle(ctx context.Context, clusterID string) bool {
	rec, err := o.fetcher.GetClusterDetail(ctx, clusterID)
	switch {
	case errors.Is(err, context.Canceled):
		return true

	case errors.Is(err, upstream.ErrClusterNotFound):
		// The upstream no longer knows the cluster, further cycles
		// cannot succeed.
		o.log.Warn("Cluster vanished upstream, aborting poll",
			"cluster_id", clusterID)
		o.sink.PollAborted(ctx, clusterID)
		return true

	case err != nil:
		// Transient failure, worth another cycle.
		o.log.Warn("Poll cycle failed", "cluster_id", clusterID,
			"error", err)
		return false
	}

	// A Stop that raced the fetch wins: drop the result instead of
	// publishing into a loop the caller already abandoned.
	if ctx.Err() != nil {
		return true
	}

	merged := o.sink.PublishRecord(ctx, rec)
	if !merged.DetailStatus.IsTerminal() {
		return false
	}

	if merged.DetailStatus == model.StatusFailed {
		reason := merged.DetailFailureReason
		if reason == "" {
			reason = model.ReasonRequestFailed
		}
		o.sink.RecordFailure(ctx, clusterID, reason)
	}

	o.log.Debug("Poll loop finished", "cluster_id", clusterID,
		"status", merged.DetailStatus)

	return true
}

// expire force-terminates a loop whose budget ran out while the upstream
// still reported generation in progress. The cluster is failed locally
// with a timeout reason so the user sees a retryable state instead of a
// spinner that never resolves.
func (o *Orchestrator) expire(ctx context.Context, clusterID string,
	attempts int) {

	o.log.Warn("Poll budget exhausted, forcing failure",
		"cluster_id", clusterID, "attempts", attempts)

	o.sink.PublishRecord(ctx, model.ClusterSummary{
		ID:                  clusterID,
		DetailStatus:        model.StatusFailed,
		DetailFailureReason: model.ReasonTimeout,
		UpdatedAt:           o.now(),
	})
	o.sink.RecordFailure(ctx, clusterID, model.ReasonTimeout)
}
