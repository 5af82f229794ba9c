package poll

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/roasbeef/shousai/internal/model"
	"github.com/roasbeef/shousai/internal/upstream"
	"github.com/stretchr/testify/require"
)

// testLogger returns a logger that only surfaces errors during tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// testConfig keeps loops fast and makes sure only the attempt bound can
// trip unless a test overrides it.
func testConfig() Config {
	return Config{
		Interval:    time.Millisecond,
		MaxAttempts: 50,
		MaxElapsed:  time.Minute,
	}
}

// scriptedFetcher answers each fetch from a call-indexed script.
type scriptedFetcher struct {
	mu      sync.Mutex
	calls   int
	respond func(call int) (model.ClusterSummary, error)
}

func (f *scriptedFetcher) GetClusterDetail(_ context.Context,
	_ string) (model.ClusterSummary, error) {

	f.mu.Lock()
	call := f.calls
	f.calls++
	f.mu.Unlock()

	return f.respond(call)
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

// blockingFetcher parks every fetch until release is closed or the
// caller's context ends. Each fetch entry pushes a token into entered.
type blockingFetcher struct {
	mu      sync.Mutex
	calls   int
	entered chan struct{}
	release chan struct{}
	result  model.ClusterSummary
}

func newBlockingFetcher(result model.ClusterSummary) *blockingFetcher {
	return &blockingFetcher{
		entered: make(chan struct{}, 16),
		release: make(chan struct{}),
		result:  result,
	}
}

func (f *blockingFetcher) GetClusterDetail(ctx context.Context,
	_ string) (model.ClusterSummary, error) {

	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	select {
	case f.entered <- struct{}{}:
	default:
	}

	select {
	case <-f.release:
		return f.result, nil
	case <-ctx.Done():
		return model.ClusterSummary{}, ctx.Err()
	}
}

func (f *blockingFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls
}

func waitEntered(t *testing.T, f *blockingFetcher) {
	t.Helper()

	select {
	case <-f.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch was never issued")
	}
}

// recordingSink captures everything the loops emit and echoes published
// records back unchanged, standing in for a coordinator whose merge
// accepted the incoming record as-is.
type recordingSink struct {
	mu        sync.Mutex
	published []model.ClusterSummary
	failures  map[string]string
	aborted   []string
}

func newRecordingSink() *recordingSink {
	return &recordingSink{failures: make(map[string]string)}
}

func (s *recordingSink) PublishRecord(_ context.Context,
	cluster model.ClusterSummary) model.ClusterSummary {

	s.mu.Lock()
	defer s.mu.Unlock()

	s.published = append(s.published, cluster)
	return cluster
}

func (s *recordingSink) RecordFailure(_ context.Context, clusterID,
	reason string) {

	s.mu.Lock()
	defer s.mu.Unlock()

	s.failures[clusterID] = reason
}

func (s *recordingSink) PollAborted(_ context.Context, clusterID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.aborted = append(s.aborted, clusterID)
}

func (s *recordingSink) publishedStatuses() []model.DetailStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	statuses := make([]model.DetailStatus, len(s.published))
	for i, rec := range s.published {
		statuses[i] = rec.DetailStatus
	}
	return statuses
}

func (s *recordingSink) lastPublished() (model.ClusterSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.published) == 0 {
		return model.ClusterSummary{}, false
	}
	return s.published[len(s.published)-1], true
}

func (s *recordingSink) failureFor(clusterID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.failures[clusterID]
}

func (s *recordingSink) failureCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.failures)
}

func (s *recordingSink) abortedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.aborted...)
}

// forcedFailSink records like recordingSink but reports every published
// record back as failed, the way the coordinator does when the cleaned
// text carried a failure marker.
type forcedFailSink struct {
	*recordingSink
	reason string
}

func (s *forcedFailSink) PublishRecord(ctx context.Context,
	cluster model.ClusterSummary) model.ClusterSummary {

	rec := s.recordingSink.PublishRecord(ctx, cluster)
	rec.DetailStatus = model.StatusFailed
	rec.DetailFailureReason = s.reason
	return rec
}

func pendingRecord(id string) model.ClusterSummary {
	return model.ClusterSummary{
		ID:           id,
		Headline:     "quakes in the north",
		DetailStatus: model.StatusPending,
		UpdatedAt:    time.Now(),
	}
}

func readyRecord(id string) model.ClusterSummary {
	return model.ClusterSummary{
		ID:           id,
		Headline:     "quakes in the north",
		SummaryLong:  "a full account of the events",
		DetailStatus: model.StatusReady,
		UpdatedAt:    time.Now(),
	}
}

func newTestOrchestrator(t *testing.T, cfg Config, fetcher DetailFetcher,
	sink Sink) *Orchestrator {

	t.Helper()

	o := NewOrchestrator(cfg, fetcher, sink, testLogger())
	t.Cleanup(o.Close)

	return o
}

// waitInactive blocks until the loop for the id has fully finished. The
// loop removes itself before its goroutine exits, so once Active turns
// false every sink call it made has completed.
func waitInactive(t *testing.T, o *Orchestrator, clusterID string) {
	t.Helper()

	deadline := time.After(2 * time.Second)
	for o.Active(clusterID) {
		select {
		case <-deadline:
			t.Fatalf("poll loop for %s did not finish", clusterID)
		case <-time.After(time.Millisecond):
		}
	}
}

func TestPollPublishesUntilReady(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{
		respond: func(call int) (model.ClusterSummary, error) {
			if call < 2 {
				return pendingRecord("c1"), nil
			}
			return readyRecord("c1"), nil
		},
	}
	sink := newRecordingSink()
	o := newTestOrchestrator(t, testConfig(), fetcher, sink)

	o.Start("c1")
	waitInactive(t, o, "c1")

	require.Equal(t, 3, fetcher.callCount())
	require.Equal(t, []model.DetailStatus{
		model.StatusPending,
		model.StatusPending,
		model.StatusReady,
	}, sink.publishedStatuses())
	require.Zero(t, sink.failureCount())
	require.Empty(t, sink.abortedIDs())
}

func TestPollSingleFlight(t *testing.T) {
	t.Parallel()

	fetcher := newBlockingFetcher(readyRecord("c1"))
	sink := newRecordingSink()
	o := newTestOrchestrator(t, testConfig(), fetcher, sink)

	o.Start("c1")
	waitEntered(t, fetcher)

	// Further starts while the loop is in flight collapse into it.
	o.Start("c1")
	o.Start("c1")
	require.Equal(t, 1, o.ActiveCount())

	close(fetcher.release)
	waitInactive(t, o, "c1")

	require.Equal(t, 1, fetcher.callCount())

	// Once the loop has finished, a new start runs a fresh loop.
	o.Start("c1")
	waitInactive(t, o, "c1")
	require.Equal(t, 2, fetcher.callCount())
}

func TestPollTimeoutAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{
		respond: func(int) (model.ClusterSummary, error) {
			return pendingRecord("c1"), nil
		},
	}
	sink := newRecordingSink()

	cfg := testConfig()
	cfg.MaxAttempts = 5
	o := newTestOrchestrator(t, cfg, fetcher, sink)

	o.Start("c1")
	waitInactive(t, o, "c1")

	require.Equal(t, 5, fetcher.callCount())
	require.Equal(t, model.ReasonTimeout, sink.failureFor("c1"))

	last, ok := sink.lastPublished()
	require.True(t, ok)
	require.Equal(t, model.StatusFailed, last.DetailStatus)
	require.Equal(t, model.ReasonTimeout, last.DetailFailureReason)
}

func TestPollMaxElapsed(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{
		respond: func(int) (model.ClusterSummary, error) {
			return pendingRecord("c1"), nil
		},
	}
	sink := newRecordingSink()

	// Any real cycle takes longer than a nanosecond, so the elapsed
	// bound trips right after the first check.
	cfg := testConfig()
	cfg.MaxElapsed = time.Nanosecond
	o := newTestOrchestrator(t, cfg, fetcher, sink)

	o.Start("c1")
	waitInactive(t, o, "c1")

	require.Equal(t, 1, fetcher.callCount())
	require.Equal(t, model.ReasonTimeout, sink.failureFor("c1"))
}

func TestPollAbortsWhenClusterVanishes(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{
		respond: func(int) (model.ClusterSummary, error) {
			return model.ClusterSummary{}, upstream.ErrClusterNotFound
		},
	}
	sink := newRecordingSink()
	o := newTestOrchestrator(t, testConfig(), fetcher, sink)

	o.Start("c1")
	waitInactive(t, o, "c1")

	require.Equal(t, 1, fetcher.callCount())
	require.Equal(t, []string{"c1"}, sink.abortedIDs())
	require.Empty(t, sink.publishedStatuses())
	require.Zero(t, sink.failureCount())
}

func TestPollRetriesTransientErrors(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{
		respond: func(call int) (model.ClusterSummary, error) {
			if call == 0 {
				return model.ClusterSummary{},
					errors.New("connection reset")
			}
			return readyRecord("c1"), nil
		},
	}
	sink := newRecordingSink()
	o := newTestOrchestrator(t, testConfig(), fetcher, sink)

	o.Start("c1")
	waitInactive(t, o, "c1")

	require.Equal(t, 2, fetcher.callCount())
	require.Equal(t, []model.DetailStatus{model.StatusReady},
		sink.publishedStatuses())
	require.Zero(t, sink.failureCount())
}

func TestPollRecordsUpstreamFailureReason(t *testing.T) {
	t.Parallel()

	rec := pendingRecord("c1")
	rec.DetailStatus = model.StatusFailed
	rec.DetailFailureReason = "model_error"

	fetcher := &scriptedFetcher{
		respond: func(int) (model.ClusterSummary, error) {
			return rec, nil
		},
	}
	sink := newRecordingSink()
	o := newTestOrchestrator(t, testConfig(), fetcher, sink)

	o.Start("c1")
	waitInactive(t, o, "c1")

	require.Equal(t, 1, fetcher.callCount())
	require.Equal(t, "model_error", sink.failureFor("c1"))
}

func TestPollFailureWithoutReasonFallsBack(t *testing.T) {
	t.Parallel()

	rec := pendingRecord("c1")
	rec.DetailStatus = model.StatusFailed

	fetcher := &scriptedFetcher{
		respond: func(int) (model.ClusterSummary, error) {
			return rec, nil
		},
	}
	sink := newRecordingSink()
	o := newTestOrchestrator(t, testConfig(), fetcher, sink)

	o.Start("c1")
	waitInactive(t, o, "c1")

	require.Equal(t, model.ReasonRequestFailed, sink.failureFor("c1"))
}

func TestPollHonorsMergedStatus(t *testing.T) {
	t.Parallel()

	// The upstream keeps answering pending, but the sink reports the
	// merge outcome as failed. The loop must trust the merge and stop
	// after a single cycle.
	fetcher := &scriptedFetcher{
		respond: func(int) (model.ClusterSummary, error) {
			return pendingRecord("c1"), nil
		},
	}
	sink := &forcedFailSink{
		recordingSink: newRecordingSink(),
		reason:        "upstream_failure",
	}
	o := newTestOrchestrator(t, testConfig(), fetcher, sink)

	o.Start("c1")
	waitInactive(t, o, "c1")

	require.Equal(t, 1, fetcher.callCount())
	require.Equal(t, "upstream_failure", sink.failureFor("c1"))
}

func TestStopCancelsLoop(t *testing.T) {
	t.Parallel()

	fetcher := newBlockingFetcher(readyRecord("c1"))
	sink := newRecordingSink()
	o := newTestOrchestrator(t, testConfig(), fetcher, sink)

	o.Start("c1")
	waitEntered(t, fetcher)

	o.Stop("c1")
	waitInactive(t, o, "c1")

	// The cancelled fetch produced nothing.
	require.Empty(t, sink.publishedStatuses())
	require.Zero(t, sink.failureCount())
	require.Empty(t, sink.abortedIDs())
}

func TestCloseStopsAllLoops(t *testing.T) {
	t.Parallel()

	fetcher := newBlockingFetcher(readyRecord("x"))
	sink := newRecordingSink()

	o := NewOrchestrator(testConfig(), fetcher, sink, testLogger())

	for _, id := range []string{"a", "b", "c"} {
		o.Start(id)
		waitEntered(t, fetcher)
	}
	require.Equal(t, 3, o.ActiveCount())

	o.Close()

	require.Equal(t, 0, o.ActiveCount())
	require.Empty(t, sink.publishedStatuses())
}

func TestNewOrchestratorDefaults(t *testing.T) {
	t.Parallel()

	o := NewOrchestrator(Config{}, nil, nil, nil)

	require.Equal(t, DefaultInterval, o.cfg.Interval)
	require.Equal(t, DefaultMaxAttempts, o.cfg.MaxAttempts)
	require.Equal(t, DefaultMaxElapsed, o.cfg.MaxElapsed)
}
