// Package coordinator is the public façade of the detail summary
// machinery. It owns the map of best-known cluster records, reconciles
// every observation through the status precedence rule, runs the
// request path that keeps generation single-flight per cluster, and
// feeds terminal failures into the failure store. Presentation layers
// (web, MCP, CLI) talk only to this package.
package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/roasbeef/shousai/internal/failstore"
	"github.com/roasbeef/shousai/internal/model"
	"github.com/roasbeef/shousai/internal/normalize"
	"github.com/roasbeef/shousai/internal/poll"
	"github.com/roasbeef/shousai/internal/upstream"
)

// RecordUpdate is one published change to a cluster's best-known
// record, fanned out to subscribers.
type RecordUpdate struct {
	Cluster model.ClusterSummary `json:"cluster"`
}

// DetailState is the presentation-layer view of one cluster's detail
// summary.
type DetailState struct {
	Summary       string             `json:"summary"`
	DiffPoints    []string           `json:"diffPoints,omitempty"`
	Status        model.DetailStatus `json:"detailStatus"`
	HasSummary    bool               `json:"hasSummary"`
	IsError       bool               `json:"isError"`
	IsGenerating  bool               `json:"isGenerating"`
	FailureReason string             `json:"failureReason,omitempty"`
}

// Coordinator merges upstream observations with locally initiated state
// changes and exposes the request/read operations the presentation
// layer consumes. It implements poll.Sink for the loops it owns.
type Coordinator struct {
	cfg      Config
	log      *slog.Logger
	upstream upstream.Client
	failures *failstore.Store
	poller   *poll.Orchestrator

	mu        sync.Mutex
	overrides map[string]model.ClusterSummary
	starting  map[string]struct{}
	subs      map[string]chan RecordUpdate

	// now is the clock for locally minted timestamps, swappable in
	// tests.
	now func() time.Time
}

// NewCoordinator creates a coordinator talking to the given upstream
// client and failure store. The polling orchestrator is created
// internally with the coordinator as its sink.
func NewCoordinator(cfg Config, client upstream.Client,
	failures *failstore.Store, log *slog.Logger) *Coordinator {

	if log == nil {
		log = slog.Default()
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = DefaultSubscriberBuffer
	}

	c := &Coordinator{
		cfg:       cfg,
		log:       log.With("component", "coordinator"),
		upstream:  client,
		failures:  failures,
		overrides: make(map[string]model.ClusterSummary),
		starting:  make(map[string]struct{}),
		subs:      make(map[string]chan RecordUpdate),
		now:       time.Now,
	}
	c.poller = poll.NewOrchestrator(cfg.Poll, client, c, log)

	return c
}

// EnsureDetailSummary makes sure a long-form summary exists or is being
// generated for the cluster. It is a no-op when a request is already in
// flight, the local status is pending, or usable detail text is already
// present. Failures never escape: every error path resolves into a
// failed record with a reason.
func (c *Coordinator) EnsureDetailSummary(ctx context.Context,
	cluster model.ClusterSummary) {

	c.ensure(ctx, cluster, false)
}

// RequestRegeneration is the explicit user retry/regenerate path. It
// behaves like EnsureDetailSummary but requests fresh text even when a
// usable summary is already present.
func (c *Coordinator) RequestRegeneration(ctx context.Context,
	cluster model.ClusterSummary) {

	c.ensure(ctx, cluster, true)
}

// ensure is the shared request path. force skips the satisfied check so
// regeneration always reaches the upstream.
func (c *Coordinator) ensure(ctx context.Context,
	cluster model.ClusterSummary, force bool) {

	id := cluster.ID
	if id == "" {
		return
	}

	if c.poller.Active(id) {
		return
	}

	// The in-flight set covers the window between publishing the
	// optimistic pending record and handing off to the poller, when
	// neither the map nor the poller alone can vouch for the request.
	c.mu.Lock()
	if _, inflight := c.starting[id]; inflight {
		c.mu.Unlock()
		return
	}

	current, known := c.overrides[id]
	if !known {
		current = model.Normalize(cluster, c.now())
	}

	if current.DetailStatus == model.StatusPending {
		c.mu.Unlock()
		return
	}
	if !force && current.HasDetailText() {
		c.mu.Unlock()
		return
	}

	c.starting[id] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.starting, id)
		c.mu.Unlock()
	}()

	// The user is asking again, so any remembered failure is obsolete.
	c.failures.Clear(ctx, id)

	now := c.now()
	pending := current
	pending.ID = id
	pending.DetailStatus = model.StatusPending
	pending.SummaryLong = ""
	pending.DiffPoints = nil
	pending.DetailFailureReason = ""
	pending.DetailRequestedAt = &now
	pending.UpdatedAt = now
	c.publish(pending)

	res, err := c.upstream.StartDetailGeneration(ctx, id)
	if err != nil {
		c.startFailed(ctx, id, pending, err)
		return
	}

	// A synchronous answer that is already terminal needs no polling.
	if res.Cluster.IsSome() {
		rec := res.Cluster.UnwrapOr(model.ClusterSummary{})
		if rec.ID == "" {
			rec.ID = id
		}

		merged := c.ingest(rec)
		if merged.DetailStatus.IsTerminal() {
			if merged.DetailStatus == model.StatusFailed {
				reason := merged.DetailFailureReason
				if reason == "" {
					reason = model.ReasonRequestFailed
				}
				c.failures.Set(ctx, id, reason)
			}
			return
		}
	}

	c.poller.Start(id)
}

// startFailed resolves a failed initiation call into the failure path.
func (c *Coordinator) startFailed(ctx context.Context, id string,
	base model.ClusterSummary, err error) {

	c.log.Warn("Detail generation start failed", "cluster_id", id,
		"error", err)

	c.poller.Stop(id)
	c.failures.Set(ctx, id, model.ReasonRequestFailed)

	now := c.now()
	failed := base
	failed.DetailStatus = model.StatusFailed
	failed.SummaryLong = ""
	failed.DiffPoints = nil
	failed.DetailFailureReason = model.ReasonRequestFailed
	failed.DetailFailedAt = &now
	failed.UpdatedAt = now
	c.publish(failed)
}

// DetailState derives the display view for one cluster from the
// best-known record, the poller's in-flight state, and any remembered
// failure. A remembered failure competes with the record like any other
// observation: it shows only when the precedence rule lets it win.
func (c *Coordinator) DetailState(ctx context.Context,
	cluster model.ClusterSummary) DetailState {

	rec := c.currentRecord(cluster)

	if failOpt := c.failures.Get(ctx, cluster.ID); failOpt.IsSome() {
		fail := failOpt.UnwrapOr(failstore.FailureRecord{})

		candidate := rec
		candidate.DetailStatus = model.StatusFailed
		candidate.SummaryLong = ""
		candidate.DiffPoints = nil
		candidate.DetailFailureReason = fail.Reason
		candidate.DetailFailedAt = &fail.RecordedAt
		candidate.UpdatedAt = fail.RecordedAt

		if model.Supersedes(rec, candidate) {
			rec = candidate
		}
	}

	generating := rec.DetailStatus == model.StatusPending ||
		c.poller.Active(cluster.ID)

	return DetailState{
		Summary:       rec.SummaryLong,
		DiffPoints:    rec.DiffPoints,
		Status:        rec.DetailStatus,
		HasSummary:    rec.HasDetailText(),
		IsError:       rec.DetailStatus == model.StatusFailed,
		IsGenerating:  generating,
		FailureReason: rec.DetailFailureReason,
	}
}

// RefreshClusters pulls the full listing and reconciles every record
// into the override map. Locally observed state survives stale listing
// entries: a fresh optimistic pending is never clobbered by a partial
// record the listing cached before the request.
func (c *Coordinator) RefreshClusters(
	ctx context.Context) ([]model.ClusterSummary, error) {

	clusters, err := c.upstream.ListClusters(ctx)
	if err != nil {
		return nil, err
	}

	for _, rec := range clusters {
		if rec.ID == "" {
			continue
		}
		c.ingest(rec)
	}

	return c.Records(), nil
}

// Records returns a snapshot of the current best-known records, newest
// first.
func (c *Coordinator) Records() []model.ClusterSummary {
	c.mu.Lock()
	records := make([]model.ClusterSummary, 0, len(c.overrides))
	for _, rec := range c.overrides {
		records = append(records, rec)
	}
	c.mu.Unlock()

	model.SortByRecency(records)
	return records
}

// Record returns the best-known record for one cluster id.
func (c *Coordinator) Record(id string) (model.ClusterSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.overrides[id]
	return rec, ok
}

// Polling reports whether a status poll loop is running for the id.
func (c *Coordinator) Polling(id string) bool {
	return c.poller.Active(id)
}

// ActivePolls returns the number of clusters currently being polled.
func (c *Coordinator) ActivePolls() int {
	return c.poller.ActiveCount()
}

// Failures lists the currently remembered generation failures.
func (c *Coordinator) Failures(ctx context.Context) []failstore.FailureRecord {
	return c.failures.List(ctx)
}

// ClearFailure removes the remembered failure for one cluster.
func (c *Coordinator) ClearFailure(ctx context.Context, clusterID string) {
	c.failures.Clear(ctx, clusterID)
}

// Subscribe registers a listener for every published record update. The
// returned channel is buffered; a consumer that cannot keep up misses
// intermediate updates and catches up on its next snapshot read.
func (c *Coordinator) Subscribe() (string, <-chan RecordUpdate) {
	token := uuid.NewString()
	ch := make(chan RecordUpdate, c.cfg.SubscriberBuffer)

	c.mu.Lock()
	c.subs[token] = ch
	c.mu.Unlock()

	return token, ch
}

// Unsubscribe removes a listener and closes its channel.
func (c *Coordinator) Unsubscribe(token string) {
	c.mu.Lock()
	ch, ok := c.subs[token]
	delete(c.subs, token)
	c.mu.Unlock()

	if ok {
		close(ch)
	}
}

// Close stops every poll loop and releases all subscribers.
func (c *Coordinator) Close() {
	c.poller.Close()

	c.mu.Lock()
	for token, ch := range c.subs {
		delete(c.subs, token)
		close(ch)
	}
	c.mu.Unlock()
}

// PublishRecord implements poll.Sink.
func (c *Coordinator) PublishRecord(_ context.Context,
	cluster model.ClusterSummary) model.ClusterSummary {

	return c.ingest(cluster)
}

// RecordFailure implements poll.Sink.
func (c *Coordinator) RecordFailure(ctx context.Context, clusterID,
	reason string) {

	c.failures.Set(ctx, clusterID, reason)
}

// PollAborted implements poll.Sink. The upstream no longer knows the
// cluster, so the local record is dropped rather than left pending
// forever; the next listing refresh settles what remains visible.
func (c *Coordinator) PollAborted(_ context.Context, clusterID string) {
	c.log.Warn("Cluster vanished upstream, dropping local record",
		"cluster_id", clusterID)

	c.mu.Lock()
	delete(c.overrides, clusterID)
	c.mu.Unlock()
}

// ingest cleans a raw upstream record and reconciles it into the
// override map, returning the record that now stands for the id.
func (c *Coordinator) ingest(rec model.ClusterSummary) model.ClusterSummary {
	return c.merge(c.clean(rec))
}

// clean runs the long-form text through the output normalizer and makes
// the record internally consistent. A failure marker in the text forces
// the record to failed and discards whatever surrounded the marker.
func (c *Coordinator) clean(rec model.ClusterSummary) model.ClusterSummary {
	if rec.SummaryLong != "" {
		res := normalize.Normalize(rec.SummaryLong)
		switch {
		case res.Failed:
			rec.DetailStatus = model.StatusFailed
			rec.SummaryLong = ""
			rec.DiffPoints = nil
			if rec.DetailFailureReason == "" {
				rec.DetailFailureReason = model.ReasonRequestFailed
			}

		default:
			rec.SummaryLong = res.Summary
			if len(res.DiffPoints) > 0 {
				rec.DiffPoints = res.DiffPoints
			}
		}
	}

	return model.Normalize(rec, c.now())
}

// merge reconciles an incoming record with the current override. Higher
// status priority wins, then a strictly newer update time; a full tie
// keeps the existing record, so replaying an update is a no-op.
func (c *Coordinator) merge(rec model.ClusterSummary) model.ClusterSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.overrides[rec.ID]; ok &&
		!model.Supersedes(existing, rec) {

		return existing
	}

	c.overrides[rec.ID] = rec
	c.broadcastLocked(rec)

	return rec
}

// publish stores a record unconditionally and broadcasts it. User
// actions (optimistic pending, retry, forced failure) go through here:
// they are state transitions, not reconciliations of two observations.
func (c *Coordinator) publish(rec model.ClusterSummary) model.ClusterSummary {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.overrides[rec.ID] = rec
	c.broadcastLocked(rec)

	return rec
}

// broadcastLocked fans a record out to subscribers without blocking.
// Callers hold c.mu.
func (c *Coordinator) broadcastLocked(rec model.ClusterSummary) {
	for _, sub := range c.subs {
		select {
		case sub <- RecordUpdate{Cluster: rec}:
		default:
		}
	}
}

// currentRecord returns the best-known record for the cluster, falling
// back to a normalized copy of the caller's record when nothing was
// observed yet.
func (c *Coordinator) currentRecord(
	cluster model.ClusterSummary) model.ClusterSummary {

	c.mu.Lock()
	rec, ok := c.overrides[cluster.ID]
	c.mu.Unlock()

	if !ok {
		rec = model.Normalize(cluster, c.now())
	}
	return rec
}
