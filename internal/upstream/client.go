// Package upstream talks to the content API that owns the cluster listing
// and runs long-form detail generation. It is the only place wire shapes are
// resolved: everything past this boundary works on model.ClusterSummary.
package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/roasbeef/shousai/internal/model"
)

// ErrClusterNotFound is returned when the upstream does not know the
// requested cluster.
var ErrClusterNotFound = errors.New("cluster not found")

const (
	// DefaultRequestTimeout bounds each upstream HTTP call.
	DefaultRequestTimeout = 15 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 8 << 20
)

// Client is the upstream surface the coordinator and poller consume.
type Client interface {
	// ListClusters returns the full current cluster listing.
	ListClusters(ctx context.Context) ([]model.ClusterSummary, error)

	// StartDetailGeneration asks the upstream to produce the long-form
	// detail summary for a cluster. A cache hit may answer synchronously
	// with the finished record.
	StartDetailGeneration(ctx context.Context,
		clusterID string) (StartResult, error)

	// GetClusterDetail fetches the current record for one cluster,
	// including its detail status and any generated text.
	GetClusterDetail(ctx context.Context,
		clusterID string) (model.ClusterSummary, error)
}

// StartResult is the upstream's answer to a generation start call.
type StartResult struct {
	// Status is the upstream's coarse answer: ready, pending, started or
	// refreshing.
	Status string

	// Cluster carries the full record when the upstream answered with
	// one.
	Cluster fn.Option[model.ClusterSummary]

	// WorkerRequestID identifies the enqueued generation job, when the
	// upstream reported one.
	WorkerRequestID string
}

// Accepted reports whether the upstream queued (or is already running)
// generation rather than answering terminally.
func (r StartResult) Accepted() bool {
	switch r.Status {
	case "pending", "started", "refreshing":
		return true
	default:
		return false
	}
}

// Wire envelopes. A cluster payload may arrive bare or wrapped under a
// "cluster" key; both shapes are resolved here, before anything enters the
// typed core.
type clustersEnvelope struct {
	Clusters []model.ClusterSummary `json:"clusters"`
}

type clusterEnvelope struct {
	Cluster *model.ClusterSummary `json:"cluster"`
}

type startEnvelope struct {
	Status          string                `json:"status"`
	DetailStatus    string                `json:"detailStatus"`
	Cluster         *model.ClusterSummary `json:"cluster"`
	WorkerRequestID string                `json:"workerRequestId"`
}

type errorEnvelope struct {
	Message string `json:"message"`
}

// HTTPClient is the production Client backed by the content API's JSON
// endpoints.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client for the content API rooted at baseURL.
// A nil httpClient gets the default with DefaultRequestTimeout.
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}

	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  httpClient,
	}
}

// ListClusters returns the full current cluster listing.
func (c *HTTPClient) ListClusters(ctx context.Context) ([]model.ClusterSummary,
	error) {

	body, err := c.do(ctx, http.MethodGet, "/clusters")
	if err != nil {
		return nil, err
	}

	var env clustersEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to decode cluster listing: %w",
			err)
	}

	return env.Clusters, nil
}

// StartDetailGeneration asks the upstream to generate the detail summary for
// the given cluster.
func (c *HTTPClient) StartDetailGeneration(ctx context.Context,
	clusterID string) (StartResult, error) {

	body, err := c.do(
		ctx, http.MethodPost,
		"/clusters/"+url.PathEscape(clusterID)+"/detail",
	)
	if err != nil {
		return StartResult{}, err
	}

	var env startEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return StartResult{}, fmt.Errorf("failed to decode start "+
			"response for %s: %w", clusterID, err)
	}

	res := StartResult{
		Status:          env.Status,
		Cluster:         fn.None[model.ClusterSummary](),
		WorkerRequestID: env.WorkerRequestID,
	}
	if env.Cluster != nil {
		res.Cluster = fn.Some(*env.Cluster)
	}

	return res, nil
}

// GetClusterDetail fetches the current record for one cluster.
func (c *HTTPClient) GetClusterDetail(ctx context.Context,
	clusterID string) (model.ClusterSummary, error) {

	body, err := c.do(
		ctx, http.MethodGet, "/clusters/"+url.PathEscape(clusterID),
	)
	if err != nil {
		return model.ClusterSummary{}, err
	}

	cluster, err := decodeCluster(body)
	if err != nil {
		return model.ClusterSummary{}, fmt.Errorf("failed to decode "+
			"cluster %s: %w", clusterID, err)
	}

	return cluster, nil
}

// decodeCluster resolves the two shapes a cluster payload arrives in:
// wrapped under a "cluster" key, or bare.
func decodeCluster(body []byte) (model.ClusterSummary, error) {
	var env clusterEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Cluster != nil {
		return *env.Cluster, nil
	}

	var bare model.ClusterSummary
	if err := json.Unmarshal(body, &bare); err != nil {
		return model.ClusterSummary{}, err
	}
	if bare.ID == "" {
		return model.ClusterSummary{}, errors.New(
			"payload carries no cluster id",
		)
	}

	return bare, nil
}

// do issues one HTTP request and maps the upstream's error conventions: a
// 404 status, or an error body saying the cluster is unknown, becomes
// ErrClusterNotFound; any other non-2xx status becomes an error carrying the
// status code and a trimmed body excerpt.
func (c *HTTPClient) do(ctx context.Context, method, path string) ([]byte,
	error) {

	endpoint := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response from %s: %w",
			endpoint, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrClusterNotFound
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errEnv errorEnvelope
		if json.Unmarshal(body, &errEnv) == nil &&
			errEnv.Message == "Cluster not found" {

			return nil, ErrClusterNotFound
		}

		return nil, fmt.Errorf("HTTP %d from %s: %s",
			resp.StatusCode, endpoint, excerpt(body))
	}

	return body, nil
}

// excerpt collapses an error body to one short line for error messages.
func excerpt(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) > 256 {
		s = s[:256]
	}

	return s
}
