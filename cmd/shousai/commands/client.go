package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/roasbeef/shousai/internal/coordinator"
	"github.com/roasbeef/shousai/internal/model"
)

// requestTimeout bounds each call to the daemon.
const requestTimeout = 10 * time.Second

// clusterView mirrors the API's cluster+state pair.
type clusterView struct {
	Cluster model.ClusterSummary    `json:"cluster"`
	State   coordinator.DetailState `json:"state"`
}

// failureView mirrors one remembered failure from the API.
type failureView struct {
	ClusterID  string    `json:"clusterId"`
	Reason     string    `json:"reason"`
	RecordedAt time.Time `json:"recordedAt"`
}

// apiError is the daemon's error envelope.
type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// apiClient is a thin JSON client over the shousaid HTTP API.
type apiClient struct {
	baseURL string
	client  *http.Client
}

// newAPIClient creates a client for the daemon named by --api.
func newAPIClient() *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(apiAddr, "/"),
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// do performs one request and decodes the JSON answer into out.
func (c *apiClient) do(ctx context.Context, method, path string,
	body, out any) error {

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(
		ctx, method, c.baseURL+path, reqBody,
	)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("daemon unreachable at %s: %w",
			c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var envelope apiError
		if json.Unmarshal(data, &envelope) == nil &&
			envelope.Error.Code != "" {

			return fmt.Errorf("%s: %s", envelope.Error.Code,
				envelope.Error.Message)
		}
		return fmt.Errorf("daemon answered %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

// listClusters fetches the cluster listing.
func (c *apiClient) listClusters(ctx context.Context,
	refresh bool) ([]clusterView, error) {

	path := "/api/v1/clusters"
	if refresh {
		path += "?refresh=1"
	}

	var resp struct {
		Clusters []clusterView `json:"clusters"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Clusters, nil
}

// requestDetail asks the daemon to generate the detail summary.
func (c *apiClient) requestDetail(ctx context.Context, id string,
	force bool) (coordinator.DetailState, error) {

	var resp struct {
		Status string                  `json:"status"`
		State  coordinator.DetailState `json:"state"`
	}
	err := c.do(ctx, http.MethodPost,
		"/api/v1/clusters/"+id+"/detail",
		map[string]bool{"force": force}, &resp)
	if err != nil {
		return coordinator.DetailState{}, err
	}
	return resp.State, nil
}

// detailState fetches the current detail state for one cluster.
func (c *apiClient) detailState(ctx context.Context,
	id string) (coordinator.DetailState, error) {

	var resp struct {
		State coordinator.DetailState `json:"state"`
	}
	err := c.do(ctx, http.MethodGet,
		"/api/v1/clusters/"+id+"/state", nil, &resp)
	if err != nil {
		return coordinator.DetailState{}, err
	}
	return resp.State, nil
}

// listFailures fetches the remembered failures.
func (c *apiClient) listFailures(ctx context.Context) ([]failureView,
	error) {

	var resp struct {
		Failures []failureView `json:"failures"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/failures", nil, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Failures, nil
}

// clearFailure drops the remembered failure for one cluster.
func (c *apiClient) clearFailure(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/failures/"+id, nil, nil)
}
