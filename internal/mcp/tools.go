package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/roasbeef/shousai/internal/model"
)

// ClusterStateResult is one cluster with its derived detail state.
type ClusterStateResult struct {
	ID            string   `json:"id"`
	Headline      string   `json:"headline,omitempty"`
	HeadlineJa    string   `json:"headline_ja,omitempty"`
	Topics        []string `json:"topics,omitempty"`
	DetailStatus  string   `json:"detail_status"`
	HasSummary    bool     `json:"has_summary"`
	IsGenerating  bool     `json:"is_generating"`
	IsError       bool     `json:"is_error"`
	Summary       string   `json:"summary,omitempty"`
	DiffPoints    []string `json:"diff_points,omitempty"`
	FailureReason string   `json:"failure_reason,omitempty"`
	UpdatedAt     string   `json:"updated_at,omitempty"`
}

// clusterResult assembles the tool-facing view for one record.
func (s *Server) clusterResult(ctx context.Context,
	rec model.ClusterSummary) ClusterStateResult {

	state := s.coord.DetailState(ctx, rec)

	res := ClusterStateResult{
		ID:            rec.ID,
		Headline:      rec.Headline,
		HeadlineJa:    rec.HeadlineJa,
		Topics:        rec.Topics,
		DetailStatus:  string(state.Status),
		HasSummary:    state.HasSummary,
		IsGenerating:  state.IsGenerating,
		IsError:       state.IsError,
		Summary:       state.Summary,
		DiffPoints:    state.DiffPoints,
		FailureReason: state.FailureReason,
	}
	if !rec.UpdatedAt.IsZero() {
		res.UpdatedAt = rec.UpdatedAt.UTC().Format(time.RFC3339)
	}

	return res
}

// ListClustersArgs are the arguments for the list_clusters tool.
type ListClustersArgs struct {
	// Refresh re-fetches the listing from the upstream first.
	Refresh bool `json:"refresh,omitempty" jsonschema:"Re-fetch the cluster listing from the upstream before answering"`
}

// ListClustersResult is the result of the list_clusters tool.
type ListClustersResult struct {
	Clusters []ClusterStateResult `json:"clusters"`
}

func (s *Server) handleListClusters(ctx context.Context,
	req *mcp.CallToolRequest,
	args ListClustersArgs) (*mcp.CallToolResult, ListClustersResult, error) {

	var (
		records []model.ClusterSummary
		err     error
	)
	if args.Refresh {
		records, err = s.coord.RefreshClusters(ctx)
		if err != nil {
			return nil, ListClustersResult{},
				fmt.Errorf("refresh failed: %w", err)
		}
	} else {
		records = s.coord.Records()
	}

	clusters := make([]ClusterStateResult, 0, len(records))
	for _, rec := range records {
		clusters = append(clusters, s.clusterResult(ctx, rec))
	}

	return nil, ListClustersResult{Clusters: clusters}, nil
}

// GetClusterArgs are the arguments for the get_cluster tool.
type GetClusterArgs struct {
	ClusterID string `json:"cluster_id" jsonschema:"ID of the cluster to fetch"`
}

func (s *Server) handleGetCluster(ctx context.Context,
	req *mcp.CallToolRequest,
	args GetClusterArgs) (*mcp.CallToolResult, ClusterStateResult, error) {

	if args.ClusterID == "" {
		return nil, ClusterStateResult{},
			fmt.Errorf("cluster_id is required")
	}

	rec, ok := s.coord.Record(args.ClusterID)
	if !ok {
		return nil, ClusterStateResult{}, fmt.Errorf(
			"no record for cluster %s, run list_clusters with "+
				"refresh first", args.ClusterID,
		)
	}

	return nil, s.clusterResult(ctx, rec), nil
}

// RequestDetailArgs are the arguments for the request_detail tool.
type RequestDetailArgs struct {
	ClusterID string `json:"cluster_id" jsonschema:"ID of the cluster to generate the detail summary for"`

	// Force regenerates even when a summary is already present.
	Force bool `json:"force,omitempty" jsonschema:"Regenerate even when a summary is already present"`
}

// RequestDetailResult is the result of the request_detail tool.
type RequestDetailResult struct {
	Status string             `json:"status"`
	State  ClusterStateResult `json:"state"`
}

func (s *Server) handleRequestDetail(ctx context.Context,
	req *mcp.CallToolRequest,
	args RequestDetailArgs) (*mcp.CallToolResult, RequestDetailResult, error) {

	if args.ClusterID == "" {
		return nil, RequestDetailResult{},
			fmt.Errorf("cluster_id is required")
	}

	rec, ok := s.coord.Record(args.ClusterID)
	if !ok {
		rec = model.ClusterSummary{ID: args.ClusterID}
	}

	if args.Force {
		s.coord.RequestRegeneration(ctx, rec)
	} else {
		s.coord.EnsureDetailSummary(ctx, rec)
	}

	current, ok := s.coord.Record(args.ClusterID)
	if !ok {
		current = rec
	}

	return nil, RequestDetailResult{
		Status: "accepted",
		State:  s.clusterResult(ctx, current),
	}, nil
}

// GetDetailStateArgs are the arguments for the get_detail_state tool.
type GetDetailStateArgs struct {
	ClusterID string `json:"cluster_id" jsonschema:"ID of the cluster to inspect"`
}

func (s *Server) handleGetDetailState(ctx context.Context,
	req *mcp.CallToolRequest,
	args GetDetailStateArgs) (*mcp.CallToolResult, ClusterStateResult, error) {

	if args.ClusterID == "" {
		return nil, ClusterStateResult{},
			fmt.Errorf("cluster_id is required")
	}

	rec, ok := s.coord.Record(args.ClusterID)
	if !ok {
		rec = model.ClusterSummary{ID: args.ClusterID}
	}

	return nil, s.clusterResult(ctx, rec), nil
}

// ListFailuresArgs are the arguments for the list_failures tool.
type ListFailuresArgs struct{}

// FailureResult is one remembered generation failure.
type FailureResult struct {
	ClusterID  string `json:"cluster_id"`
	Reason     string `json:"reason"`
	RecordedAt string `json:"recorded_at"`
}

// ListFailuresResult is the result of the list_failures tool.
type ListFailuresResult struct {
	Failures []FailureResult `json:"failures"`
}

func (s *Server) handleListFailures(ctx context.Context,
	req *mcp.CallToolRequest,
	args ListFailuresArgs) (*mcp.CallToolResult, ListFailuresResult, error) {

	records := s.coord.Failures(ctx)

	failures := make([]FailureResult, 0, len(records))
	for _, rec := range records {
		failures = append(failures, FailureResult{
			ClusterID:  rec.ClusterID,
			Reason:     rec.Reason,
			RecordedAt: rec.RecordedAt.UTC().Format(time.RFC3339),
		})
	}

	return nil, ListFailuresResult{Failures: failures}, nil
}

// ClearFailureArgs are the arguments for the clear_failure tool.
type ClearFailureArgs struct {
	ClusterID string `json:"cluster_id" jsonschema:"ID of the cluster whose failure memory to clear"`
}

// ClearFailureResult is the result of the clear_failure tool.
type ClearFailureResult struct {
	Status string `json:"status"`
}

func (s *Server) handleClearFailure(ctx context.Context,
	req *mcp.CallToolRequest,
	args ClearFailureArgs) (*mcp.CallToolResult, ClearFailureResult, error) {

	if args.ClusterID == "" {
		return nil, ClearFailureResult{},
			fmt.Errorf("cluster_id is required")
	}

	s.coord.ClearFailure(ctx, args.ClusterID)

	return nil, ClearFailureResult{Status: "cleared"}, nil
}
