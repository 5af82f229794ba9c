package commands

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roasbeef/shousai/internal/coordinator"
	"github.com/roasbeef/shousai/internal/model"
)

// stateServer serves a scripted sequence of detail states.
func stateServer(t *testing.T,
	states ...coordinator.DetailState) (*apiClient, *atomic.Int32) {

	t.Helper()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			idx := int(calls.Add(1)) - 1
			if idx >= len(states) {
				idx = len(states) - 1
			}

			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"state": states[idx],
			})
		},
	))
	t.Cleanup(srv.Close)

	return &apiClient{
		baseURL: srv.URL,
		client:  srv.Client(),
	}, &calls
}

func TestWaitTerminalReady(t *testing.T) {
	t.Parallel()

	pending := coordinator.DetailState{
		Status:       model.StatusPending,
		IsGenerating: true,
	}
	ready := coordinator.DetailState{
		Status:     model.StatusReady,
		Summary:    "a finished long-form summary",
		HasSummary: true,
	}

	client, calls := stateServer(t, pending, ready)

	state, err := waitTerminal(
		context.Background(), client, "c1", 30*time.Second,
	)
	require.NoError(t, err)
	require.Equal(t, model.StatusReady, state.Status)
	require.True(t, state.HasSummary)
	require.GreaterOrEqual(t, calls.Load(), int32(2))
}

func TestWaitTerminalTimeout(t *testing.T) {
	t.Parallel()

	pending := coordinator.DetailState{
		Status:       model.StatusPending,
		IsGenerating: true,
	}

	client, _ := stateServer(t, pending)

	_, err := waitTerminal(
		context.Background(), client, "c1", 10*time.Millisecond,
	)
	require.Error(t, err)
	require.Contains(t, err.Error(), "timed out")
}

func TestWaitTerminalStopsOnIdle(t *testing.T) {
	t.Parallel()

	// A pending record with no generation running means nothing will
	// move it; the wait must not hang until the timeout.
	idle := coordinator.DetailState{
		Status:       model.StatusPending,
		IsGenerating: false,
	}

	client, calls := stateServer(t, idle)

	state, err := waitTerminal(
		context.Background(), client, "c1", 30*time.Second,
	)
	require.NoError(t, err)
	require.Equal(t, model.StatusPending, state.Status)
	require.Equal(t, int32(1), calls.Load())
}

func TestAPIClientErrorEnvelope(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]string{
					"code":    "cluster_not_found",
					"message": "No record for cluster x",
				},
			})
		},
	))
	t.Cleanup(srv.Close)

	client := &apiClient{baseURL: srv.URL, client: srv.Client()}

	_, err := client.detailState(context.Background(), "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "cluster_not_found")
}

func TestFormatState(t *testing.T) {
	t.Parallel()

	state := coordinator.DetailState{
		Status:        model.StatusFailed,
		IsError:       true,
		FailureReason: "timeout",
	}

	out := formatState("c9", state)
	require.Contains(t, out, "Cluster: c9")
	require.Contains(t, out, "Status: failed")
	require.Contains(t, out, "Failure: timeout")

	state = coordinator.DetailState{
		Status:     model.StatusReady,
		Summary:    "長文の要約テキスト",
		DiffPoints: []string{"first point", "second point"},
		HasSummary: true,
	}

	out = formatState("c9", state)
	require.Contains(t, out, "長文の要約テキスト")
	require.Contains(t, out, "  - first point")
	require.Contains(t, out, "  - second point")
}

func TestFormatClusterLine(t *testing.T) {
	t.Parallel()

	view := clusterView{
		Cluster: model.ClusterSummary{
			ID:         "c1",
			Headline:   "english headline",
			HeadlineJa: "日本語の見出し",
		},
		State: coordinator.DetailState{Status: model.StatusReady},
	}

	line := formatClusterLine(view)
	require.Contains(t, line, "c1")
	require.Contains(t, line, "日本語の見出し")
	require.NotContains(t, line, "english headline")

	// The status column flips to generating while a poll runs.
	view.State.IsGenerating = true
	require.Contains(t, formatClusterLine(view), "generating")
}
