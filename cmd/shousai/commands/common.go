package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roasbeef/shousai/internal/coordinator"
)

// outputJSON prints v as indented JSON.
func outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// statusLabel renders the state as a short fixed-width column.
func statusLabel(state coordinator.DetailState) string {
	if state.IsGenerating {
		return "generating"
	}
	if state.Status == "" {
		return "partial"
	}
	return string(state.Status)
}

// formatClusterLine renders one listing row.
func formatClusterLine(view clusterView) string {
	headline := view.Cluster.HeadlineJa
	if headline == "" {
		headline = view.Cluster.Headline
	}
	if headline == "" {
		headline = "(no headline)"
	}

	return fmt.Sprintf("%-11s %-14s %s", statusLabel(view.State),
		view.Cluster.ID, headline)
}

// formatState renders the full detail state for one cluster.
func formatState(id string, state coordinator.DetailState) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Cluster: %s\n", id))
	sb.WriteString(fmt.Sprintf("Status: %s\n", statusLabel(state)))

	if state.FailureReason != "" {
		sb.WriteString(fmt.Sprintf("Failure: %s\n",
			state.FailureReason))
	}

	if state.Summary != "" {
		sb.WriteString(strings.Repeat("-", 40) + "\n")
		sb.WriteString(state.Summary + "\n")
	}

	if len(state.DiffPoints) > 0 {
		sb.WriteString("\nDiff points:\n")
		for _, p := range state.DiffPoints {
			sb.WriteString("  - " + p + "\n")
		}
	}

	return sb.String()
}
