package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roasbeef/shousai/internal/coordinator"
	"github.com/roasbeef/shousai/internal/poll"
)

var (
	detailWait    bool
	detailForce   bool
	detailTimeout time.Duration
)

var detailCmd = &cobra.Command{
	Use:   "detail <cluster-id>",
	Short: "Request a long-form detail summary",
	Long: `Ask the daemon to generate the long-form detail summary for a
cluster. Generation runs in the daemon; pass --wait to block until it
reaches a terminal state.`,
	Args: cobra.ExactArgs(1),
	RunE: runDetail,
}

func init() {
	detailCmd.Flags().BoolVarP(&detailWait, "wait", "w", false,
		"Block until generation reaches a terminal state")
	detailCmd.Flags().BoolVar(&detailForce, "force", false,
		"Regenerate even when a summary is already present")
	detailCmd.Flags().DurationVar(&detailTimeout, "timeout",
		2*time.Minute, "How long to wait with --wait")
}

func runDetail(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id := args[0]

	client := newAPIClient()

	state, err := client.requestDetail(ctx, id, detailForce)
	if err != nil {
		return err
	}

	if detailWait {
		state, err = waitTerminal(ctx, client, id, detailTimeout)
		if err != nil {
			return err
		}
	}

	switch outputFormat {
	case "json":
		if err := outputJSON(state); err != nil {
			return err
		}
	default:
		fmt.Print(formatState(id, state))
		if state.IsGenerating {
			fmt.Printf("\nGeneration running; check back with "+
				"'shousai state %s' or pass --wait.\n", id)
		}
	}

	if detailWait && state.IsError {
		return fmt.Errorf("generation failed: %s", state.FailureReason)
	}
	return nil
}

// waitTerminal polls the daemon until the detail state stops moving or
// the timeout passes.
func waitTerminal(ctx context.Context, client *apiClient, id string,
	timeout time.Duration) (coordinator.DetailState, error) {

	deadline := time.Now().Add(timeout)

	for {
		state, err := client.detailState(ctx, id)
		if err != nil {
			return coordinator.DetailState{}, err
		}

		if state.Status.IsTerminal() || !state.IsGenerating {
			return state, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return state, fmt.Errorf(
				"timed out after %s waiting for %s",
				timeout, id,
			)
		}

		// Sleep one poll interval, clamped to the deadline.
		sleep := poll.DefaultInterval
		if remaining < sleep {
			sleep = remaining
		}
		time.Sleep(sleep)
	}
}
