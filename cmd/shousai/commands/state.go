package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state <cluster-id>",
	Short: "Show the detail summary state for a cluster",
	Args:  cobra.ExactArgs(1),
	RunE:  runState,
}

func runState(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	id := args[0]

	client := newAPIClient()

	state, err := client.detailState(ctx, id)
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(state)
	default:
		fmt.Print(formatState(id, state))
	}

	return nil
}
