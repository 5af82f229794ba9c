package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "List remembered generation failures",
	Long: `List clusters whose last detail generation failed. Failures
age out on their own; clear one to retry immediately.`,
	RunE: runFailures,
}

var failuresClearCmd = &cobra.Command{
	Use:   "clear <cluster-id>",
	Short: "Clear the remembered failure for a cluster",
	Args:  cobra.ExactArgs(1),
	RunE:  runFailuresClear,
}

func init() {
	failuresCmd.AddCommand(failuresClearCmd)
}

func runFailures(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client := newAPIClient()

	failures, err := client.listFailures(ctx)
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(failures)

	default:
		if len(failures) == 0 {
			fmt.Println("No remembered failures.")
			return nil
		}

		fmt.Printf("%-14s %-16s %s\n", "ID", "REASON", "RECORDED")
		for _, f := range failures {
			fmt.Printf("%-14s %-16s %s\n", f.ClusterID, f.Reason,
				f.RecordedAt.Local().Format(time.RFC3339))
		}
	}

	return nil
}

func runFailuresClear(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client := newAPIClient()

	if err := client.clearFailure(ctx, args[0]); err != nil {
		return err
	}

	fmt.Printf("Cleared failure for %s.\n", args[0])
	return nil
}
