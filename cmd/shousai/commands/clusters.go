package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var clustersCached bool

var clustersCmd = &cobra.Command{
	Use:   "clusters",
	Short: "List content clusters",
	Long: `List the known content clusters with their detail summary
status. By default the daemon re-fetches the listing from the upstream
first.`,
	RunE: runClusters,
}

func init() {
	clustersCmd.Flags().BoolVar(&clustersCached, "cached", false,
		"Use the daemon's cached listing without refreshing")
}

func runClusters(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	client := newAPIClient()

	views, err := client.listClusters(ctx, !clustersCached)
	if err != nil {
		return err
	}

	switch outputFormat {
	case "json":
		return outputJSON(views)

	default:
		if len(views) == 0 {
			fmt.Println("No clusters known.")
			return nil
		}

		fmt.Printf("%-11s %-14s %s\n", "STATUS", "ID", "HEADLINE")
		for _, view := range views {
			fmt.Println(formatClusterLine(view))
		}
	}

	return nil
}
