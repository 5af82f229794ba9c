package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roasbeef/shousai/internal/build"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Display version information",
	Long:  `Display the version, commit hash, and build metadata for shousai.`,
	Run:   runVersion,
}

func runVersion(cmd *cobra.Command, args []string) {
	parts := []string{
		fmt.Sprintf("shousai version %s", build.Version()),
	}

	commit := build.Commit
	if commit == "" {
		commit = build.CommitHash
	}
	if commit != "" {
		parts = append(parts, "commit="+commit)
	}

	if build.GoVersion != "" {
		parts = append(parts, "go="+build.GoVersion)
	}

	if len(build.Tags()) > 0 {
		parts = append(parts, "tags="+build.RawTags)
	}

	fmt.Println(strings.Join(parts, " "))
}
